package serviceconfig

import "testing"

// TestValidateRejectsDuplicateMethodName is the spec.md §3 uniqueness
// invariant: no two name entries across the whole config may share the
// same (service, method) pair, even across separate methodConfig
// entries.
func TestValidateRejectsDuplicateMethodName(t *testing.T) {
	raw := []byte(`{
		"methodConfig": [
			{"name": [{"service": "pkg.Foo", "method": "Bar"}]},
			{"name": [{"service": "pkg.Foo", "method": "Bar"}]}
		]
	}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected a duplicate (service, method) entry to be rejected")
	}
}

func TestValidateAllowsDistinctMethodNames(t *testing.T) {
	raw := []byte(`{
		"methodConfig": [
			{"name": [{"service": "pkg.Foo", "method": "Bar"}]},
			{"name": [{"service": "pkg.Foo", "method": "Baz"}]},
			{"name": [{"service": "pkg.Foo"}]}
		]
	}`)
	if _, err := Parse(raw); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestValidateRejectsMalformedTimeout(t *testing.T) {
	raw := []byte(`{"methodConfig": [{"name": [{"service": "pkg.Foo"}], "timeout": "3seconds"}]}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected a malformed timeout grammar to be rejected")
	}
}

func TestMethodConfigForPrefersExactOverWildcard(t *testing.T) {
	c, err := Parse([]byte(`{
		"methodConfig": [
			{"name": [{"service": "pkg.Foo"}], "waitForReady": false},
			{"name": [{"service": "pkg.Foo", "method": "Bar"}], "waitForReady": true}
		]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	mc := c.MethodConfigFor("pkg.Foo", "Bar")
	if mc == nil || mc.WaitForReady == nil || !*mc.WaitForReady {
		t.Fatal("MethodConfigFor: expected the exact (service, method) entry to win over the service-wide wildcard")
	}
	mc = c.MethodConfigFor("pkg.Foo", "Other")
	if mc == nil || mc.WaitForReady == nil || *mc.WaitForReady {
		t.Fatal("MethodConfigFor: expected the wildcard entry for a method with no exact match")
	}
	if c.MethodConfigFor("pkg.Unrelated", "X") != nil {
		t.Fatal("MethodConfigFor: expected no match for an unrelated service")
	}
}

func TestExtractTXTRecordConcatenatesSubsequentLines(t *testing.T) {
	records := []string{"unrelated=x", "grpc_config=[{\"serviceConfig\":", "{}}]"}
	got, ok := ExtractTXTRecord(records)
	if !ok {
		t.Fatal("expected a grpc_config= record to be found")
	}
	want := "[{\"serviceConfig\":{}}]"
	if got != want {
		t.Fatalf("ExtractTXTRecord: got %q, want %q", got, want)
	}
}

func TestExtractTXTRecordMissing(t *testing.T) {
	if _, ok := ExtractTXTRecord([]string{"unrelated=x"}); ok {
		t.Fatal("expected no grpc_config= record to be found")
	}
}

func TestSelectCanaryMatchesOnLanguageAndPercentage(t *testing.T) {
	choices := []byte(`[
		{"clientLanguage": ["python"], "serviceConfig": {"a": 1}},
		{"percentage": 50, "serviceConfig": {"b": 2}},
		{"serviceConfig": {"c": 3}}
	]`)
	got, err := SelectCanary(choices, func() float64 { return 75 })
	if err != nil {
		t.Fatalf("SelectCanary: %v", err)
	}
	if string(got) != `{"c": 3}` {
		t.Fatalf("SelectCanary: got %s, want the third (catch-all) choice", got)
	}
}

func TestSelectCanaryHonorsPercentageThreshold(t *testing.T) {
	choices := []byte(`[{"percentage": 50, "serviceConfig": {"b": 2}}]`)
	got, err := SelectCanary(choices, func() float64 { return 10 })
	if err != nil {
		t.Fatalf("SelectCanary: %v", err)
	}
	if string(got) != `{"b": 2}` {
		t.Fatalf("SelectCanary: got %s, want the percentage-gated choice selected below its threshold", got)
	}
}

func TestSelectCanaryRejectsUnknownFields(t *testing.T) {
	choices := []byte(`[{"serviceConfig": {}, "unknownField": true}]`)
	if _, err := SelectCanary(choices, func() float64 { return 0 }); err == nil {
		t.Fatal("expected an unknown top-level field in a canary choice to be rejected")
	}
}

func TestSelectCanaryNoMatchIsAnError(t *testing.T) {
	choices := []byte(`[{"clientLanguage": ["python"], "serviceConfig": {}}]`)
	if _, err := SelectCanary(choices, func() float64 { return 0 }); err == nil {
		t.Fatal("expected an error when no canary choice matches")
	}
}
