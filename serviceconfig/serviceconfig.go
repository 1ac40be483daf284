// Package serviceconfig implements the Config data model and the TXT-
// record canary selection algorithm from spec.md §3 ("Service Config")
// and §4.10 ("Service-Config Parser and Selector").
package serviceconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// LoadBalancingConfig is an opaque, policy-specific config blob; a
// Balancer's ConfigParser (balancer.ConfigParser) turns the raw JSON
// for its own entry into one of these.
type LoadBalancingConfig any

// MethodName identifies a (service, method) pair; method may be empty
// to match every method of service.
type MethodName struct {
	Service string `json:"service"`
	Method  string `json:"method,omitempty"`
}

// MethodConfig is one methodConfig entry (spec.md §3).
type MethodConfig struct {
	Name            []MethodName `json:"name"`
	WaitForReady    *bool        `json:"waitForReady,omitempty"`
	Timeout         *string      `json:"timeout,omitempty"`
	MaxRequestBytes *int         `json:"maxRequestBytes,omitempty"`
	MaxResponseBytes *int        `json:"maxResponseBytes,omitempty"`
}

// lbConfigEntry is one raw {"<policy name>": {...}} entry in
// loadBalancingConfig.
type lbConfigEntry map[string]json.RawMessage

// Config is the parsed service config document (spec.md §3).
type Config struct {
	LoadBalancingPolicy *string         `json:"loadBalancingPolicy,omitempty"`
	LoadBalancingConfig []lbConfigEntry `json:"loadBalancingConfig,omitempty"`
	MethodConfig        []MethodConfig  `json:"methodConfig,omitempty"`

	raw []byte
}

var timeoutPattern = regexp.MustCompile(`^\d+(\.\d{1,9})?s$`)

// Validate enforces the uniqueness invariant from spec.md §3: "no two
// name entries across the whole config share the same (service,
// method) pair", plus the timeout grammar.
func (c *Config) Validate() error {
	seen := make(map[MethodName]bool)
	for _, mc := range c.MethodConfig {
		if mc.Timeout != nil && !timeoutPattern.MatchString(*mc.Timeout) {
			return fmt.Errorf("serviceconfig: invalid timeout %q", *mc.Timeout)
		}
		for _, n := range mc.Name {
			if seen[n] {
				return fmt.Errorf("serviceconfig: duplicate method name entry for service=%q method=%q", n.Service, n.Method)
			}
			seen[n] = true
		}
	}
	return nil
}

// Parse decodes a raw service-config JSON document and validates it.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("serviceconfig: invalid JSON: %w", err)
	}
	c.raw = raw
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MethodConfigFor finds the most specific methodConfig entry for
// (service, method): an exact (service, method) match wins over a
// service-wide (service, "") entry.
func (c *Config) MethodConfigFor(service, method string) *MethodConfig {
	var wildcard *MethodConfig
	for i := range c.MethodConfig {
		mc := &c.MethodConfig[i]
		for _, n := range mc.Name {
			if n.Service != service {
				continue
			}
			if n.Method == method {
				return mc
			}
			if n.Method == "" {
				wildcard = mc
			}
		}
	}
	return wildcard
}

// RawLBConfig returns the first loadBalancingConfig entry whose policy
// name has a registered Builder, along with that name, per spec.md
// §4.8 ("Pick the first supported entry from loadBalancingConfig").
// isSupported is injected so this package never imports the balancer
// registry (which itself depends on serviceconfig), avoiding a cycle.
func (c *Config) RawLBConfig(isSupported func(name string) bool) (name string, raw json.RawMessage, ok bool) {
	for _, entry := range c.LoadBalancingConfig {
		for k, v := range entry {
			if isSupported(k) {
				return k, v, true
			}
		}
	}
	if c.LoadBalancingPolicy != nil && isSupported(*c.LoadBalancingPolicy) {
		return *c.LoadBalancingPolicy, nil, true
	}
	return "", nil, false
}

// CanaryChoice is one entry of the grpc_config= TXT record array
// (spec.md §4.10).
type CanaryChoice struct {
	ClientLanguage []string        `json:"clientLanguage,omitempty"`
	Percentage     *int            `json:"percentage,omitempty"`
	ClientHostname []string        `json:"clientHostname,omitempty"`
	ServiceConfig  json.RawMessage `json:"serviceConfig"`
}

// ClientLanguageTag is the fixed language tag this runtime identifies
// itself as for clientLanguage canary matching.
const ClientLanguageTag = "go"

// PercentageSource supplies the caller's random percentile in [0,100),
// injected so selection is deterministic in tests.
type PercentageSource func() float64

// ExtractTXTRecord finds the first record beginning with
// "grpc_config=" and concatenates it with all subsequent records
// (spec.md §4.10: "find the first record beginning with grpc_config=,
// concatenate that record's subsequent lines").
func ExtractTXTRecord(records []string) (string, bool) {
	for i, r := range records {
		const prefix = "grpc_config="
		if len(r) >= len(prefix) && r[:len(prefix)] == prefix {
			out := r[len(prefix):]
			for _, rest := range records[i+1:] {
				out += rest
			}
			return out, true
		}
	}
	return "", false
}

// SelectCanary runs the canary-choice selection algorithm of spec.md
// §4.10 over an already-extracted grpc_config JSON array, returning
// the winning raw serviceConfig JSON.
func SelectCanary(jsonArray []byte, pct PercentageSource) (json.RawMessage, error) {
	var choices []CanaryChoice
	if err := strictUnmarshal(jsonArray, &choices); err != nil {
		return nil, fmt.Errorf("serviceconfig: invalid canary array: %w", err)
	}
	hostname, _ := os.Hostname()
	for _, ch := range choices {
		if ch.Percentage != nil && pct() >= float64(*ch.Percentage) {
			continue
		}
		if len(ch.ClientHostname) > 0 && !contains(ch.ClientHostname, hostname) {
			continue
		}
		if len(ch.ClientLanguage) > 0 && !contains(ch.ClientLanguage, ClientLanguageTag) {
			continue
		}
		return ch.ServiceConfig, nil
	}
	return nil, fmt.Errorf("serviceconfig: no canary choice selected")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// strictUnmarshal rejects unknown top-level fields in each canary
// choice, per spec.md §4.10 ("Unknown top-level fields in a canary
// choice are rejected").
func strictUnmarshal(data []byte, v *[]CanaryChoice) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
