package codec

import (
	"bytes"
	"testing"

	"google.golang.org/grpc/mem"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		flag    CompressionFlag
		payload []byte
	}{
		{"empty", Identity, nil},
		{"small", Identity, []byte("hello")},
		{"exact-32k", Identity, bytes.Repeat([]byte{0x42}, 32*1024)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := EncodeFrame(&buf, tt.flag, tt.payload); err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}

			dec := NewDecoder(mem.DefaultBufferPool(), DefaultMaxMessageSize)
			dec.Write(buf.Bytes())
			fr, ok, err := dec.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !ok {
				t.Fatal("Next reported no complete frame for a fully-written buffer")
			}
			if fr.Flag != tt.flag {
				t.Fatalf("flag: got %v, want %v", fr.Flag, tt.flag)
			}
			got := fr.Payload.ReadOnlyData()
			if !bytes.Equal(got, tt.payload) {
				t.Fatalf("payload: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
			fr.Payload.Free()
		})
	}
}

func TestDecoderHandlesArbitraryChunkBoundaries(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0x7}, 1000)
	if err := EncodeFrame(&buf, Identity, payload); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	whole := buf.Bytes()

	dec := NewDecoder(mem.DefaultBufferPool(), DefaultMaxMessageSize)
	var got []byte
	for i := 0; i < len(whole); i++ {
		dec.Write(whole[i : i+1])
		fr, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ok {
			got = append([]byte(nil), fr.Payload.ReadOnlyData()...)
			fr.Payload.Free()
		}
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("byte-at-a-time decode produced %d bytes, want %d", len(got), len(payload))
	}
}

func TestDecoderRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeFrame(&buf, Identity, make([]byte, 100)); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	dec := NewDecoder(mem.DefaultBufferPool(), 10)
	dec.Write(buf.Bytes())
	_, _, err := dec.Next()
	if err != ErrMessageTooLarge {
		t.Fatalf("want ErrMessageTooLarge, got %v", err)
	}
}

func TestPendingDetectsTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeFrame(&buf, Identity, []byte("hello world")); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	dec := NewDecoder(mem.DefaultBufferPool(), DefaultMaxMessageSize)
	dec.Write(buf.Bytes()[:len(buf.Bytes())-3])
	_, ok, err := dec.Next()
	if err != nil || ok {
		t.Fatalf("expected an incomplete frame, got ok=%v err=%v", ok, err)
	}
	if !dec.Pending() {
		t.Fatal("Pending should report true for a truncated in-flight frame")
	}
}
