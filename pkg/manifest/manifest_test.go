package manifest

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestBuild_ChunkCounts(t *testing.T) {
	tests := []struct {
		name       string
		dataLen    int
		chunkSize  int
		wantChunks int
	}{
		{"empty payload", 0, 100, 0},
		{"smaller than chunk", 50, 100, 1},
		{"exactly one chunk", 100, 100, 1},
		{"two and a half chunks", 250, 100, 3},
		{"fallback chunk size", 50, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte("x"), tt.dataLen)

			m, err := Build(data, tt.chunkSize)
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if len(m.ChunkHashes) != tt.wantChunks {
				t.Errorf("expected %d chunks, got %d", tt.wantChunks, len(m.ChunkHashes))
			}
			if m.TotalSize != int64(tt.dataLen) {
				t.Errorf("expected total size %d, got %d", tt.dataLen, m.TotalSize)
			}
			if tt.wantChunks > 0 && len(m.Root) == 0 {
				t.Error("expected a merkle root for a non-empty payload")
			}
			if tt.wantChunks == 0 && len(m.Root) != 0 {
				t.Error("expected no merkle root for an empty payload")
			}
		})
	}
}

func TestVerify(t *testing.T) {
	data := bytes.Repeat([]byte("chunked payload content "), 100)

	m, err := Build(data, 128)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if err := Verify(data, m); err != nil {
		t.Errorf("Verify() of the original payload failed: %v", err)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	data := bytes.Repeat([]byte("chunked payload content "), 100)

	m, err := Build(data, 128)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)/2] ^= 0xFF

	if err := Verify(tampered, m); err == nil {
		t.Error("Verify() accepted a tampered payload")
	}

	truncated := data[:len(data)-1]
	if err := Verify(truncated, m); err == nil {
		t.Error("Verify() accepted a truncated payload")
	}
}

func TestVerify_EmptyPayload(t *testing.T) {
	m, err := Build(nil, 128)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if err := Verify(nil, m); err != nil {
		t.Errorf("Verify() of an empty payload failed: %v", err)
	}

	if err := Verify([]byte("not empty"), m); err == nil {
		t.Error("Verify() accepted a non-empty payload against an empty manifest")
	}
}

func TestVerify_NilManifest(t *testing.T) {
	if err := Verify([]byte("data"), nil); err == nil {
		t.Error("Verify() accepted a nil manifest")
	}
}

func TestManifest_JSONRoundtrip(t *testing.T) {
	data := bytes.Repeat([]byte("serialize me "), 64)

	m, err := Build(data, 256)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded Manifest
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if err := Verify(data, &decoded); err != nil {
		t.Errorf("Verify() against a JSON-roundtripped manifest failed: %v", err)
	}
}
