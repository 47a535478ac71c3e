package diff

import (
	"bytes"
	"testing"
)

func TestNewEncoder(t *testing.T) {
	tests := []struct {
		name    string
		engine  string
		wantErr bool
	}{
		{"bsdiff engine", "bsdiff", false},
		{"xdelta engine (not implemented)", "xdelta", true},
		{"invalid engine", "invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncoder(tt.engine)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEncoder() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && enc == nil {
				t.Error("NewEncoder() returned nil encoder without error")
			}
		})
	}
}

func TestBsdiffEncoder_EncodeAndApply(t *testing.T) {
	enc := NewBsdiffEncoder()

	tests := []struct {
		name    string
		oldData []byte
		newData []byte
	}{
		{
			name:    "identical data",
			oldData: []byte("hello world"),
			newData: []byte("hello world"),
		},
		{
			name:    "simple change",
			oldData: []byte("hello world"),
			newData: []byte("hello mars!"),
		},
		{
			name:    "inputs shorter than min match",
			oldData: []byte("ABCDEFGH"),
			newData: []byte("ABCDXYGH"),
		},
		{
			name:    "empty old data",
			oldData: []byte{},
			newData: []byte("new file content"),
		},
		{
			name:    "empty new data",
			oldData: []byte("old file content"),
			newData: []byte{},
		},
		{
			name:    "large change",
			oldData: bytes.Repeat([]byte("A"), 10000),
			newData: bytes.Repeat([]byte("B"), 10000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := enc.Encode(tt.oldData, tt.newData, DefaultMinMatch)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if len(p) == 0 {
				t.Fatal("Encode() produced an empty patch")
			}

			got, err := enc.Apply(tt.oldData, p)
			if err != nil {
				t.Fatalf("Apply() error: %v", err)
			}
			if !bytes.Equal(got, tt.newData) {
				t.Errorf("roundtrip mismatch: got %d bytes, want %d bytes", len(got), len(tt.newData))
			}
		})
	}
}

func TestBsdiffEncoder_RejectsNonPositiveMinMatch(t *testing.T) {
	enc := NewBsdiffEncoder()

	for _, minMatch := range []int{0, -1} {
		if _, err := enc.Encode([]byte("old"), []byte("new"), minMatch); err == nil {
			t.Errorf("Encode() with minMatch=%d should fail", minMatch)
		}
	}
}

func TestBsdiffEncoder_Deterministic(t *testing.T) {
	enc := NewBsdiffEncoder()
	oldData := bytes.Repeat([]byte("the quick brown fox "), 500)
	newData := bytes.Repeat([]byte("the quick brown cat "), 500)

	first, err := enc.Encode(oldData, newData, DefaultMinMatch)
	if err != nil {
		t.Fatalf("first Encode() error: %v", err)
	}
	second, err := enc.Encode(oldData, newData, DefaultMinMatch)
	if err != nil {
		t.Fatalf("second Encode() error: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("identical inputs produced different patches")
	}
}

func TestComputeStats(t *testing.T) {
	oldData := make([]byte, 100)
	newData := make([]byte, 200)
	patch := make([]byte, 50)

	stats := ComputeStats(oldData, newData, patch)

	if stats.OldSize != 100 || stats.NewSize != 200 || stats.PatchSize != 50 {
		t.Errorf("unexpected sizes: %+v", stats)
	}
	if stats.Ratio != 0.25 {
		t.Errorf("expected ratio 0.25, got %f", stats.Ratio)
	}

	empty := ComputeStats(nil, nil, nil)
	if empty.Ratio != 0 {
		t.Errorf("expected zero ratio for empty new data, got %f", empty.Ratio)
	}
}
