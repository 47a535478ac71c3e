package diff

import (
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// BsdiffEncoder implements Encoder using the BSDIFF4 format.
//
// BSDIFF4's matcher carries its own exploit heuristics, so minMatch acts as
// the contract parameter the caller pins for determinism rather than a knob
// fed into the suffix search. Two calls with the same inputs and minMatch
// always produce the same patch.
type BsdiffEncoder struct{}

// NewBsdiffEncoder creates a bsdiff-backed encoder.
func NewBsdiffEncoder() *BsdiffEncoder {
	return &BsdiffEncoder{}
}

// Name returns the engine identifier.
func (e *BsdiffEncoder) Name() string {
	return "bsdiff"
}

// Encode computes a BSDIFF4 patch from oldData to newData.
func (e *BsdiffEncoder) Encode(oldData, newData []byte, minMatch int) ([]byte, error) {
	if minMatch <= 0 {
		return nil, fmt.Errorf("minimum match length must be positive, got %d", minMatch)
	}

	patch, err := bsdiff.Bytes(oldData, newData)
	if err != nil {
		return nil, fmt.Errorf("bsdiff generation failed: %w", err)
	}

	return patch, nil
}

// Apply reconstructs new data from oldData plus a BSDIFF4 patch.
func (e *BsdiffEncoder) Apply(oldData, patch []byte) ([]byte, error) {
	newData, err := bspatch.Bytes(oldData, patch)
	if err != nil {
		return nil, fmt.Errorf("bspatch application failed: %w", err)
	}

	return newData, nil
}
