package diff

import (
	"fmt"
)

// DefaultMinMatch is the minimum match length handed to encoders when the
// caller does not choose one. Matches shorter than this are not worth
// encoding as copies from the old data.
const DefaultMinMatch = 16

// Encoder produces a binary patch describing the transformation from old
// data to new data, and applies such patches back. Implementations must be
// deterministic: identical inputs and minMatch yield byte-identical patches.
type Encoder interface {
	// Encode computes a patch from old to new. minMatch is the lower bound
	// on the length of a match the engine will consider exploiting; it must
	// be positive. Inputs shorter than minMatch still encode correctly.
	Encode(oldData, newData []byte, minMatch int) ([]byte, error)

	// Apply reconstructs new data from old data plus a patch produced by
	// Encode.
	Apply(oldData, patch []byte) ([]byte, error)

	// Name returns the engine identifier ("bsdiff", ...).
	Name() string
}

// NewEncoder creates an encoder for the named engine.
func NewEncoder(engine string) (Encoder, error) {
	switch engine {
	case "bsdiff":
		return NewBsdiffEncoder(), nil
	case "xdelta":
		return nil, fmt.Errorf("xdelta support not yet implemented (planned for future release)")
	default:
		return nil, fmt.Errorf("unsupported diff engine: %s (must be 'bsdiff' or 'xdelta')", engine)
	}
}

// Stats holds statistics about a single patch generation.
type Stats struct {
	OldSize   int     // Size of old data
	NewSize   int     // Size of new data
	PatchSize int     // Size of the encoded patch
	Ratio     float64 // Patch size / new size (lower is better)
}

// ComputeStats calculates size statistics for a generated patch.
func ComputeStats(oldData, newData, patch []byte) Stats {
	stats := Stats{
		OldSize:   len(oldData),
		NewSize:   len(newData),
		PatchSize: len(patch),
	}

	if len(newData) > 0 {
		stats.Ratio = float64(len(patch)) / float64(len(newData))
	}

	return stats
}
