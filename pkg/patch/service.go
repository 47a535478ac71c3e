// Package patch is the boundary layer between callers and the binary diff
// engine. It maps input sources (named files or in-memory blobs) into
// contiguous readable buffers, invokes the engine, and hands back an owned
// patch payload while guaranteeing that every acquired resource is released
// exactly once on every exit path.
package patch

import (
	"fmt"
	"time"

	"github.com/saworbit/patchbay/internal/metrics"
	"github.com/saworbit/patchbay/pkg/diff"
)

// Cache memoizes generated patches keyed by input content and engine
// parameters. Implementations must be safe for concurrent use.
type Cache interface {
	// Lookup returns a previously stored patch for the inputs, if any.
	Lookup(oldData, newData []byte, engine string, minMatch int) ([]byte, bool)

	// Store records a generated patch. Failures are the implementation's
	// problem; generation already succeeded and must not be disturbed.
	Store(oldData, newData []byte, engine string, minMatch int, patch []byte)
}

// Service generates and applies binary patches. Each invocation owns its
// sources exclusively and runs to completion on the calling goroutine, so a
// single Service is safe for concurrent use.
type Service struct {
	// Encoder is the diff engine collaborator.
	Encoder diff.Encoder

	// MinMatch is the minimum match length passed to the encoder.
	MinMatch int

	// Cache, when non-nil, short-circuits encoding for inputs seen before.
	Cache Cache
}

// NewService creates a Service around enc with the default minimum match
// length.
func NewService(enc diff.Encoder) *Service {
	return &Service{Encoder: enc, MinMatch: diff.DefaultMinMatch}
}

// FromFiles generates a patch transforming the file at oldPath into the
// file at newPath. Both files are memory-mapped for the duration of the
// call and unmapped before it returns, whatever the outcome.
//
// Acquisition is old first, then new; the first failure wins and whichever
// source did get acquired is released before the error propagates.
func (s *Service) FromFiles(oldPath, newPath string) ([]byte, error) {
	if oldPath == "" {
		return nil, opErr(PhaseArgument, "", fmt.Errorf("old file path is required"))
	}
	if newPath == "" {
		return nil, opErr(PhaseArgument, "", fmt.Errorf("new file path is required"))
	}

	start := time.Now()

	oldSrc, err := AcquireFile(oldPath)
	if err != nil {
		metrics.ObserveGenerate(start, "files", "acquire_error")
		return nil, err
	}

	newSrc, err := AcquireFile(newPath)
	if err != nil {
		err = withCleanup(err, PhaseUnmap, oldPath, oldSrc.Release())
		metrics.ObserveGenerate(start, "files", "acquire_error")
		return nil, err
	}

	newLen := newSrc.Len()
	p, err := s.encode(oldSrc.Bytes(), newSrc.Bytes())

	// Release both sources before any terminal state. A release failure on
	// the success path becomes the primary error; on a failure path it is
	// attached as the cleanup note.
	err = withCleanup(err, PhaseUnmap, oldPath, oldSrc.Release())
	err = withCleanup(err, PhaseUnmap, newPath, newSrc.Release())

	if err != nil {
		metrics.ObserveGenerate(start, "files", "error")
		return nil, err
	}

	metrics.ObserveGenerate(start, "files", "success")
	metrics.ObserveSavings(int64(newLen), int64(len(p)))
	return p, nil
}

// FromBuffers generates a patch transforming oldData into newData. Both
// blobs are copied into owned buffers before encoding, so the caller may
// reuse its slices immediately.
func (s *Service) FromBuffers(oldData, newData []byte) ([]byte, error) {
	start := time.Now()

	oldSrc := AcquireBlob(oldData)
	newSrc := AcquireBlob(newData)

	newLen := newSrc.Len()
	p, err := s.encode(oldSrc.Bytes(), newSrc.Bytes())

	err = withCleanup(err, PhaseUnmap, "", oldSrc.Release())
	err = withCleanup(err, PhaseUnmap, "", newSrc.Release())

	if err != nil {
		metrics.ObserveGenerate(start, "buffers", "error")
		return nil, err
	}

	metrics.ObserveGenerate(start, "buffers", "success")
	metrics.ObserveSavings(int64(newLen), int64(len(p)))
	return p, nil
}

// ApplyFiles reconstructs the new payload from the file at oldPath plus the
// patch file at patchPath.
func (s *Service) ApplyFiles(oldPath, patchPath string) ([]byte, error) {
	if oldPath == "" {
		return nil, opErr(PhaseArgument, "", fmt.Errorf("old file path is required"))
	}
	if patchPath == "" {
		return nil, opErr(PhaseArgument, "", fmt.Errorf("patch file path is required"))
	}

	oldSrc, err := AcquireFile(oldPath)
	if err != nil {
		return nil, err
	}

	patchSrc, err := AcquireFile(patchPath)
	if err != nil {
		err = withCleanup(err, PhaseUnmap, oldPath, oldSrc.Release())
		return nil, err
	}

	result, err := s.ApplyBuffers(oldSrc.Bytes(), patchSrc.Bytes())

	err = withCleanup(err, PhaseUnmap, oldPath, oldSrc.Release())
	err = withCleanup(err, PhaseUnmap, patchPath, patchSrc.Release())

	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyBuffers reconstructs the new payload from oldData plus patch.
func (s *Service) ApplyBuffers(oldData, patch []byte) ([]byte, error) {
	result, err := s.Encoder.Apply(oldData, patch)
	if err != nil {
		return nil, opErr(PhaseEncode, "", err)
	}
	return result, nil
}

func (s *Service) encode(oldData, newData []byte) ([]byte, error) {
	minMatch := s.MinMatch
	if minMatch <= 0 {
		minMatch = diff.DefaultMinMatch
	}

	if s.Cache != nil {
		if p, ok := s.Cache.Lookup(oldData, newData, s.Encoder.Name(), minMatch); ok {
			metrics.ObserveCacheLookup(true)
			return p, nil
		}
		metrics.ObserveCacheLookup(false)
	}

	p, err := s.Encoder.Encode(oldData, newData, minMatch)
	if err != nil {
		return nil, opErr(PhaseEncode, "", err)
	}

	if s.Cache != nil {
		s.Cache.Store(oldData, newData, s.Encoder.Name(), minMatch, p)
	}

	return p, nil
}
