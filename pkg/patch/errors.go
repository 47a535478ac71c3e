package patch

import (
	"fmt"
)

// Phase identifies the pipeline step an operation failed in. Every failure
// surfaced by this package is an *OpError tagged with one of these phases.
type Phase string

const (
	PhaseArgument  Phase = "argument"   // required argument missing
	PhaseOpen      Phase = "open"       // opening the input file
	PhaseStat      Phase = "stat"       // querying the file size
	PhaseSizeCheck Phase = "size-check" // file exceeds the addressable limit
	PhaseMap       Phase = "map"        // establishing the memory mapping
	PhaseUnmap     Phase = "unmap"      // tearing down the memory mapping
	PhaseClose     Phase = "close"      // closing the file handle
	PhaseAlloc     Phase = "alloc"      // allocating a copied buffer
	PhaseEncode    Phase = "encode"     // the diff engine reported failure
)

// OpError describes a failed patch operation. Path is the offending input
// file when the phase concerns one. Cleanup carries a secondary failure that
// occurred while unwinding from the primary one; it annotates the message
// but never replaces Err.
type OpError struct {
	Phase   Phase
	Path    string
	Err     error
	Cleanup error
}

func (e *OpError) Error() string {
	msg := string(e.Phase)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Cleanup != nil {
		msg += fmt.Sprintf(" (cleanup also failed: %v)", e.Cleanup)
	}
	return msg
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(phase Phase, path string, err error) *OpError {
	return &OpError{Phase: phase, Path: path, Err: err}
}

// withCleanup attaches a secondary cleanup failure to err. When err is nil
// the cleanup failure becomes the primary error, tagged with cleanupPhase.
// A non-nil primary error is never replaced.
func withCleanup(err error, cleanupPhase Phase, path string, cleanupErr error) error {
	if cleanupErr == nil {
		return err
	}
	if err == nil {
		if oe, ok := cleanupErr.(*OpError); ok {
			return oe
		}
		return opErr(cleanupPhase, path, cleanupErr)
	}

	oe, ok := err.(*OpError)
	if !ok {
		oe = opErr(cleanupPhase, path, err)
	}
	if oe.Cleanup == nil {
		oe.Cleanup = cleanupErr
	}
	return oe
}
