package patch

import (
	"fmt"
	"math"
	"os"
)

// Kind identifies how a Source's bytes are backed.
type Kind int

const (
	// KindMapped means the bytes come from a read-only shared file mapping.
	KindMapped Kind = iota
	// KindCopied means the bytes live in an owned heap buffer.
	KindCopied
)

func (k Kind) String() string {
	if k == KindMapped {
		return "mapped"
	}
	return "copied"
}

// Source is a readable, contiguous byte region with a known length, owned
// exclusively by the operation that acquired it. It is valid from
// acquisition until Release; its teardown runs exactly once.
type Source struct {
	data     []byte
	kind     Kind
	path     string // originating file for mapped sources, "" otherwise
	released bool
}

// Bytes returns the backing region. The slice must not be retained past
// Release.
func (s *Source) Bytes() []byte {
	return s.data
}

// Len returns the region length in bytes.
func (s *Source) Len() int {
	return len(s.data)
}

// Kind reports how the region is backed.
func (s *Source) Kind() Kind {
	return s.kind
}

// Release tears down the region: mapped sources are unmapped, copied
// sources dropped for collection. Calling Release again is a no-op, so a
// source is never unmapped twice.
func (s *Source) Release() error {
	if s == nil || s.released {
		return nil
	}
	s.released = true

	data := s.data
	s.data = nil

	if s.kind == KindMapped && data != nil {
		if err := munmap(data); err != nil {
			return opErr(PhaseUnmap, s.path, err)
		}
	}
	return nil
}

// AcquireFile maps the file at path into memory as a read-only Source.
//
// The acquisition ladder is open, stat, size check, map, close, and every
// failing rung returns an *OpError for that phase with no file handle or
// mapping left behind. A close failure after a successful map unmaps the
// region first and reports the close as primary, with any unmap failure
// attached as the cleanup note.
func AcquireFile(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, opErr(PhaseOpen, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		closeErr := f.Close()
		return nil, withCleanup(opErr(PhaseStat, path, err), PhaseClose, path, closeErr)
	}

	size := fi.Size()
	if size < 0 || uint64(size) > uint64(math.MaxInt) {
		closeErr := f.Close()
		sizeErr := opErr(PhaseSizeCheck, path, fmt.Errorf("file size %d exceeds addressable limit", size))
		return nil, withCleanup(sizeErr, PhaseClose, path, closeErr)
	}

	// Zero-length mappings are invalid on Linux; an empty file becomes an
	// empty copied source with nothing to unmap.
	if size == 0 {
		if err := f.Close(); err != nil {
			return nil, opErr(PhaseClose, path, err)
		}
		return &Source{data: nil, kind: KindCopied, path: path}, nil
	}

	data, err := mmapFile(f, int(size))
	if err != nil {
		closeErr := f.Close()
		return nil, withCleanup(opErr(PhaseMap, path, err), PhaseClose, path, closeErr)
	}

	// The mapping stays valid after the descriptor is closed. If the close
	// fails anyway, drop the mapping before surfacing the error so nothing
	// leaks on this path either.
	if err := f.Close(); err != nil {
		unmapErr := munmap(data)
		return nil, withCleanup(opErr(PhaseClose, path, err), PhaseUnmap, path, unmapErr)
	}

	return &Source{data: data, kind: KindMapped, path: path}, nil
}

// AcquireBlob copies b into an owned buffer and wraps it as a Source. The
// caller's slice is never aliased, so later mutation of b cannot reach the
// region handed to the encoder.
func AcquireBlob(b []byte) *Source {
	data := make([]byte, len(b))
	copy(data, b)
	return &Source{data: data, kind: KindCopied}
}
