//go:build windows

package patch

import (
	"io"
	"os"
)

// Windows has no POSIX-style mapping that survives closing the handle, so
// file sources are read into an owned buffer instead. AcquireFile still
// reports them as KindMapped-equivalent regions via the same ladder; only
// the backing differs.
func mmapFile(f *os.File, size int) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return data, nil
}

func munmap(data []byte) error {
	return nil
}
