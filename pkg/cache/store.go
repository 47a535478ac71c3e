// Package cache memoizes generated patches in a local Pebble store, keyed
// by the content of both inputs and the engine parameters. Re-diffing the
// same pair of payloads becomes a single point lookup.
package cache

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/multiformats/go-multihash"
)

// PrefixPatch namespaces cached patch payloads inside the store.
const PrefixPatch = "patch:"

const compressionMagic = "PBZ1"

// Store is a content-addressed patch cache backed by Pebble.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a cache store under dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open patch cache: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key derives the content-addressed cache key for a pair of payloads and
// the engine parameters that would be used to diff them.
func Key(oldData, newData []byte, engine string, minMatch int) (string, error) {
	oldSum := sha256.Sum256(oldData)
	newSum := sha256.Sum256(newData)

	var buf bytes.Buffer
	buf.Write(oldSum[:])
	buf.Write(newSum[:])
	buf.WriteString(engine)
	buf.WriteString(strconv.Itoa(minMatch))

	mh, err := multihash.Sum(buf.Bytes(), multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("compute cache key: %w", err)
	}

	return PrefixPatch + mh.B58String(), nil
}

// Put stores a patch under the derived key. Values are zstd-compressed.
func (s *Store) Put(oldData, newData []byte, engine string, minMatch int, patch []byte) error {
	key, err := Key(oldData, newData, engine, minMatch)
	if err != nil {
		return err
	}

	compressed, err := compressForStorage(patch)
	if err != nil {
		return fmt.Errorf("compress cached patch: %w", err)
	}

	if err := s.db.Set([]byte(key), compressed, pebble.Sync); err != nil {
		return fmt.Errorf("store cached patch: %w", err)
	}

	return nil
}

// Get retrieves a cached patch, reporting whether it was present.
func (s *Store) Get(oldData, newData []byte, engine string, minMatch int) ([]byte, bool, error) {
	key, err := Key(oldData, newData, engine, minMatch)
	if err != nil {
		return nil, false, err
	}

	val, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached patch: %w", err)
	}
	defer closer.Close()

	patch, err := decompressFromStorage(val)
	if err != nil {
		return nil, false, fmt.Errorf("decompress cached patch %s: %w", key, err)
	}

	return patch, true, nil
}

// Has reports whether a patch for the inputs is cached.
func (s *Store) Has(oldData, newData []byte, engine string, minMatch int) (bool, error) {
	key, err := Key(oldData, newData, engine, minMatch)
	if err != nil {
		return false, err
	}

	_, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// Lookup implements the patch service cache contract.
func (s *Store) Lookup(oldData, newData []byte, engine string, minMatch int) ([]byte, bool) {
	patch, ok, err := s.Get(oldData, newData, engine, minMatch)
	if err != nil {
		log.Printf("[cache] lookup failed: %v", err)
		return nil, false
	}
	return patch, ok
}

// Store implements the patch service cache contract. A write failure only
// costs the memoization, so it is logged rather than surfaced.
func (s *Store) Store(oldData, newData []byte, engine string, minMatch int, patch []byte) {
	if err := s.Put(oldData, newData, engine, minMatch, patch); err != nil {
		log.Printf("[cache] store failed: %v", err)
	}
}

// Stats summarizes the cache contents.
type Stats struct {
	Objects int
	Bytes   int64
}

// GetStats walks the patch keyspace and reports object and byte counts.
func (s *Store) GetStats() (Stats, error) {
	var stats Stats

	upper := append([]byte(PrefixPatch), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(PrefixPatch),
		UpperBound: upper,
	})
	if err != nil {
		return stats, fmt.Errorf("cache stats iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		stats.Objects++
		stats.Bytes += int64(len(iter.Value()))
	}

	if err := iter.Error(); err != nil {
		return stats, err
	}

	return stats, nil
}

var (
	zstdEncoderOnce sync.Once
	zstdDecoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoder     *zstd.Decoder
	zstdInitErr     error
)

func getZstdEncoder() (*zstd.Encoder, error) {
	zstdEncoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			zstdInitErr = err
			return
		}
		zstdEncoder = enc
	})
	return zstdEncoder, zstdInitErr
}

func getZstdDecoder() (*zstd.Decoder, error) {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			zstdInitErr = err
			return
		}
		zstdDecoder = dec
	})
	return zstdDecoder, zstdInitErr
}

func compressForStorage(data []byte) ([]byte, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	dst := enc.EncodeAll(data, nil)
	return append([]byte(compressionMagic), dst...), nil
}

func decompressFromStorage(data []byte) ([]byte, error) {
	if len(data) < len(compressionMagic) || !bytes.Equal(data[:len(compressionMagic)], []byte(compressionMagic)) {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	dec, err := getZstdDecoder()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(data[len(compressionMagic):], nil)
}
