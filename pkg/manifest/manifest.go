// Package manifest builds chunked integrity manifests for patch targets.
// The new payload is split into fixed-size chunks, each chunk hashed, and a
// Merkle tree built over the chunk hashes; after applying a patch the
// reconstructed payload can be verified against the recorded root without
// shipping the payload itself.
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cbergoon/merkletree"
)

// DefaultChunkSize is the chunk granularity used when the caller does not
// choose one.
const DefaultChunkSize = 4 * 1024 * 1024

// Manifest records the integrity information for one payload.
type Manifest struct {
	ChunkSize   int      `json:"chunk_size"`
	TotalSize   int64    `json:"total_size"`
	ChunkHashes []string `json:"chunk_hashes"`
	Root        []byte   `json:"root"`
}

// chunkContent adapts a chunk hash to the merkletree content interface.
type chunkContent struct {
	hash string
}

// CalculateHash implements merkletree.Content.
func (c chunkContent) CalculateHash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(c.hash)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Equals implements merkletree.Content.
func (c chunkContent) Equals(other merkletree.Content) (bool, error) {
	oc, ok := other.(chunkContent)
	if !ok {
		return false, fmt.Errorf("type mismatch")
	}
	return c.hash == oc.hash, nil
}

// Build computes the manifest for data using the given chunk size. A
// non-positive chunkSize falls back to DefaultChunkSize. Empty payloads
// yield a manifest with no chunks and a nil root.
func Build(data []byte, chunkSize int) (*Manifest, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	m := &Manifest{
		ChunkSize: chunkSize,
		TotalSize: int64(len(data)),
	}

	if len(data) == 0 {
		return m, nil
	}

	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		sum := sha256.Sum256(data[off:end])
		m.ChunkHashes = append(m.ChunkHashes, hex.EncodeToString(sum[:]))
	}

	root, err := merkleRoot(m.ChunkHashes)
	if err != nil {
		return nil, err
	}
	m.Root = root

	return m, nil
}

// Verify recomputes the manifest for data and compares it against m.
// Mismatched size, chunk count, or Merkle root all fail verification.
func Verify(data []byte, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("cannot verify against nil manifest")
	}

	if int64(len(data)) != m.TotalSize {
		return fmt.Errorf("size mismatch: manifest records %d bytes, payload has %d", m.TotalSize, len(data))
	}

	actual, err := Build(data, m.ChunkSize)
	if err != nil {
		return fmt.Errorf("rebuild manifest: %w", err)
	}

	if len(actual.ChunkHashes) != len(m.ChunkHashes) {
		return fmt.Errorf("chunk count mismatch: manifest records %d, payload has %d", len(m.ChunkHashes), len(actual.ChunkHashes))
	}

	for i, h := range m.ChunkHashes {
		if actual.ChunkHashes[i] != h {
			return fmt.Errorf("chunk %d hash mismatch", i)
		}
	}

	if !bytes.Equal(actual.Root, m.Root) {
		return fmt.Errorf("merkle root mismatch: expected %x, got %x", m.Root, actual.Root)
	}

	return nil
}

func merkleRoot(chunkHashes []string) ([]byte, error) {
	contents := make([]merkletree.Content, 0, len(chunkHashes))
	for _, h := range chunkHashes {
		contents = append(contents, chunkContent{hash: h})
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("build merkle tree: %w", err)
	}

	return tree.MerkleRoot(), nil
}
