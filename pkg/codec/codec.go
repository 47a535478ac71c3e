// Package codec optionally compresses patch payloads for transport or
// on-disk storage. Compressed payloads are self-describing via a short
// header; anything without the header passes through Decode untouched, so
// uncompressed patch files remain readable by stock bsdiff tooling.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Name identifies a payload compression codec.
type Name string

const (
	None Name = "none"
	Zstd Name = "zstd"
	Xz   Name = "xz"
)

// magic prefixes a compressed payload; the following byte names the codec.
const magic = "PBC1"

const (
	codecZstd byte = 1
	codecXz   byte = 2
)

// Parse validates a codec name from user input.
func Parse(s string) (Name, error) {
	switch Name(s) {
	case None, Zstd, Xz:
		return Name(s), nil
	default:
		return "", fmt.Errorf("unsupported compression codec: %s (must be 'none', 'zstd' or 'xz')", s)
	}
}

// Encode wraps payload with the requested codec. None returns the payload
// unchanged.
func Encode(payload []byte, name Name) ([]byte, error) {
	switch name {
	case None:
		return payload, nil
	case Zstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("init zstd encoder: %w", err)
		}
		defer enc.Close()

		out := append([]byte(magic), codecZstd)
		return enc.EncodeAll(payload, out), nil
	case Xz:
		var buf bytes.Buffer
		buf.WriteString(magic)
		buf.WriteByte(codecXz)

		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("init xz writer: %w", err)
		}
		if _, err := w.Write(payload); err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("finish xz stream: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression codec: %s", name)
	}
}

// Decode unwraps a payload produced by Encode. Payloads without the codec
// header are returned as-is.
func Decode(payload []byte) ([]byte, error) {
	if len(payload) < len(magic)+1 || !bytes.HasPrefix(payload, []byte(magic)) {
		return payload, nil
	}

	body := payload[len(magic)+1:]

	switch payload[len(magic)] {
	case codecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("init zstd decoder: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(body, nil)
	case codecXz:
		r, err := xz.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("init xz reader: %w", err)
		}
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown codec byte %d in payload header", payload[len(magic)])
	}
}
