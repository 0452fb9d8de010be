package zarr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/qri-io/dataset/compression"
)

// CompressionMeta defines compression settings zarr-go understands
type CompressionMeta struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// DefaultCompressor is applied to arrays created without an explicit choice
var DefaultCompressor = CompressionMeta{ID: "zstd", Clevel: 1}

// zarr codec ids mapped to compression formats
var codecFormats = map[string]compression.Format{
	"zstd": compression.FmtZStandard,
	"gzip": compression.FmtGZip,
}

func compressionFormat(id string) (compression.Format, error) {
	f, ok := codecFormats[id]
	if !ok {
		return compression.FmtNone, fmt.Errorf("%w: compressor %q", ErrNotSupported, id)
	}
	return f, nil
}

func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	if m == nil {
		return r, nil
	}
	f, err := compressionFormat(m.ID)
	if err != nil {
		return nil, err
	}
	return compression.Decompressor(string(f), r)
}

func (m *CompressionMeta) Compressor(w io.Writer) (io.WriteCloser, error) {
	if m == nil {
		return nopWriteCloser{w}, nil
	}
	f, err := compressionFormat(m.ID)
	if err != nil {
		return nil, err
	}
	return compression.Compressor(string(f), w)
}

// encode compresses a raw chunk buffer
func (m *CompressionMeta) encode(raw []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := m.Compressor(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode reads a stored chunk back into exactly size raw bytes
func (m *CompressionMeta) decode(r io.ReadCloser, size int) ([]byte, error) {
	defer r.Close()
	rc, err := m.Decompressor(r)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, fmt.Errorf("chunk holds %d bytes, expected %d", len(raw), size)
	}
	return raw, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
