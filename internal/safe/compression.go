// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
}

func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		Level:   2,
	}
}

type compressor struct {
	opts     CompressionOptions
	encoders sync.Pool
	decoders sync.Pool
}

func newCompressor(opts CompressionOptions) (*compressor, error) {
	// Fail early on a bad level instead of inside the pool.
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	c := &compressor{
		opts: opts,
		encoders: sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() any {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				return dec
			},
		},
	}
	c.encoders.Put(enc)
	return c, nil
}

func (c *compressor) shouldCompress(size int) bool {
	return size >= c.opts.MinSize
}

// compress returns the zstd frame for content and whether compression was applied.
// Content that does not shrink is kept as is.
func (c *compressor) compress(content []byte) ([]byte, bool) {
	if !c.shouldCompress(len(content)) {
		return content, false
	}

	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)

	out := enc.EncodeAll(content, make([]byte, 0, len(content)/2))
	if len(out) >= len(content) {
		return content, false
	}
	return out, true
}

func (c *compressor) decompress(content []byte) ([]byte, error) {
	if len(content) < 4 || !bytes.Equal(content[:4], zstdMagic) {
		return content, nil
	}

	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	out, err := dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
