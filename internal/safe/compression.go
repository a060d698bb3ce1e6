// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
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
	// File extensions to skip compression for
	SkipExtensions []string
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024, // 1KB
		Level:   2,    // Balanced speed/compression
		SkipExtensions: []string{
			".zip", ".gz", ".zst", ".xz", ".bz2",
			".png", ".jpg", ".jpeg", ".gif", ".webp",
			".pdf", ".docx", ".xlsx",
		},
	}
}

// compressionManager pools zstd encoders and decoders
type compressionManager struct {
	opts     CompressionOptions
	encoders sync.Pool
	decoders sync.Pool
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	level := zstd.EncoderLevelFromZstd(opts.Level)

	// Build one of each up front so bad options fail here, not in the pools
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	cm := &compressionManager{
		opts: opts,
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				return dec
			},
		},
	}
	cm.encoders.Put(enc)
	cm.decoders.Put(dec)
	return cm, nil
}

// shouldCompress determines if content should be compressed
func (cm *compressionManager) shouldCompress(path string, size int) bool {
	if size < cm.opts.MinSize {
		return false
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, skipExt := range cm.opts.SkipExtensions {
		if ext == skipExt {
			return false
		}
	}
	return true
}

// compress returns the stored form of content and whether it was compressed.
func (cm *compressionManager) compress(path string, content []byte) ([]byte, bool) {
	if !cm.shouldCompress(path, len(content)) {
		return content, false
	}

	enc := cm.encoders.Get().(*zstd.Encoder)
	defer cm.encoders.Put(enc)

	out := enc.EncodeAll(content, make([]byte, 0, len(content)/2))
	if len(out) >= len(content) {
		return content, false
	}
	return out, true
}

func (cm *compressionManager) decompress(data []byte) ([]byte, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], zstdMagic) {
		return nil, fmt.Errorf("content is not zstd compressed")
	}

	dec := cm.decoders.Get().(*zstd.Decoder)
	defer cm.decoders.Put(dec)

	return dec.DecodeAll(data, nil)
}
