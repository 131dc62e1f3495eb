// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package datastore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how a stored frame is compressed. The tag
// is persisted alongside the frame; changing the values breaks
// existing databases.
type CompressionTag uint8

const (
	// CompressionNone stores the frame as-is. Chosen when probing
	// shows the data is effectively incompressible (already-compressed
	// formats like Parquet with internal compression).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is the fast default for binary frames with modest
	// redundancy.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is used when probing shows a strong ratio,
	// typical for CSV and JSON frames.
	CompressionZstd CompressionTag = 2
)

func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// zstd coders are safe for concurrent use and reused across calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("datastore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("datastore: zstd decoder initialization failed: " + err.Error())
	}
}

// compressFrame probes the frame and compresses it with the algorithm
// the probe selects. A zstd ratio of 1.5x or better selects zstd,
// 1.1x or better selects LZ4, anything weaker stores the frame
// uncompressed. Returns the stored bytes and the tag to persist.
func compressFrame(data []byte) ([]byte, CompressionTag) {
	if len(data) == 0 {
		return data, CompressionNone
	}

	probe := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(probe))

	switch {
	case ratio >= 1.5:
		return probe, CompressionZstd
	case ratio >= 1.1:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil || written == 0 || written >= len(data) {
			// LZ4 declined; the zstd probe already proved some
			// redundancy, so keep that result.
			return probe, CompressionZstd
		}
		return destination[:written], CompressionLZ4
	default:
		return data, CompressionNone
	}
}

// decompressFrame reverses compressFrame. uncompressedSize must match
// the original frame length exactly.
func decompressFrame(stored []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed frame is %d bytes, expected %d", len(stored), uncompressedSize)
		}
		return stored, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(stored, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
