// Package compress implements the symmetric compress/decompress/detect
// contract over {None, Lz4, Zstd} (spec §4.D). Codecs are interchangeable;
// callers store the codec tag alongside each cache entry so decompression
// selects automatically.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package compress

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v3"

	"github.com/forgekit/assetcore/cmn"
)

// Codec identifies which compressor produced a byte stream.
type Codec int

const (
	None Codec = iota
	Lz4
	Zstd
)

func (c Codec) String() string {
	switch c {
	case Lz4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18} // little-endian encoding of 0x184D2204
	zstdMagic = []byte{0xFD, 0x2F, 0xB5, 0x28} // little-endian encoding of 0x28B52FFD
)

// Detect sniffs the leading magic bytes of data and returns the codec that
// produced it, None if unrecognized.
func Detect(data []byte) Codec {
	if len(data) >= 4 {
		if bytes.Equal(data[:4], lz4Magic) {
			return Lz4
		}
		if bytes.Equal(data[:4], zstdMagic) {
			return Zstd
		}
	}
	return None
}

// Compress encodes data under codec at the given level (codec-specific
// meaning; ignored by None).
func Compress(codec Codec, data []byte, level int) ([]byte, error) {
	switch codec {
	case None:
		return data, nil
	case Lz4:
		return compressLz4(data, level)
	case Zstd:
		return compressZstd(data, level)
	default:
		return nil, cmn.NewError(cmn.ErrDecode, "compress: unknown codec %d", codec)
	}
}

// Decompress decodes data that was produced by codec. expectedSize is a
// hint used to preallocate the output buffer; 0 means "unknown."
func Decompress(codec Codec, data []byte, expectedSize int) ([]byte, error) {
	switch codec {
	case None:
		return data, nil
	case Lz4:
		return decompressLz4(data, expectedSize)
	case Zstd:
		return decompressZstd(data, expectedSize)
	default:
		return nil, cmn.NewError(cmn.ErrDecode, "decompress: unknown codec %d", codec)
	}
}

func compressLz4(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	w.Header.CompressionLevel = level
	if _, err := w.Write(data); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "lz4 compress: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "lz4 compress close: %v", err)
	}
	return buf.Bytes(), nil
}

func decompressLz4(data []byte, expectedSize int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out := bytes.NewBuffer(make([]byte, 0, expectedSize))
	if _, err := out.ReadFrom(r); err != nil {
		return nil, cmn.NewError(cmn.ErrDecode, "lz4 decompress: %v", err)
	}
	return out.Bytes(), nil
}

func compressZstd(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "zstd compress init: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func decompressZstd(data []byte, expectedSize int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "zstd decompress init: %v", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, make([]byte, 0, expectedSize))
	if err != nil {
		return nil, cmn.NewError(cmn.ErrDecode, "zstd decompress: %v", err)
	}
	return out, nil
}

// magicUint32 decodes a little-endian uint32 magic prefix, used by tests
// that want to assert against the spec's big-endian-looking magic constants
// (0x184D2204, 0x28B52FFD) directly rather than the raw byte slices above.
func magicUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
