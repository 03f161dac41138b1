package compress

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)
	for _, codec := range []Codec{None, Lz4, Zstd} {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := Compress(codec, data, 1)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			out, err := Decompress(codec, compressed, len(data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(out, data) {
				t.Fatalf("round-trip mismatch for %s", codec)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	data := bytes.Repeat([]byte("payload"), 32)
	lz4Bytes, _ := Compress(Lz4, data, 1)
	if Detect(lz4Bytes) != Lz4 {
		t.Fatalf("Detect did not recognize lz4 frame")
	}
	zstdBytes, _ := Compress(Zstd, data, 1)
	if Detect(zstdBytes) != Zstd {
		t.Fatalf("Detect did not recognize zstd frame")
	}
	if Detect([]byte("plain text")) != None {
		t.Fatalf("Detect misclassified plain bytes")
	}
}

func TestMagicConstants(t *testing.T) {
	if magicUint32(lz4Magic) != 0x184D2204 {
		t.Fatalf("lz4 magic mismatch: %x", magicUint32(lz4Magic))
	}
	if magicUint32(zstdMagic) != 0x28B52FFD {
		t.Fatalf("zstd magic mismatch: %x", magicUint32(zstdMagic))
	}
}
