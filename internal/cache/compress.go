package cache

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"

	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// encodeDocIDs packs a doc id sequence into a flat little-endian byte
// buffer, the uncompressed form LZ4 block-compresses.
func encodeDocIDs(docIDs []domain.DocID) []byte {
	buf := make([]byte, len(docIDs)*4)
	for i, d := range docIDs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(d))
	}
	return buf
}

func decodeDocIDs(raw []byte) []domain.DocID {
	out := make([]domain.DocID, len(raw)/4)
	for i := range out {
		out[i] = domain.DocID(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// compress LZ4-block-compresses raw, returning the compressed payload and
// raw's original length (needed to size the decompression buffer).
func compress(raw []byte) (compressed []byte, uncompressedLen int, err error) {
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := c.CompressBlock(raw, dst)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 && len(raw) > 0 {
		// Incompressible input: lz4 reports 0 rather than emitting a
		// larger-than-source block. Store raw as-is; decompress recognizes
		// this case because the payload length equals uncompressedLen.
		return append([]byte(nil), raw...), len(raw), nil
	}
	return dst[:n], len(raw), nil
}

// decompress reverses compress. When the compressed payload's length
// equals uncompressedLen, compress had stored the payload uncompressed
// (the incompressible-input path above) and decompress returns it as-is.
func decompress(compressed []byte, uncompressedLen int) ([]byte, error) {
	if len(compressed) == uncompressedLen {
		return compressed, nil
	}
	dst := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// encodeAndCompressDocIDs is the Insert-path helper: encode then compress.
func encodeAndCompressDocIDs(docIDs []domain.DocID) (compressed []byte, uncompressedLen int, err error) {
	return compress(encodeDocIDs(docIDs))
}

// decompressAndDecodeDocIDs is the Lookup-path helper: decompress then decode.
func decompressAndDecodeDocIDs(compressed []byte, uncompressedLen int) ([]domain.DocID, error) {
	raw, err := decompress(compressed, uncompressedLen)
	if err != nil {
		return nil, err
	}
	return decodeDocIDs(raw), nil
}
