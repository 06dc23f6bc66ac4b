package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"askdocs/internal/domain"
)

// Vector file layout:
//
//	0..7   magic "ASKVEC01"
//	8..11  dim (uint32)
//	12..15 count (uint32)
//	16..   count*dim little-endian float32 values
const vectorsHeaderSize = 16

var vectorsMagic = [8]byte{'A', 'S', 'K', 'V', 'E', 'C', '0', '1'}

// EncodeVector encodes v as little-endian IEEE 754 float32 values.
func EncodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeVector decodes a blob produced by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: vector blob length %d is not a multiple of 4", domain.ErrCorruptSnapshot, len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// EncodeVectors serializes a vector list with its header.
func EncodeVectors(dim int, vectors [][]float32) []byte {
	out := make([]byte, vectorsHeaderSize, vectorsHeaderSize+len(vectors)*dim*4)
	copy(out[0:8], vectorsMagic[:])
	binary.LittleEndian.PutUint32(out[8:12], uint32(dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(vectors)))
	for _, v := range vectors {
		out = append(out, EncodeVector(v)...)
	}
	return out
}

// DecodeVectors parses the output of EncodeVectors.
func DecodeVectors(data []byte) (int, [][]float32, error) {
	if len(data) < vectorsHeaderSize {
		return 0, nil, fmt.Errorf("%w: vector file too short (%d bytes)", domain.ErrCorruptSnapshot, len(data))
	}
	var magic [8]byte
	copy(magic[:], data[0:8])
	if magic != vectorsMagic {
		return 0, nil, fmt.Errorf("%w: bad vector file magic", domain.ErrCorruptSnapshot)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	count := int(binary.LittleEndian.Uint32(data[12:16]))
	if dim <= 0 {
		return 0, nil, fmt.Errorf("%w: dimension %d", domain.ErrCorruptSnapshot, dim)
	}
	want := vectorsHeaderSize + count*dim*4
	if len(data) != want {
		return 0, nil, fmt.Errorf("%w: vector file has %d bytes, want %d", domain.ErrCorruptSnapshot, len(data), want)
	}
	vectors := make([][]float32, count)
	off := vectorsHeaderSize
	for i := range vectors {
		v, err := DecodeVector(data[off : off+dim*4])
		if err != nil {
			return 0, nil, err
		}
		vectors[i] = v
		off += dim * 4
	}
	return dim, vectors, nil
}
