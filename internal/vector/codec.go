// Package vector provides the embedding wire codec and the fingerprint used as
// the reverse-index key.
package vector

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrParse is returned when an embedding payload is not a JSON array of numbers.
	ErrParse = errors.New("vector: malformed embedding")
	// ErrDimMismatch is returned when a vector does not have the expected length.
	ErrDimMismatch = errors.New("vector: dimension mismatch")
)

// Decode parses a JSON array of numbers into a float32 vector of length dim.
func Decode(data string, dim int) ([]float32, error) {
	v, err := Parse([]byte(data))
	if err != nil {
		return nil, err
	}
	if err := CheckDim(v, dim); err != nil {
		return nil, err
	}
	return v, nil
}

// Parse parses a JSON array of numbers without checking its length. null, as
// the whole payload or as an element, is rejected with ErrParse.
func Parse(data []byte) ([]float32, error) {
	var elems []*float32
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if elems == nil {
		return nil, fmt.Errorf("%w: not an array", ErrParse)
	}
	v := make([]float32, len(elems))
	for i, e := range elems {
		if e == nil {
			return nil, fmt.Errorf("%w: null at index %d", ErrParse, i)
		}
		v[i] = *e
	}
	return v, nil
}

// Encode renders v as a JSON array. Decode(Encode(v)) returns v exactly.
func Encode(v []float32) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode vector: %w", err)
	}
	return string(data), nil
}

// CheckDim returns ErrDimMismatch (wrapped) when len(v) != dim.
func CheckDim(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimMismatch, len(v), dim)
	}
	return nil
}

// Fingerprint returns the lowercase hex SHA-256 of the little-endian bytes of v.
// The producer computes the same digest when it writes post_from_embedding keys.
func Fingerprint(v []float32) string {
	sum := sha256.Sum256(float32SliceToBytes(v))
	return hex.EncodeToString(sum[:])
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}
