// Package unstructured provides a finite, deterministic pool of pseudo-random
// bytes that is consumed on demand to materialize typed primitive values.
// Every payload gets its own Source, so generation never shares state between
// requests and a run can be reproduced from its seed.
package unstructured

import (
	"encoding/binary"
	"math"
	"math/rand"
)

// DefaultSize is the pool size used for one payload.
const DefaultSize = 1024

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Source is a finite byte pool. Draws consume bytes from the front; once the
// pool is exhausted every draw returns zero values, so callers stay total
// without error handling on the hot path.
type Source struct {
	data []byte
	pos  int
}

// New returns a Source filled with size pseudo-random bytes derived from seed.
// A non-positive size falls back to DefaultSize.
func New(seed int64, size int) *Source {
	if size <= 0 {
		size = DefaultSize
	}
	data := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(data)
	return &Source{data: data}
}

// FromBytes returns a Source that draws from the given bytes verbatim.
// Useful for fully controlled generation in tests.
func FromBytes(data []byte) *Source {
	return &Source{data: data}
}

// Len reports the number of unconsumed bytes.
func (s *Source) Len() int {
	return len(s.data) - s.pos
}

// Empty reports whether the pool is exhausted.
func (s *Source) Empty() bool {
	return s.Len() == 0
}

// Bytes consumes and returns n bytes. When fewer than n remain, the result is
// padded with zeros to keep its length fixed.
func (s *Source) Bytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	b := make([]byte, n)
	copied := copy(b, s.data[s.pos:])
	s.pos += copied
	return b
}

// Uint64 consumes 8 bytes.
func (s *Source) Uint64() uint64 {
	return binary.LittleEndian.Uint64(s.Bytes(8))
}

// Int64 consumes 8 bytes.
func (s *Source) Int64() int64 {
	return int64(s.Uint64())
}

// Bool consumes 1 byte.
func (s *Source) Bool() bool {
	return s.Bytes(1)[0]&1 == 1
}

// Float64 consumes 8 bytes and always yields a finite value, roughly uniform
// over [-1e9, 1e9]. NaN and infinities never escape into generated payloads.
func (s *Source) Float64() float64 {
	f := float64(s.Uint64()) / float64(math.MaxUint64)
	return (f - 0.5) * 2e9
}

// Intn consumes 8 bytes and returns a value in [0, n). Returns 0 when n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// String consumes up to maxLen+8 bytes and returns an alphanumeric string of
// length in [0, maxLen].
func (s *Source) String(maxLen int) string {
	n := s.Intn(maxLen + 1)
	b := s.Bytes(n)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
