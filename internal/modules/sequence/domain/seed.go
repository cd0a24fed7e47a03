package domain

import "unicode/utf16"

// Seed hashes a session code into a 32-bit seed with hash = hash*31 + unit
// over UTF-16 code units, wrapping at 32 bits. An empty code yields 0.
func Seed(code string) int32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(code)) {
		hash = hash*31 + int32(unit)
	}
	return hash
}

// Mulberry32 is a 32-bit PRNG. Its output for a given seed is bit-identical to
// the common JavaScript implementation, which is what makes sequences
// reproducible across implementations.
type Mulberry32 struct {
	state uint32
}

func NewMulberry32(seed int32) *Mulberry32 {
	return &Mulberry32{state: uint32(seed)}
}

// Next returns a value in [0, 1).
func (m *Mulberry32) Next() float64 {
	m.state += 0x6D2B79F5
	a := m.state
	t := (a ^ a>>15) * (1 | a)
	t = (t + (t^t>>7)*(61|t)) ^ t
	return float64(t^t>>14) / 4294967296
}

// Shuffle returns a Fisher-Yates permutation of list driven by Mulberry32.
// The input is not modified.
func Shuffle[T any](list []T, seed int32) []T {
	out := make([]T, len(list))
	copy(out, list)
	rng := NewMulberry32(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := int(rng.Next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
