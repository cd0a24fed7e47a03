package id

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// CodeAlphabet omits characters that are easy to misread when a participant
// copies their code by hand (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the length of a session code.
const CodeLength = 8

// Generator creates opaque identifiers.
type Generator interface {
	New() string
}

// SessionCode draws CodeLength characters from CodeAlphabet. Collisions are not
// checked.
type SessionCode struct{}

func (SessionCode) New() string {
	buf := make([]byte, CodeLength)
	limit := big.NewInt(int64(len(CodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			buf[i] = CodeAlphabet[0]
			continue
		}
		buf[i] = CodeAlphabet[n.Int64()]
	}
	return string(buf)
}

// ValidCode reports whether code has the session code shape.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !containsByte(CodeAlphabet, code[i]) {
			return false
		}
	}
	return true
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

type UUID struct{}

func (UUID) New() string {
	return uuid.NewString()
}
