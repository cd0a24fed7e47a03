package id_test

import (
	"testing"

	"studyrun/internal/platform/id"
)

func TestSessionCodeShape(t *testing.T) {
	t.Parallel()
	gen := id.SessionCode{}
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		code := gen.New()
		if !id.ValidCode(code) {
			t.Fatalf("generated invalid code %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 190 {
		t.Fatalf("expected mostly distinct codes, got %d of 200", len(seen))
	}
}

func TestValidCodeRejects(t *testing.T) {
	t.Parallel()
	for _, code := range []string{"", "ABC", "ABCDEFG0", "abcdefgh", "ABCDEFGHJ"} {
		if id.ValidCode(code) {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
	if !id.ValidCode("ABCDEFGH") {
		t.Fatalf("expected ABCDEFGH to be valid")
	}
}
