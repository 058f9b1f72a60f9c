package utils

import (
	"strings"
	"testing"
)

func TestRandomStringLengthAndAlphabet(t *testing.T) {
	for _, length := range []int{0, 1, 16, 64} {
		s := RandomString(length)
		if len(s) != length {
			t.Fatalf("RandomString(%d) has length %d", length, len(s))
		}
		for _, r := range s {
			if !strings.ContainsRune(identityAlphabet, r) {
				t.Fatalf("RandomString produced %q outside the alphabet", r)
			}
		}
	}
}

func TestRandomStringVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[RandomString(16)] = true
	}
	if len(seen) < 2 {
		t.Fatal("RandomString returned the same value every time")
	}
}
