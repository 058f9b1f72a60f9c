package utils

import "math/rand"

const identityAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns a random alphanumeric string of the given length.
// Used to mint a fresh throwaway username for every connection attempt so
// that servers enforcing unique names never reject a reconnect.
func RandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = identityAlphabet[rand.Intn(len(identityAlphabet))]
	}
	return string(b)
}
