package common

import (
	"crypto/rand"
	"math/big"
)

// TokenLength is the length of access and deletion tokens.
const TokenLength = 10

// tokenAlphabet is the character set tokens are drawn from.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MakeRandString generates a random alphanumeric string of length size using
// crypto/rand. Each character is drawn uniformly from tokenAlphabet, so the
// result is safe to use as an unguessable identifier.
//
// Example:
//
//	s, err := MakeRandString(10)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(s) // e.g., "Ab3kD9xLq2"
//
// It returns an error if the random number generator fails.
func MakeRandString(size int) (string, error) {
	b := make([]byte, size)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}
