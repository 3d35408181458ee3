package redemption

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet is uppercase letters and digits with the visually confusable
// O/0/I/L/1 removed.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// codeLength is the fixed length of every redemption code.
const codeLength = 16

// maxGenerateAttempts bounds collision retries during generation.
const maxGenerateAttempts = 10

// newCode returns a random code drawn from the unambiguous alphabet.
func newCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw random index: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
