package transport

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NonceDigits is the length of a token nonce.
const NonceDigits = 16

var nonceLimit = new(big.Int).Exp(big.NewInt(10), big.NewInt(NonceDigits), nil)

// NewNonce returns NonceDigits random decimal digits from crypto/rand.
// Leading zeros are kept so the length is fixed.
func NewNonce() (string, error) {
	n, err := rand.Int(rand.Reader, nonceLimit)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*d", NonceDigits, n.Int64()), nil
}
