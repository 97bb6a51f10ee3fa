// Package otp generates numeric one-time passcodes.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	DefaultLength = 6
	MinLength     = 4
	MaxLength     = 10
)

// Generate returns a length-digit code drawn uniformly from
// [10^(length-1), 10^length-1], so the first digit is never zero.
func Generate(length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("otp length %d outside [%d, %d]", length, MinLength, MaxLength)
	}
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	span := new(big.Int).Mul(low, big.NewInt(9)) // 10^length - 10^(length-1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return n.Add(n, low).String(), nil
}
