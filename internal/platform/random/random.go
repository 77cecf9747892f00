// Package random provides cryptographic randomness helpers.
//
// Dice draws and invite codes use crypto/rand so results cannot be predicted
// from earlier rolls.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// ErrInvalidBound indicates an exclusive upper bound below one.
var ErrInvalidBound = errors.New("random bound must be positive")

// Source draws uniformly distributed integers.
type Source interface {
	// IntN returns a uniform value in [0, n).
	IntN(n int) (int, error)
}

// CryptoSource draws from crypto/rand, or from Reader when set.
type CryptoSource struct {
	Reader io.Reader
}

// IntN returns a uniform value in [0, n).
func (s CryptoSource) IntN(n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidBound
	}
	reader := s.Reader
	if reader == nil {
		reader = crand.Reader
	}
	value, err := crand.Int(reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random int: %w", err)
	}
	return int(value.Int64()), nil
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
