package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptMaxPasswordBytes is the longest input bcrypt can hash without truncation.
const BcryptMaxPasswordBytes = 72

// Bcrypt hashes passwords with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. The cost is the work factor and must lie in
// [bcrypt.MinCost, bcrypt.MaxCost].
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("password bcrypt cost must be in [%d,%d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns a bcrypt hash of plaintext.
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if err := checkInput(plaintext, BcryptMaxPasswordBytes); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("password: bcrypt: %w", err)
	}
	return string(out), nil
}

// Verify reports whether plaintext matches encoded.
func (b *Bcrypt) Verify(plaintext, encoded string) (bool, error) {
	if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
		return false, ErrMalformedHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, ErrMalformedHash
	}
}

// NeedsUpgrade reports whether encoded was produced with a lower cost.
func (b *Bcrypt) NeedsUpgrade(encoded string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return false, ErrMalformedHash
	}
	return cost < b.cost, nil
}
