package password

import (
	"errors"
	"unicode/utf8"
)

var (
	// ErrInvalidPassword is returned by Hash for empty, over-length, or non-UTF-8 input.
	ErrInvalidPassword = errors.New("invalid password input")
	// ErrMalformedHash is returned by Verify and NeedsUpgrade for undecodable hash strings.
	ErrMalformedHash = errors.New("malformed password hash")
)

func checkInput(plaintext string, maxBytes int) error {
	if plaintext == "" || len(plaintext) > maxBytes || !utf8.ValidString(plaintext) {
		return ErrInvalidPassword
	}
	return nil
}
