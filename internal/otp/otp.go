// Package otp generates numeric one-time codes.
package otp

import (
	"crypto/rand"
	"errors"
)

// Bounds on code length accepted by Generate. The verify form accepts codes of 3 to 4 characters.
const (
	MinDigits = 3
	MaxDigits = 4
)

// ErrInvalidLength is returned when Generate is asked for a length outside MinDigits..MaxDigits.
var ErrInvalidLength = errors.New("otp: digits must be between 3 and 4")

// Generate returns a numeric code of exactly digits characters (leading zeros kept).
// Uses crypto/rand; bytes >= 250 are discarded so every digit is uniform.
func Generate(digits int) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", ErrInvalidLength
	}
	s := make([]byte, 0, digits)
	buf := make([]byte, digits*2)
	for len(s) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			s = append(s, '0'+b%10)
			if len(s) == digits {
				break
			}
		}
	}
	return string(s), nil
}

// Valid reports whether code is all ASCII digits with a length in MinDigits..MaxDigits.
func Valid(code string) bool {
	if len(code) < MinDigits || len(code) > MaxDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
