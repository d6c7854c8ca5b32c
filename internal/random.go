package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

const (
	minOTPDigits = 4
	maxOTPDigits = 10

	// Bounded retries; the rejection probability per draw is below 2^-40.
	maxOTPDraws = 16
)

var (
	errInvalidOTPDigits   = errors.New("invalid otp digits")
	errOTPSourceExhausted = errors.New("otp random source kept producing rejected samples")
)

// NewOTP draws a fixed-width numeric code uniformly from [10^(digits-1), 10^digits-1]
// using src. A nil src falls back to crypto/rand.
//
// The leading digit is never zero, so every code is exactly digits characters long
// without padding.
func NewOTP(src io.Reader, digits int) (string, error) {
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", errInvalidOTPDigits
	}
	if src == nil {
		src = rand.Reader
	}

	low := pow10(digits - 1)
	span := pow10(digits) - low
	limit := math.MaxUint64 - (math.MaxUint64 % span)

	var buf [8]byte
	for i := 0; i < maxOTPDraws; i++ {
		if _, err := io.ReadFull(src, buf[:]); err != nil {
			return "", fmt.Errorf("otp generation: %w", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v >= limit {
			continue
		}

		otp := strconv.FormatUint(low+v%span, 10)
		if len(otp) != digits {
			return "", errors.New("invalid otp generation length")
		}
		return otp, nil
	}

	return "", errOTPSourceExhausted
}

// IsNumericCode reports whether code is exactly digits ASCII decimal characters.
func IsNumericCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// HashCode binds a code to the normalized email it was issued for.
func HashCode(email, code string) [32]byte {
	h := sha256.New()
	_, _ = h.Write([]byte(email))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(code))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func pow10(n int) uint64 {
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
