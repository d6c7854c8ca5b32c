package client

import "unicode/utf8"

// CodeLength is the number of code slots.
const CodeLength = 6

// Digits holds one ASCII digit per slot; 0 marks an empty slot.
type Digits [CodeLength]byte

func (d Digits) Full() bool {
	for _, b := range d {
		if b == 0 {
			return false
		}
	}
	return true
}

func (d Digits) Empty() bool {
	return d == Digits{}
}

// String returns the filled slots in order, skipping empty ones.
func (d Digits) String() string {
	out := make([]byte, 0, CodeLength)
	for _, b := range d {
		if b != 0 {
			out = append(out, b)
		}
	}
	return string(out)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

// pasteDigits returns the first CodeLength runes of s when all of them are
// ASCII digits.
func pasteDigits(s string) ([]byte, bool) {
	out := make([]byte, 0, CodeLength)
	for _, r := range s {
		if len(out) == CodeLength {
			break
		}
		if !isDigit(r) {
			return nil, false
		}
		out = append(out, byte(r))
	}
	return out, len(out) > 0
}
