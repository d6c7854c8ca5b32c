package internal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func drawBytes(values ...uint64) *bytes.Reader {
	buf := make([]byte, 0, 8*len(values))
	for _, v := range values {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	return bytes.NewReader(buf)
}

func TestNewOTPBounds(t *testing.T) {
	low, err := NewOTP(drawBytes(0), 6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if low != "100000" {
		t.Fatalf("expected lowest code 100000, got %q", low)
	}

	high, err := NewOTP(drawBytes(899999), 6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if high != "999999" {
		t.Fatalf("expected highest code 999999, got %q", high)
	}

	wrapped, err := NewOTP(drawBytes(900000), 6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if wrapped != "100000" {
		t.Fatalf("expected 900000 to wrap to 100000, got %q", wrapped)
	}
}

func TestNewOTPRejectsBiasedTail(t *testing.T) {
	code, err := NewOTP(drawBytes(math.MaxUint64, 42), 6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if code != "100042" {
		t.Fatalf("expected rejected draw to be skipped, got %q", code)
	}
}

func TestNewOTPSourceErrors(t *testing.T) {
	if _, err := NewOTP(bytes.NewReader([]byte{1, 2, 3}), 6); err == nil {
		t.Fatal("expected short source to fail")
	}

	tail := make([]uint64, maxOTPDraws)
	for i := range tail {
		tail[i] = math.MaxUint64
	}
	if _, err := NewOTP(drawBytes(tail...), 6); !errors.Is(err, errOTPSourceExhausted) {
		t.Fatalf("expected exhausted source error, got %v", err)
	}
}

func TestNewOTPDigitsValidation(t *testing.T) {
	for _, digits := range []int{0, 3, 11} {
		if _, err := NewOTP(nil, digits); !errors.Is(err, errInvalidOTPDigits) {
			t.Fatalf("digits=%d: expected invalid digits error, got %v", digits, err)
		}
	}
}

func TestNewOTPDefaultSourceShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewOTP(nil, 6)
		if err != nil {
			t.Fatalf("NewOTP failed: %v", err)
		}
		if !IsNumericCode(code, 6) {
			t.Fatalf("expected 6 numeric digits, got %q", code)
		}
		if code[0] == '0' {
			t.Fatalf("expected no leading zero, got %q", code)
		}
	}
}

func TestIsNumericCode(t *testing.T) {
	cases := map[string]bool{
		"123456":  true,
		"012345":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"12 456":  false,
		"١٢٣٤٥٦":  false,
	}
	for code, want := range cases {
		if got := IsNumericCode(code, 6); got != want {
			t.Fatalf("IsNumericCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestHashCodeBindsEmail(t *testing.T) {
	a := HashCode("a@b.com", "123456")
	b := HashCode("c@d.com", "123456")
	if a == b {
		t.Fatal("expected hashes to differ across emails")
	}
	if a != HashCode("a@b.com", "123456") {
		t.Fatal("expected hash to be deterministic")
	}
}

func FuzzIsNumericCode(f *testing.F) {
	f.Add("123456")
	f.Add("")
	f.Add("!!!")
	f.Fuzz(func(t *testing.T, code string) {
		if IsNumericCode(code, 6) && len(code) != 6 {
			t.Fatalf("accepted code of length %d", len(code))
		}
	})
}
