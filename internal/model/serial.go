package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxSerialLength bounds the length of a serial number.
const MaxSerialLength = 64

// NormalizeSerial returns the comparison key for a serial number: trimmed,
// NFC-normalized and case-folded.
func NormalizeSerial(serial string) string {
	s := norm.NFC.String(strings.TrimSpace(serial))
	return cases.Fold().String(s)
}

// SerialsMatch reports whether two serial numbers are the same, ignoring case.
func SerialsMatch(a, b string) bool {
	na := NormalizeSerial(a)
	return na != "" && na == NormalizeSerial(b)
}

// ValidateSerial checks that a serial number is non-empty, bounded, and made
// of letters, digits, '-', '/', '.' or spaces.
func ValidateSerial(serial string) error {
	s := strings.TrimSpace(serial)
	if s == "" {
		return fmt.Errorf("serial number required")
	}
	if len([]rune(s)) > MaxSerialLength {
		return fmt.Errorf("serial number longer than %d characters", MaxSerialLength)
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '-', r == '/', r == '.', r == ' ':
		default:
			return fmt.Errorf("serial number contains invalid character %q", r)
		}
	}
	return nil
}
