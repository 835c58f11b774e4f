// Package scpi holds helpers for SCPI command syntax.
package scpi

import (
	"fmt"
	"strings"
)

// Keyword is a SCPI mnemonic written in mixed case, e.g. "MEASure": the
// upper case letters and any trailing digits form the short form.
type Keyword struct {
	long  string
	short string
}

// Parse checks s has the form <upper><lower><digits> with at least one upper
// case letter.
func Parse(s string) (Keyword, error) {
	var upper, lower, digits strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper.WriteRune(r)
		case r >= 'a' && r <= 'z':
			lower.WriteRune(r)
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		default:
			return Keyword{}, fmt.Errorf("invalid keyword %q: must be alphanumeric", s)
		}
	}
	if upper.Len() == 0 {
		return Keyword{}, fmt.Errorf("invalid keyword %q: must start with an upper case letter", s)
	}
	if s != upper.String()+lower.String()+digits.String() {
		return Keyword{}, fmt.Errorf("invalid keyword %q: must be of the form <upper><lower><digits>", s)
	}
	return Keyword{long: s, short: upper.String() + digits.String()}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Keyword {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Keyword) String() string { return k.long }

// Short returns the abbreviated form, "MEAS" for "MEASure".
func (k Keyword) Short() string { return k.short }

// Long returns the full form in upper case.
func (k Keyword) Long() string { return strings.ToUpper(k.long) }

// Wire returns the short form, which is what commands carry.
func (k Keyword) Wire() string { return k.short }

// Matches reports whether s is the long or short form, ignoring case.
// Partial abbreviations do not match.
func (k Keyword) Matches(s string) bool {
	return strings.EqualFold(s, k.long) || strings.EqualFold(s, k.short)
}
