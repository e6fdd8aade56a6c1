// Package handles validates user-chosen handles. Validate is the single
// rule set shared by the availability check and the commit path.
package handles

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
)

const (
	MinLength = 3
	MaxLength = 20
)

// Reason identifies which rule a candidate handle broke.
type Reason string

const (
	TooShort          Reason = "too_short"
	TooLong           Reason = "too_long"
	InvalidCharacters Reason = "invalid_characters"
	Reserved          Reason = "reserved"
)

var (
	ErrTooShort          = errors.New("handle too short")
	ErrTooLong           = errors.New("handle too long")
	ErrInvalidCharacters = errors.New("handle contains invalid characters")
	ErrReserved          = errors.New("handle is reserved")
)

var reasonErrors = map[Reason]error{
	TooShort:          ErrTooShort,
	TooLong:           ErrTooLong,
	InvalidCharacters: ErrInvalidCharacters,
	Reserved:          ErrReserved,
}

var reserved = map[string]struct{}{
	"admin":   {},
	"api":     {},
	"www":     {},
	"mail":    {},
	"root":    {},
	"support": {},
	"help":    {},
	"about":   {},
	"contact": {},
}

// Violation is returned for a rejected handle. It matches both
// common.ErrValidation and the sentinel for its Reason with errors.Is.
type Violation struct {
	Reason  Reason
	Message string
}

func (v *Violation) Error() string {
	return v.Message
}

func (v *Violation) Unwrap() []error {
	return []error{reasonErrors[v.Reason], common.ErrValidation}
}

// Validate checks candidate and returns its normalized (lowercase) form.
// Rules run in order and the first failure wins: length, character set,
// reserved words.
func Validate(candidate string) (string, error) {
	n := utf8.RuneCountInString(candidate)
	if n < MinLength {
		return "", &Violation{Reason: TooShort, Message: fmt.Sprintf("Username must be at least %d characters", MinLength)}
	}
	if n > MaxLength {
		return "", &Violation{Reason: TooLong, Message: fmt.Sprintf("Username must be at most %d characters", MaxLength)}
	}

	normalized := strings.ToLower(candidate)
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return "", &Violation{Reason: InvalidCharacters, Message: "Username can only contain letters, numbers, and underscores"}
		}
	}

	if _, ok := reserved[normalized]; ok {
		return "", &Violation{Reason: Reserved, Message: fmt.Sprintf("Username %q is reserved", normalized)}
	}

	return normalized, nil
}
