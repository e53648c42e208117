package user

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidUsername = errors.New("invalid username")
)

const maxEmailLength = 254

// Email is a syntactically valid, lower-cased address.
type Email struct {
	value string
}

// NewEmail validates and normalizes raw.
func NewEmail(raw string) (Email, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || len(v) > maxEmailLength {
		return Email{}, ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || addr.Name != "" {
		return Email{}, ErrInvalidEmail
	}
	at := strings.LastIndexByte(v, '@')
	if at <= 0 || !strings.Contains(v[at+1:], ".") {
		return Email{}, ErrInvalidEmail
	}
	return Email{value: v}, nil
}

// MustEmail is NewEmail for fixtures; it panics on invalid input.
func MustEmail(raw string) Email {
	e, err := NewEmail(raw)
	if err != nil {
		panic(err)
	}
	return e
}

func (e Email) String() string { return e.value }

// IsZero reports whether e was never set.
func (e Email) IsZero() bool { return e.value == "" }

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,32}$`)

// Username is a 3-32 character handle.
type Username struct {
	value string
}

// NewUsername validates raw.
func NewUsername(raw string) (Username, error) {
	v := strings.TrimSpace(raw)
	if !usernamePattern.MatchString(v) {
		return Username{}, ErrInvalidUsername
	}
	return Username{value: v}, nil
}

func (u Username) String() string { return u.value }
