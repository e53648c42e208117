package password

import "errors"

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrUnsupportedHash is returned when no verifier recognizes the hash.
	ErrUnsupportedHash = errors.New("unsupported password hash")
	// ErrPasswordTooShort is returned by Hash for passwords under the minimum.
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
)

// Hasher produces and checks encoded password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Recognizer is implemented by hashers that can tell whether an encoded
// hash belongs to them.
type Recognizer interface {
	Recognizes(encodedHash string) bool
}
