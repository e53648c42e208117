package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

const (
	// DefaultRawSize is the number of random bytes in a raw refresh token.
	DefaultRawSize = 32
	minRawSize     = 16
	maxEncodedSize = 512
)

// Generator produces raw refresh tokens and their one-way hashes.
type Generator struct {
	size   int
	random io.Reader
}

// NewGenerator returns a generator producing size random bytes per token.
// Sizes below 16 bytes are raised to DefaultRawSize.
func NewGenerator(size int) *Generator {
	if size < minRawSize {
		size = DefaultRawSize
	}
	return &Generator{size: size, random: rand.Reader}
}

// Generate returns a base64url raw token for the client and the hex SHA-256
// hash that gets persisted.
func (g *Generator) Generate() (raw string, hash string, err error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, Hash(raw), nil
}

// Hash computes the persisted form of a raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CheckRaw rejects values that cannot have been produced by a Generator
// before any store lookup happens.
func CheckRaw(raw string) error {
	if raw == "" || len(raw) > maxEncodedSize {
		return errors.New("malformed refresh token")
	}
	if _, err := base64.RawURLEncoding.DecodeString(raw); err != nil {
		return errors.New("malformed refresh token")
	}
	return nil
}
