package password

// Chain hashes with its primary hasher and verifies with whichever member
// recognizes the stored format.
type Chain struct {
	primary Hasher
	legacy  []Hasher
}

// NewChain builds a chain. primary must not be nil.
func NewChain(primary Hasher, legacy ...Hasher) *Chain {
	return &Chain{primary: primary, legacy: legacy}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	for _, h := range append([]Hasher{c.primary}, c.legacy...) {
		if r, ok := h.(Recognizer); ok && !r.Recognizes(encodedHash) {
			continue
		}
		return h.Verify(password, encodedHash)
	}
	return false, ErrUnsupportedHash
}
