package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/tokenguard/token"
)

// TokenStore keeps refresh tokens in maps keyed by id and hash.
type TokenStore struct {
	mu     sync.Mutex
	byID   map[string]*token.RefreshToken
	byHash map[string]string
	now    func() time.Time
}

// NewTokenStore returns an empty store. now stamps ModifiedAt and defaults
// to time.Now.
func NewTokenStore(now func() time.Time) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{
		byID:   make(map[string]*token.RefreshToken),
		byHash: make(map[string]string),
		now:    now,
	}
}

func (s *TokenStore) GetByTokenHash(_ context.Context, tokenHash string) (*token.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, token.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// GetByID is used by tests to inspect stored state.
func (s *TokenStore) GetByID(_ context.Context, id string) (*token.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, token.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *TokenStore) GetActiveByUserID(_ context.Context, userID string) ([]*token.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*token.RefreshToken
	for _, t := range s.byID {
		if t.UserID == userID && t.Status == token.StatusActive {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *TokenStore) Insert(_ context.Context, t *token.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t)
}

func (s *TokenStore) insertLocked(t *token.RefreshToken) error {
	if _, exists := s.byHash[t.TokenHash]; exists {
		return token.ErrDuplicateHash
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.ModifiedAt = now
	s.byID[t.ID] = t.Clone()
	s.byHash[t.TokenHash] = t.ID
	return nil
}

func (s *TokenStore) Rotate(_ context.Context, old, next *token.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[old.ID]
	if !ok {
		return token.ErrNotFound
	}
	if cur.Status != token.StatusActive {
		return token.ErrStaleStatus
	}
	if err := s.insertLocked(next); err != nil {
		return err
	}
	s.writeLocked(cur, old)
	return nil
}

func (s *TokenStore) Transition(_ context.Context, t *token.RefreshToken, from token.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[t.ID]
	if !ok {
		return token.ErrNotFound
	}
	if cur.Status != from {
		return token.ErrStaleStatus
	}
	s.writeLocked(cur, t)
	return nil
}

func (s *TokenStore) MarkReusedAndRevokeChain(_ context.Context, t *token.RefreshToken, from token.Status, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[t.ID]
	if !ok {
		return nil, token.ErrNotFound
	}
	if cur.Status != from {
		return nil, token.ErrStaleStatus
	}
	s.writeLocked(cur, t)
	return s.revokeActiveLocked(t.UserID, now), nil
}

func (s *TokenStore) RevokeAllForUser(_ context.Context, userID string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeActiveLocked(userID, now), nil
}

func (s *TokenStore) revokeActiveLocked(userID string, now time.Time) []string {
	var ids []string
	for _, cur := range s.byID {
		if cur.UserID != userID || cur.Status != token.StatusActive {
			continue
		}
		at := now
		cur.Status = token.StatusRevoked
		cur.RevokedAt = &at
		cur.ModifiedAt = s.now()
		ids = append(ids, cur.ID)
	}
	sort.Strings(ids)
	return ids
}

func (s *TokenStore) writeLocked(cur, t *token.RefreshToken) {
	cur.Status = t.Status
	cur.ReplacedByID = t.ReplacedByID
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cur.RevokedAt = &at
	}
	cur.ModifiedAt = s.now()
	t.ModifiedAt = cur.ModifiedAt
}

func (s *TokenStore) DeleteExpiredByUserID(_ context.Context, userID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cur := range s.byID {
		if cur.UserID == userID && cur.IsExpired(now) {
			s.deleteLocked(id, cur)
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cur := range s.byID {
		if limit > 0 && n >= limit {
			break
		}
		if cur.IsExpired(now) {
			s.deleteLocked(id, cur)
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) deleteLocked(id string, cur *token.RefreshToken) {
	delete(s.byHash, cur.TokenHash)
	delete(s.byID, id)
}

// Len returns the number of stored tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
