package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/token"
	"github.com/jackc/pgx/v5"
)

const tokenColumns = `id, token_hash, user_id, device_id, status, expires_at, revoked_at, replaced_by_id, created_at, modified_at`

// TokenStore implements token.Repository. Status changes are conditional
// updates on the stored status. Rotation, the reuse cascade and revoke-all
// also take a transaction-scoped advisory lock on the user, so a cascade
// never runs while a rotation for the same user is uncommitted.
type TokenStore struct {
	tx  *TxManager
	now func() time.Time
}

func NewTokenStore(tx *TxManager, now func() time.Time) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{tx: tx, now: now}
}

func scanToken(row pgx.Row) (*token.RefreshToken, error) {
	var (
		t      token.RefreshToken
		status string
	)
	err := row.Scan(
		&t.ID,
		&t.TokenHash,
		&t.UserID,
		&t.DeviceID,
		&status,
		&t.ExpiresAt,
		&t.RevokedAt,
		&t.ReplacedByID,
		&t.CreatedAt,
		&t.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Status, err = token.ParseStatus(status); err != nil {
		return nil, err
	}
	normalizeTimes(&t)
	return &t, nil
}

func normalizeTimes(t *token.RefreshToken) {
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.ModifiedAt = t.ModifiedAt.UTC()
	if t.RevokedAt != nil {
		at := t.RevokedAt.UTC()
		t.RevokedAt = &at
	}
}

func (s *TokenStore) GetByTokenHash(ctx context.Context, tokenHash string) (*token.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	t, err := scanToken(s.tx.conn(ctx).QueryRow(ctx, query, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, token.ErrNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	return t, nil
}

func (s *TokenStore) GetActiveByUserID(ctx context.Context, userID string) ([]*token.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens
		WHERE user_id = $1 AND status = 'active' ORDER BY created_at`
	rows, err := s.tx.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []*token.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, wrap(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func (s *TokenStore) Insert(ctx context.Context, t *token.RefreshToken) error {
	return s.insert(ctx, s.tx.conn(ctx), t)
}

func (s *TokenStore) insert(ctx context.Context, q querier, t *token.RefreshToken) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.ModifiedAt = now

	query := `
		INSERT INTO refresh_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.Exec(ctx, query,
		t.ID,
		t.TokenHash,
		t.UserID,
		t.DeviceID,
		t.Status.String(),
		t.ExpiresAt,
		t.RevokedAt,
		t.ReplacedByID,
		t.CreatedAt,
		t.ModifiedAt,
	)
	if isUniqueViolation(err) {
		return token.ErrDuplicateHash
	}
	if err != nil {
		return wrap(err)
	}
	return nil
}

// compareAndSet writes t's mutable columns if the stored status is from.
func (s *TokenStore) compareAndSet(ctx context.Context, q querier, t *token.RefreshToken, from token.Status) error {
	now := s.now()
	query := `
		UPDATE refresh_tokens
		SET status = $2, revoked_at = $3, replaced_by_id = $4, modified_at = $5
		WHERE id = $1 AND status = $6
	`
	tag, err := q.Exec(ctx, query, t.ID, t.Status.String(), t.RevokedAt, t.ReplacedByID, now, from.String())
	if err != nil {
		return wrap(err)
	}
	if tag.RowsAffected() == 1 {
		t.ModifiedAt = now
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
		return wrap(err)
	}
	if !exists {
		return token.ErrNotFound
	}
	return token.ErrStaleStatus
}

// lockUser serializes chain writes for userID until the surrounding
// transaction ends. Each later READ COMMITTED statement then sees every
// token the previous holder committed.
func lockUser(ctx context.Context, q querier, userID string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *TokenStore) Rotate(ctx context.Context, old, next *token.RefreshToken) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := s.tx.conn(ctx)
		if err := lockUser(ctx, q, old.UserID); err != nil {
			return err
		}
		if err := s.compareAndSet(ctx, q, old, token.StatusActive); err != nil {
			return err
		}
		return s.insert(ctx, q, next)
	})
}

func (s *TokenStore) Transition(ctx context.Context, t *token.RefreshToken, from token.Status) error {
	return s.compareAndSet(ctx, s.tx.conn(ctx), t, from)
}

func (s *TokenStore) MarkReusedAndRevokeChain(ctx context.Context, t *token.RefreshToken, from token.Status, now time.Time) ([]string, error) {
	var revoked []string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := s.tx.conn(ctx)
		if err := lockUser(ctx, q, t.UserID); err != nil {
			return err
		}
		if err := s.compareAndSet(ctx, q, t, from); err != nil {
			return err
		}
		ids, err := s.revokeActive(ctx, q, t.UserID, now)
		revoked = ids
		return err
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) ([]string, error) {
	var revoked []string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := s.tx.conn(ctx)
		if err := lockUser(ctx, q, userID); err != nil {
			return err
		}
		ids, err := s.revokeActive(ctx, q, userID, now)
		revoked = ids
		return err
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

func (s *TokenStore) revokeActive(ctx context.Context, q querier, userID string, now time.Time) ([]string, error) {
	query := `
		UPDATE refresh_tokens
		SET status = 'revoked', revoked_at = $2, modified_at = $3
		WHERE user_id = $1 AND status = 'active'
		RETURNING id
	`
	rows, err := q.Query(ctx, query, userID, now, s.now())
	if err != nil {
		return nil, wrap(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap(err)
	}
	return ids, nil
}

func (s *TokenStore) DeleteExpiredByUserID(ctx context.Context, userID string, now time.Time) (int, error) {
	tag, err := s.tx.conn(ctx).Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= $2`, userID, now)
	if err != nil {
		return 0, wrap(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		DELETE FROM refresh_tokens
		WHERE id IN (SELECT id FROM refresh_tokens WHERE expires_at <= $1 LIMIT $2)
	`
	tag, err := s.tx.conn(ctx).Exec(ctx, query, now, limit)
	if err != nil {
		return 0, wrap(err)
	}
	return int(tag.RowsAffected()), nil
}
