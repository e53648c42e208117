package postgres

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/MrEthical07/tokenguard/user"
	"github.com/jackc/pgx/v5"
)

const userSelect = `
	SELECT u.id, u.email, u.username, u.password_hash, u.deleted, u.deleted_at,
		COALESCE(array_agg(ur.role_id ORDER BY ur.role_id) FILTER (WHERE ur.role_id IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
`

// UserStore implements user.Repository and user.RoleRepository.
type UserStore struct {
	tx *TxManager
}

func NewUserStore(tx *TxManager) *UserStore {
	return &UserStore{tx: tx}
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u        user.User
		email    string
		username string
		roleIDs  []int64
	)
	if err := row.Scan(&u.ID, &email, &username, &u.PasswordHash, &u.Deleted, &u.DeletedAt, &roleIDs); err != nil {
		return nil, err
	}

	var err error
	if u.Email, err = user.NewEmail(email); err != nil {
		return nil, err
	}
	if username != "" {
		if u.Username, err = user.NewUsername(username); err != nil {
			return nil, err
		}
	}
	u.Roles = make([]user.RoleID, len(roleIDs))
	for i, id := range roleIDs {
		u.Roles[i] = user.RoleID(id)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	return s.getOne(ctx, userSelect+` WHERE u.id = $1 GROUP BY u.id`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email user.Email) (*user.User, error) {
	return s.getOne(ctx, userSelect+` WHERE u.email = $1 GROUP BY u.id`, email.String())
}

func (s *UserStore) getOne(ctx context.Context, query string, arg string) (*user.User, error) {
	u, err := scanUser(s.tx.conn(ctx).QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

// SaveRoles replaces the stored role set of u with u.Roles. The user row
// is locked before the stored set is compared with previous.
func (s *UserStore) SaveRoles(ctx context.Context, u *user.User, previous []user.RoleID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := s.tx.conn(ctx)
		tag, err := q.Exec(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, u.ID)
		if err != nil {
			return wrap(err)
		}
		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}

		var stored []int64
		if err := q.QueryRow(ctx, `
			SELECT COALESCE(array_agg(role_id ORDER BY role_id), '{}')
			FROM user_roles WHERE user_id = $1
		`, u.ID).Scan(&stored); err != nil {
			return wrap(err)
		}
		current := make([]user.RoleID, len(stored))
		for i, id := range stored {
			current[i] = user.RoleID(id)
		}
		if !slices.Equal(current, user.NormalizeRoleIDs(previous)) {
			return user.ErrStaleRoles
		}
		return writeRoles(ctx, q, u)
	})
}

func writeRoles(ctx context.Context, q querier, u *user.User) error {
	if _, err := q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, u.ID); err != nil {
		return wrap(err)
	}
	if len(u.Roles) == 0 {
		return nil
	}
	ids := make([]int64, len(u.Roles))
	for i, id := range u.Roles {
		ids[i] = int64(id)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1::text, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, u.ID, ids)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// CreateUser inserts u with its roles. It is used for seeding.
func (s *UserStore) CreateUser(ctx context.Context, u *user.User) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.tx.conn(ctx).Exec(ctx, `
			INSERT INTO users (id, email, username, password_hash, deleted, deleted_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, u.ID, u.Email.String(), u.Username.String(), u.PasswordHash, u.Deleted, u.DeletedAt, time.Now().UTC())
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		if err != nil {
			return wrap(err)
		}
		return writeRoles(ctx, s.tx.conn(ctx), u)
	})
}

// UpsertRole writes role reference data and its permission codes.
func (s *UserStore) UpsertRole(ctx context.Context, r user.Role) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := s.tx.conn(ctx)
		if _, err := q.Exec(ctx, `
			INSERT INTO roles (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, int64(r.ID), r.Name); err != nil {
			return wrap(err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, int64(r.ID)); err != nil {
			return wrap(err)
		}
		if len(r.Permissions) == 0 {
			return nil
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO role_permissions (role_id, code)
			SELECT DISTINCT $1::bigint, unnest($2::text[])
		`, int64(r.ID), r.Permissions); err != nil {
			return wrap(err)
		}
		return nil
	})
}

// GetByIDs returns the roles that exist among ids, ordered by id.
func (s *UserStore) GetByIDs(ctx context.Context, ids []user.RoleID) ([]user.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}

	rows, err := s.tx.conn(ctx).Query(ctx, `
		SELECT r.id, r.name,
			COALESCE(array_agg(p.code ORDER BY p.code) FILTER (WHERE p.code IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions p ON p.role_id = r.id
		WHERE r.id = ANY($1)
		GROUP BY r.id
		ORDER BY r.id
	`, raw)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []user.Role
	for rows.Next() {
		var (
			id   int64
			role user.Role
		)
		if err := rows.Scan(&id, &role.Name, &role.Permissions); err != nil {
			return nil, wrap(err)
		}
		role.ID = user.RoleID(id)
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func (s *UserStore) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	var exists bool
	q := s.tx.conn(ctx)
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, wrap(err)
	}
	if !exists {
		return nil, user.ErrNotFound
	}

	rows, err := q.Query(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN role_permissions p ON p.role_id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY p.code
	`, userID)
	if err != nil {
		return nil, wrap(err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap(err)
	}
	return perms, nil
}
