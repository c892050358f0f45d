package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/creditdesk/pkg/platform"
)

// UserStore persists principals. Create must be an atomic insert-if-absent on
// the normalized email: of two concurrent registrations for one address,
// exactly one succeeds. CreateFirst inserts only into an empty store and
// returns ErrSetupComplete otherwise, with the same atomicity.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	CreateFirst(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, u *User) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
}

var _ UserStore = (*SQLUserStore)(nil)

// SQLUserStore keeps principals in the auth_users table.
type SQLUserStore struct {
	db *sql.DB
}

// NewSQLUserStore runs the auth migrations and returns the store.
func NewSQLUserStore(ctx context.Context, store platform.Store) (*SQLUserStore, error) {
	if err := store.Migrate(ctx, "auth", migrations); err != nil {
		return nil, fmt.Errorf("auth migrations: %w", err)
	}
	return &SQLUserStore{db: store.DB()}, nil
}

func (s *SQLUserStore) Create(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_users (id, email, first_name, last_name, password_hash, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.Role), u.Active,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateEmail
	}
	return nil
}

func (s *SQLUserStore) CreateFirst(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_users (id, email, first_name, last_name, password_hash, role, active, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM auth_users)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.Role), u.Active,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create first user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSetupComplete
	}
	return nil
}

func (s *SQLUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE id = ?`, id))
}

func (s *SQLUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE email = ?`, email))
}

func (s *SQLUserStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM auth_users ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SQLUserStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_users SET first_name = ?, last_name = ?, role = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		u.FirstName, u.LastName, string(u.Role), u.Active, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLUserStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_users SET last_login = ?, updated_at = ? WHERE id = ?`, at, at, id)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

func (s *SQLUserStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users`).Scan(&n)
	return n, err
}

const userColumns = `id, email, first_name, last_name, password_hash, role, active,
	created_at, updated_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var role string
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &role,
		&u.Active, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = Role(role)
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return &u, nil
}

var migrations = []platform.Migration{
	{
		Version:     1,
		Description: "create auth_users table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE auth_users (
					id            TEXT PRIMARY KEY,
					email         TEXT NOT NULL UNIQUE,
					first_name    TEXT NOT NULL DEFAULT '',
					last_name     TEXT NOT NULL DEFAULT '',
					password_hash TEXT NOT NULL,
					role          TEXT NOT NULL DEFAULT 'client',
					active        INTEGER NOT NULL DEFAULT 1,
					created_at    DATETIME NOT NULL,
					updated_at    DATETIME NOT NULL,
					last_login    DATETIME
				)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "create auth_revoked_tokens table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE auth_revoked_tokens (
					token_hash TEXT PRIMARY KEY,
					expires_at INTEGER NOT NULL,
					revoked_at INTEGER NOT NULL
				)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_revoked_tokens_expiry ON auth_revoked_tokens(expires_at)`)
			return err
		},
	},
}
