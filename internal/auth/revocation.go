package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
)

// Revoker is the revocation set. Entries are keyed by HashToken(token) and
// remember the token's own expiry, after which they may be swept: an expired
// token is rejected before revocation is ever consulted.
type Revoker interface {
	// Revoke adds token to the set. Revoking twice is a no-op.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Sweep drops entries whose token expired before now and reports how many.
	Sweep(ctx context.Context, now time.Time) (int, error)
	// Len reports the number of entries, or -1 when the backend cannot tell.
	Len(ctx context.Context) (int, error)
	Backend() string
}

var (
	_ Revoker = (*MemoryRevoker)(nil)
	_ Revoker = (*SQLRevoker)(nil)
)

// MemoryRevoker keeps the set in process memory.
type MemoryRevoker struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryRevoker returns an empty in-memory set.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{entries: make(map[string]time.Time)}
}

func (m *MemoryRevoker) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	key := HashToken(token)
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.entries[key]; !ok || expiresAt.After(prev) {
		m.entries[key] = expiresAt
	}
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[HashToken(token)]
	return ok, nil
}

func (m *MemoryRevoker) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, exp := range m.entries {
		if exp.Before(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRevoker) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryRevoker) Backend() string { return "memory" }

// SQLRevoker persists the set in the auth_revoked_tokens table so that
// revocations survive a restart.
type SQLRevoker struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLRevoker applies the auth migrations and returns a revoker on store.
// A nil clock means the real one.
func NewSQLRevoker(ctx context.Context, store platform.Store, clock clockwork.Clock) (*SQLRevoker, error) {
	if err := store.Migrate(ctx, "auth", migrations); err != nil {
		return nil, fmt.Errorf("auth migrations: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLRevoker{db: store.DB(), clock: clock}, nil
}

func (s *SQLRevoker) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_revoked_tokens (token_hash, expires_at, revoked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token_hash) DO UPDATE SET expires_at = MAX(expires_at, excluded.expires_at)`,
		HashToken(token), expiresAt.Unix(), s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *SQLRevoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_revoked_tokens WHERE token_hash = ?`, HashToken(token),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

func (s *SQLRevoker) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_revoked_tokens WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep revocations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLRevoker) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_revoked_tokens`).Scan(&n)
	return n, err
}

func (s *SQLRevoker) Backend() string { return "sqlite" }
