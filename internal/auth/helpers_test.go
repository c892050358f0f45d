package auth

import (
	"context"
	"testing"
	"time"

	"github.com/HerbHall/creditdesk/internal/store"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key-that-is-32-bytes!"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testAuthority struct {
	svc     *Service
	users   UserStore
	revoked Revoker
	tokens  *TokenService
	clock   *clockwork.FakeClock
}

// newAuthority builds a Service on an in-memory SQLite database with a fake
// clock and the cheapest bcrypt cost.
func newAuthority(t *testing.T) *testAuthority {
	t.Helper()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	users, err := NewSQLUserStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLUserStore: %v", err)
	}
	clock := clockwork.NewFakeClockAt(epoch)
	revoked, err := NewSQLRevoker(ctx, db, clock)
	if err != nil {
		t.Fatalf("NewSQLRevoker: %v", err)
	}
	return buildAuthority(t, users, revoked, clock)
}

// newMemoryAuthority is newAuthority without a database.
func newMemoryAuthority(t *testing.T) *testAuthority {
	t.Helper()
	return buildAuthority(t, NewMemoryUserStore(), NewMemoryRevoker(), clockwork.NewFakeClockAt(epoch))
}

func buildAuthority(t *testing.T, users UserStore, revoked Revoker, clock *clockwork.FakeClock) *testAuthority {
	t.Helper()
	tokens, err := NewTokenService([]byte(testSecret), TokenOptions{
		TTL:      24 * time.Hour,
		Issuer:   "creditdesk",
		Audience: "credit-repair-platform",
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc := NewService(users, revoked, tokens, ServiceOptions{
		BcryptCost: bcrypt.MinCost,
		Clock:      clock,
	}, zap.NewNop())
	return &testAuthority{svc: svc, users: users, revoked: revoked, tokens: tokens, clock: clock}
}

func (a *testAuthority) register(t *testing.T, email, password string, role Role) *User {
	t.Helper()
	u, err := a.svc.Register(context.Background(), RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Test",
		LastName:  "User",
		Role:      string(role),
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return u
}

func (a *testAuthority) login(t *testing.T, email, password string) string {
	t.Helper()
	s, err := a.svc.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return s.AccessToken
}
