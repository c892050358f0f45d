package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/HerbHall/creditdesk/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func revokers(t *testing.T) map[string]Revoker {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlRevoker, err := NewSQLRevoker(context.Background(), db, nil)
	if err != nil {
		t.Fatalf("NewSQLRevoker: %v", err)
	}

	out := map[string]Revoker{
		"memory": NewMemoryRevoker(),
		"sqlite": sqlRevoker,
	}
	// Redis runs only against a real server.
	if addr := os.Getenv("CD_TEST_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { client.Close() })
		out["redis"] = NewRedisRevoker(client, "creditdesk-test:"+t.Name()+":", nil)
	}
	return out
}

func TestRevoker_contract(t *testing.T) {
	for name, r := range revokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			exp := time.Now().Add(time.Hour)

			revoked, err := r.IsRevoked(ctx, "token-a")
			if err != nil || revoked {
				t.Fatalf("IsRevoked before revoke = %v, %v", revoked, err)
			}
			for i := 0; i < 2; i++ {
				if err := r.Revoke(ctx, "token-a", exp); err != nil {
					t.Fatalf("Revoke #%d: %v", i+1, err)
				}
			}
			revoked, err = r.IsRevoked(ctx, "token-a")
			if err != nil || !revoked {
				t.Fatalf("IsRevoked after revoke = %v, %v", revoked, err)
			}
			if revoked, _ := r.IsRevoked(ctx, "token-b"); revoked {
				t.Error("unrelated token reported revoked")
			}
			if r.Backend() != name {
				t.Errorf("Backend() = %q, want %q", r.Backend(), name)
			}
		})
	}
}

func TestRevoker_sweep(t *testing.T) {
	for name, r := range revokers(t) {
		if name == "redis" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = r.Revoke(ctx, "old", epoch.Add(time.Hour))
			_ = r.Revoke(ctx, "new", epoch.Add(48*time.Hour))

			n, err := r.Sweep(ctx, epoch.Add(24*time.Hour))
			if err != nil {
				t.Fatalf("Sweep: %v", err)
			}
			if n != 1 {
				t.Errorf("swept %d, want 1", n)
			}
			if revoked, _ := r.IsRevoked(ctx, "new"); !revoked {
				t.Error("live entry was swept")
			}
			if size, _ := r.Len(ctx); size != 1 {
				t.Errorf("Len = %d, want 1", size)
			}
		})
	}
}

func TestRevoker_keepsLatestExpiry(t *testing.T) {
	r := NewMemoryRevoker()
	ctx := context.Background()
	_ = r.Revoke(ctx, "t", epoch.Add(48*time.Hour))
	_ = r.Revoke(ctx, "t", epoch.Add(time.Hour))

	if n, _ := r.Sweep(ctx, epoch.Add(24*time.Hour)); n != 0 {
		t.Errorf("swept %d; a later expiry must not be shortened", n)
	}
}

func TestSQLRevoker_usesInjectedClock(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	r, err := NewSQLRevoker(ctx, db, clockwork.NewFakeClockAt(epoch))
	if err != nil {
		t.Fatalf("NewSQLRevoker: %v", err)
	}
	if err := r.Revoke(ctx, "token-a", epoch.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	var revokedAt int64
	if err := db.DB().QueryRowContext(ctx, `SELECT revoked_at FROM auth_revoked_tokens`).Scan(&revokedAt); err != nil {
		t.Fatalf("read revoked_at: %v", err)
	}
	if revokedAt != epoch.Unix() {
		t.Errorf("revoked_at = %d, want %d", revokedAt, epoch.Unix())
	}
}

func TestRedisRevoker_ttlFollowsClock(t *testing.T) {
	addr := os.Getenv("CD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	// The token expires an hour after the fake now, long before the real now.
	r := NewRedisRevoker(client, "creditdesk-test:"+t.Name()+":", clockwork.NewFakeClockAt(epoch))
	if err := r.Revoke(ctx, "token-a", epoch.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	ttl, err := client.TTL(ctx, r.key("token-a")).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl < 59*time.Minute {
		t.Errorf("ttl = %s, want about 1h", ttl)
	}
}

func TestNewRevoker(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()

	for _, backend := range []string{"memory", "sqlite", ""} {
		r, closer, err := NewRevoker(ctx, RevocationConfig{Backend: backend}, db, nil)
		if err != nil {
			t.Fatalf("NewRevoker(%q): %v", backend, err)
		}
		if r == nil || closer == nil {
			t.Fatalf("NewRevoker(%q) returned nil", backend)
		}
		_ = closer()
	}
	if _, _, err := NewRevoker(ctx, RevocationConfig{Backend: "redis"}, db, nil); err == nil {
		t.Error("redis without address accepted")
	}
	if _, _, err := NewRevoker(ctx, RevocationConfig{Backend: "etcd"}, db, nil); err == nil {
		t.Error("unknown backend accepted")
	}
}
