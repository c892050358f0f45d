package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrSetupComplete is returned by Setup once any principal exists.
var ErrSetupComplete = errors.New("setup already completed")

// RegisterRequest carries the fields accepted by Register.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role,omitempty"`
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Service is the token authority: it registers principals, issues and
// verifies access tokens, and maintains the revocation set.
type Service struct {
	users      UserStore
	revoked    Revoker
	tokens     *TokenService
	bcryptCost int
	clock      clockwork.Clock
	logger     *zap.Logger

	// dummyHash is compared against when the email is unknown so that a
	// miss costs the same bcrypt work as a wrong password.
	dummyHash string
}

// ServiceOptions holds the optional collaborators of a Service.
type ServiceOptions struct {
	BcryptCost int
	Clock      clockwork.Clock
}

// NewService wires the authority together.
func NewService(users UserStore, revoked Revoker, tokens *TokenService, opts ServiceOptions, logger *zap.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	dummy, _ := HashPassword("creditdesk-timing-equalizer", opts.BcryptCost)
	return &Service{
		users:      users,
		revoked:    revoked,
		tokens:     tokens,
		bcryptCost: opts.BcryptCost,
		clock:      opts.Clock,
		logger:     logger,
		dummyHash:  dummy,
	}
}

// Tokens exposes the token service, e.g. for the health endpoint.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Revoker exposes the revocation set for the background sweeper.
func (s *Service) Revoker() Revoker { return s.revoked }

// Register creates an active principal. An empty role means client.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	user, err := s.newUser(req)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.logger.Info("principal registered",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// Setup registers the first principal as admin. It fails with
// ErrSetupComplete as soon as any principal exists; of concurrent callers on
// an empty store exactly one succeeds.
func (s *Service) Setup(ctx context.Context, req RegisterRequest) (*User, error) {
	if n, err := s.users.Count(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	} else if n > 0 {
		return nil, ErrSetupComplete
	}

	req.Role = string(RoleAdmin)
	user, err := s.newUser(req)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateFirst(ctx, user); err != nil {
		if errors.Is(err, ErrSetupComplete) {
			return nil, ErrSetupComplete
		}
		return nil, fmt.Errorf("setup: %w", err)
	}

	s.logger.Info("initial admin created", zap.String("user_id", user.ID))
	return user, nil
}

// newUser validates req and builds an active principal with a hashed password.
func (s *Service) newUser(req RegisterRequest) (*User, error) {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, &validationError{"email is required"}
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	return &User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NeedsSetup reports whether no principal has been registered yet.
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n == 0, nil
}

// Login authenticates email and password. Unknown email and wrong password
// both return ErrInvalidCredentials; ErrAccountInactive is only reported once
// the password has been proven.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			CheckPassword(s.dummyHash, password)
			s.fail("login", ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.fail("login", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		s.fail("login", ErrAccountInactive)
		return nil, ErrAccountInactive
	}

	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin, user.UpdatedAt = now, now

	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return &Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user,
	}, nil
}

// Verify validates token in a fixed order: signature and shape, expiry,
// revocation, then the principal's existence and active flag. Every failure
// wraps ErrInvalidToken.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, s.fail("verify", err)
	}

	revoked, err := s.revoked.IsRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, s.fail("verify", ErrTokenRevoked)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, s.fail("verify", ErrPrincipalMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	if !user.Active {
		return nil, s.fail("verify", ErrPrincipalInactive)
	}
	return claims, nil
}

// Logout adds token to the revocation set. It never fails because of the
// token itself: unparseable tokens are recorded for one TTL, and revoking
// twice has no further effect.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	expiresAt, ok := s.tokens.Expiry(token)
	if !ok {
		expiresAt = s.clock.Now().Add(s.tokens.TTL())
	}
	if err := s.revoked.Revoke(ctx, token, expiresAt); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Debug("token revoked", zap.Time("expires_at", expiresAt))
	return nil
}

// Authorize returns claims unchanged when their role is in allowed and
// ErrForbidden otherwise. Nil claims are never authorized.
func Authorize(claims *Claims, allowed ...Role) (*Claims, error) {
	if claims == nil || !slices.Contains(allowed, claims.Role) {
		return nil, ErrForbidden
	}
	return claims, nil
}

// GetUser returns one principal.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ListUsers returns all principals.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

// CountUsers returns the number of registered principals.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}

// UserUpdate lists the administrative changes to a principal; nil fields are
// left alone.
type UserUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Role      *string `json:"role,omitempty"`
	Active    *bool   `json:"is_active,omitempty"`
}

// UpdateUser applies an administrative change. Deactivation takes effect on
// the principal's existing tokens at their next verification.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		role, err := ParseRole(*upd.Role)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}
	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.Active != nil {
		user.Active = *upd.Active
	}
	user.UpdatedAt = s.clock.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("principal updated",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Bool("active", user.Active),
	)
	return user, nil
}

// SweepRevocations drops revocation entries for tokens that have expired.
func (s *Service) SweepRevocations(ctx context.Context) (int, error) {
	return s.revoked.Sweep(ctx, s.clock.Now())
}

// fail records a failure kind and returns err unchanged.
func (s *Service) fail(op string, err error) error {
	kind := FailureKind(err)
	authFailures.WithLabelValues(op, kind).Inc()
	s.logger.Debug("authentication failed", zap.String("op", op), zap.String("kind", kind))
	return err
}
