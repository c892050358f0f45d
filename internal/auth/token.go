package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MinSecretLength is the shortest HS256 signing secret accepted.
const MinSecretLength = 32

// Claims is the payload of an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// TokenOptions configures a TokenService.
type TokenOptions struct {
	TTL      time.Duration
	Issuer   string
	Audience string
	Clock    clockwork.Clock
}

// TokenService signs and parses HS256 access tokens. It knows nothing about
// revocation or principals; Service layers those checks on top.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	clock    clockwork.Clock
}

// NewTokenService returns ErrWeakSecret when secret is shorter than
// MinSecretLength, so a misconfigured server cannot issue tokens at all.
func NewTokenService(secret []byte, opts TokenOptions) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &TokenService{
		secret:   secret,
		ttl:      opts.TTL,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		clock:    opts.Clock,
	}, nil
}

// TTL returns the access token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a new token for user.
func (s *TokenService) Issue(user *User) (string, *Claims, error) {
	now := s.clock.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// Parse checks signature, issuer, audience and expiry. The signature is
// checked before the time-based claims, so a forged expired token reports
// ErrMalformedToken rather than ErrTokenExpired.
func (s *TokenService) Parse(token string) (*Claims, error) {
	claims, err := s.parse(token, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// Expiry returns the expiry of a correctly signed token, whether or not it
// has already passed. ok is false when the token cannot be authenticated.
func (s *TokenService) Expiry(token string) (expiresAt time.Time, ok bool) {
	claims, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *TokenService) parse(token string, extra ...jwt.ParserOption) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	opts = append(opts, extra...)

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// HashToken returns the SHA-256 hex digest of token. Revocation entries are
// keyed by this digest, never by the raw token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
