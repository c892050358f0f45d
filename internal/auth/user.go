package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role is a principal's authorization level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

// ValidRoles is the fixed set of roles a principal may hold.
var ValidRoles = map[Role]bool{
	RoleAdmin:  true,
	RoleStaff:  true,
	RoleClient: true,
}

// ErrInvalidRole is returned for a role outside ValidRoles.
var ErrInvalidRole = errors.New("invalid role: must be admin, staff, or client")

// ParseRole validates s. An empty string means the default role, client.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleClient, nil
	}
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !ValidRoles[r] {
		return "", ErrInvalidRole
	}
	return r, nil
}

// User is a registered principal. Users are never deleted; Active is the
// only way to take an account out of service.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastLogin    time.Time `json:"last_login,omitzero"`
}

// NormalizeEmail is applied to every email before it is stored or looked up,
// so "Ada@Example.com" and "ada@example.com" name the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword bcrypt-hashes password. A zero cost selects bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validationError marks a rejected input field; handlers answer it with 400.
type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

// ValidatePassword enforces the minimum password policy. bcrypt ignores
// everything past 72 bytes, so longer passwords are refused outright.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return &validationError{"password must be at least 8 characters"}
	}
	if len(password) > 72 {
		return &validationError{"password must be at most 72 bytes"}
	}
	return nil
}
