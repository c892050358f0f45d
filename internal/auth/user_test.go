package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_roundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash equals plaintext")
	}
	if !CheckPassword(hash, "correct horse battery") {
		t.Error("CheckPassword rejected the right password")
	}
	if CheckPassword(hash, "wrong horse battery") {
		t.Error("CheckPassword accepted a wrong password")
	}
}

func TestHashPassword_salted(t *testing.T) {
	a, _ := HashPassword("samepassword", bcrypt.MinCost)
	b, _ := HashPassword("samepassword", bcrypt.MinCost)
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestHashPassword_cost(t *testing.T) {
	hash, err := HashPassword("samepassword", 11)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost: %v", err)
	}
	if cost != 11 {
		t.Errorf("cost = %d, want 11", cost)
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"short", false},
		{"1234567", false},
		{"12345678", true},
		{strings.Repeat("x", 72), true},
		{strings.Repeat("x", 73), false},
	}
	for _, tc := range tests {
		err := ValidatePassword(tc.password)
		if (err == nil) != tc.ok {
			t.Errorf("ValidatePassword(len %d) err = %v, want ok=%v", len(tc.password), err, tc.ok)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"", RoleClient, false},
		{"client", RoleClient, false},
		{"Admin", RoleAdmin, false},
		{" staff ", RoleStaff, false},
		{"superuser", "", true},
	}
	for _, tc := range tests {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidRole) {
				t.Errorf("ParseRole(%q) err = %v, want ErrInvalidRole", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseRole(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ada@Example.COM "); got != "ada@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
