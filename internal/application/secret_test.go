package application

import (
	"errors"
	"testing"
)

var testArgon2idParams = Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestHashAndVerifySecret(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("cron-secret", testArgon2idParams)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if err := VerifySecret(hash, "cron-secret"); err != nil {
		t.Fatalf("expected matching secret to verify, got %v", err)
	}
	if err := VerifySecret(hash, "guess"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong secret, got %v", err)
	}
	if err := VerifySecret("plain-text", "cron-secret"); !errors.Is(err, ErrInvalidSecretHash) {
		t.Fatalf("expected ErrInvalidSecretHash, got %v", err)
	}

	again, err := HashSecret("cron-secret", testArgon2idParams)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if again == hash {
		t.Fatalf("expected a fresh salt per hash")
	}

	if _, err := HashSecret("", testArgon2idParams); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer  abc ", token: "abc", ok: true},
		{header: "Basic abc", ok: false},
		{header: "Bearer", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}
