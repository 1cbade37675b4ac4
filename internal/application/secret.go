package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidSecretHash         = errors.New("invalid secret hash format")
	ErrIncompatibleSecretVersion = errors.New("incompatible secret hash version")
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashSecret derives an encoded argon2id hash of secret with a random salt.
func HashSecret(secret string, params Argon2idParams) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	// $argon2id$v=19$m=...,t=...,p=...$salt$key
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifySecret checks candidate against an encoded hash in constant time.
// A mismatch yields ErrUnauthorized.
func VerifySecret(encoded, candidate string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidSecretHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}
	if version != argon2.Version {
		return ErrIncompatibleSecretVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}

	got := argon2.IDKey([]byte(candidate), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(want)))
	if subtle.ConstantTimeCompare(want, got) == 1 {
		return nil
	}
	return ErrUnauthorized
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
