// Package security implements the Security Gate pipeline applied to every
// tool call: authenticate, authorize, rate-limit, validate, sanitize, audit
// (spec §4.2).
package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/store"
)

// hashKey computes the SHA-256 digest of a plaintext key. A fixed-size
// cryptographic digest is exactly what crypto/sha256 is for; no
// third-party hashing library in the pack does anything different for
// this case (bcrypt/argon2-style slow hashing is for user passwords
// subject to offline brute force, not high-entropy generated API keys).
func hashKey(plaintext string) [32]byte {
	return sha256.Sum256([]byte(plaintext))
}

// generateKey mints a new random API key: 32 bytes of crypto/rand,
// base64url-encoded, prefixed so keys are visually recognizable.
func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "eck_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// BootstrapAdminKey mints an admin key if the Store has no keys at all yet,
// passing the plaintext exactly once to print and persisting only its
// hash (spec §4.2 "Bootstrapping").
func BootstrapAdminKey(ctx context.Context, st store.Store, print func(string)) error {
	plaintext, err := generateKey()
	if err != nil {
		return err
	}
	return BootstrapAdminKeyWithValue(ctx, st, plaintext, print)
}

// BootstrapAdminKeyWithValue is BootstrapAdminKey with the plaintext
// supplied rather than generated — spec §6.4 "admin bootstrap key
// material" lets an operator pin the value for reproducible deployments
// (e.g. provisioning the same key across a fleet) instead of reading a
// freshly minted one out of a log line.
func BootstrapAdminKeyWithValue(ctx context.Context, st store.Store, plaintext string, print func(string)) error {
	existing, err := st.ListApiKeys(ctx)
	if err != nil {
		return fmt.Errorf("check existing api keys: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	if len(plaintext) < 8 {
		return fmt.Errorf("admin bootstrap key must be at least 8 characters")
	}

	hash := hashKey(plaintext)
	key := &domain.ApiKey{
		ID:          domain.NewApiKeyID(),
		Hash:        hash,
		Prefix:      plaintext[:8],
		Permissions: []string{"*"},
		CreatedAt:   time.Now(),
	}
	if err := st.PutApiKey(ctx, key); err != nil {
		return fmt.Errorf("persist bootstrap admin key: %w", err)
	}

	print(fmt.Sprintf(
		"generated admin API key (store this now, it will not be shown again): %s",
		plaintext,
	))
	return nil
}

// AuthContext is what the Security Gate attaches to a request's context
// once authentication succeeds.
type AuthContext struct {
	ClientID    string // ApiKeyID, stable per key
	Permissions []string
}

// Authenticate implements spec §4.2 step 1: extract credential, hash it,
// look up in Store, reject Unauthenticated if absent/unknown/disabled,
// update last_used_at.
func Authenticate(ctx context.Context, st store.Store, presentedKey string) (*AuthContext, error) {
	if presentedKey == "" {
		return nil, errUnauthenticated("missing credential")
	}
	hash := hashKey(presentedKey)
	key, err := st.GetApiKeyByHash(ctx, hash)
	if err != nil {
		return nil, errUnauthenticated("unknown credential")
	}
	if key.Disabled {
		return nil, errUnauthenticated("credential disabled")
	}

	now := time.Now()
	key.LastUsedAt = &now
	if err := st.PutApiKey(ctx, key); err != nil {
		return nil, fmt.Errorf("update last_used_at: %w", err)
	}

	return &AuthContext{ClientID: string(key.ID), Permissions: key.Permissions}, nil
}
