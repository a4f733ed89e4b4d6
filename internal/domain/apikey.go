package domain

import "time"

// ApiKey is a bearer credential. Plaintext never appears on the struct past
// key creation: callers hash the presented credential and look up by hash,
// and only the hash (and a short displayable prefix for operator UX) is
// persisted.
type ApiKey struct {
	ID          ApiKeyID
	Hash        [32]byte // SHA-256 of the plaintext key
	Prefix      string   // first 8 chars of plaintext, for admin display only
	Permissions []string // tool-name glob patterns
	QuotaHourly int64    // stored only; the rate limiter applies the server-wide hourly limit to every key
	QuotaBurst  int64    // stored only; the rate limiter applies the server-wide burst limit to every key
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	Disabled    bool
}

// HasAnyPermission reports whether the key carries at least one permission
// glob. It does not match a tool name against the globs; that is done by
// security.CompiledPermissions.
func (k *ApiKey) HasAnyPermission() bool { return len(k.Permissions) > 0 }
