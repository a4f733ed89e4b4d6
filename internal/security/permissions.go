package security

import (
	"sync"

	"github.com/gobwas/glob"
)

// PermissionCache compiles and caches glob.Glob patterns for ApiKey
// permission globs (spec §4.2 step 2), so Authorize does not recompile a
// pattern on every call.
type PermissionCache struct {
	mu    sync.Mutex
	compiled map[string]glob.Glob
}

// NewPermissionCache creates an empty cache.
func NewPermissionCache() *PermissionCache {
	return &PermissionCache{compiled: make(map[string]glob.Glob)}
}

func (c *PermissionCache) compile(pattern string) (glob.Glob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.compiled[pattern]; ok {
		return g, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.compiled[pattern] = g
	return g, nil
}

// Authorize implements spec §4.2 step 2: reject Forbidden if no permission
// glob in perms matches toolName.
func (c *PermissionCache) Authorize(toolName string, perms []string) error {
	for _, pattern := range perms {
		g, err := c.compile(pattern)
		if err != nil {
			// A malformed stored pattern should never silently grant
			// access; skip it rather than fail the whole check.
			continue
		}
		if g.Match(toolName) {
			return nil
		}
	}
	return errForbidden("credential lacks permission for tool %q", toolName)
}
