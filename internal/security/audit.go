package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/store"
)

// AuditLog appends one JSON line per tool call to a rotating file (spec
// §4.2 step 6) and records the same fact in Store's audit bucket, so the
// records survive without tailing a file. get_live_events does not read
// them; it reports the dispatcher's own in-memory event ring. Arguments are hashed,
// never logged in the clear, so a leaked audit log cannot leak credential
// material or instruction content.
type AuditLog struct {
	mu sync.Mutex
	w  *lumberjack.Logger
	st store.Store
}

// AuditConfig controls the on-disk rotation policy.
type AuditConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultAuditConfig matches the teacher's logging defaults scaled to an
// audit stream: modest file size, keep a week of backups.
func DefaultAuditConfig(path string) AuditConfig {
	return AuditConfig{Path: path, MaxSizeMB: 50, MaxBackups: 7, MaxAgeDays: 7}
}

// NewAuditLog opens (creating if absent) the rotating audit file.
func NewAuditLog(cfg AuditConfig, st store.Store) *AuditLog {
	return &AuditLog{
		w: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		},
		st: st,
	}
}

func (a *AuditLog) Close() error { return a.w.Close() }

// hashArgs fingerprints a tool call's arguments for audit correlation
// without retaining their content.
func hashArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// Record writes one audit entry. outcome is a short label such as
// "allowed", "unauthenticated", "rate_limited", "forbidden",
// "invalid_argument", "completed", or an apperr.Code string.
func (a *AuditLog) Record(ctx context.Context, clientID, tool string, args map[string]any, outcome string, latency time.Duration) {
	rec := &domain.AuditRecord{
		Timestamp: time.Now(),
		ClientID:  clientID,
		Tool:      tool,
		ArgHash:   hashArgs(args),
		Outcome:   outcome,
		LatencyMS: latency.Milliseconds(),
	}

	a.mu.Lock()
	line, err := json.Marshal(rec)
	if err == nil {
		line = append(line, '\n')
		_, _ = a.w.Write(line)
	}
	a.mu.Unlock()

	if a.st != nil {
		_ = a.st.AppendAudit(ctx, rec)
	}
}
