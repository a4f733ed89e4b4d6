package domain

import "time"

// AuditRecord is one append-only audit entry. ArgHash is a digest of the
// call arguments, never the arguments themselves, so audit storage cannot
// leak sensitive payload content (including a key's own plaintext, should a
// client mistakenly include it as an argument).
type AuditRecord struct {
	Timestamp time.Time
	ClientID  string
	Tool      string
	ArgHash   string
	Outcome   string // a gate label ("allowed", "unauthenticated", ...), "completed", or an apperr.Code string
	LatencyMS int64
}
