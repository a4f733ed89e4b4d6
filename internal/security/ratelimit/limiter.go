package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces the hourly quota (a fixed-window counter, so the 101st
// request within the current hour window is rejected deterministically) and the
// per-minute burst quota (a token bucket via golang.org/x/time/rate, so the
// 11th request landing before the bucket refills is rejected). Once either
// is exceeded, the client is blocked for Config.BlockDuration regardless of
// which counter recovers first (spec §4.2 step 3).
type Limiter struct {
	cfg   Config
	store Store

	mu       sync.Mutex
	burstLim map[string]*rate.Limiter
}

// New creates a Limiter. store is normally a *MemoryStore; tests may supply
// a fake to control window rollover deterministically.
func New(cfg Config, store Store) *Limiter {
	return &Limiter{cfg: cfg, store: store, burstLim: make(map[string]*rate.Limiter)}
}

func (l *Limiter) burstLimiterFor(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.burstLim[clientID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.cfg.BurstLimit)), int(l.cfg.BurstLimit))
		l.burstLim[clientID] = lim
	}
	return lim
}

// Allow records one request for clientID and reports whether it is within
// quota. On the request that trips either quota it also sets block_until;
// while blocked, every call returns Allowed=false with the same reason
// until BlockUntil elapses (spec §4.2 step 3, §8 "after block_duration,
// requests are admitted again").
func (l *Limiter) Allow(clientID string) CheckResult {
	now := time.Now()

	if until, blocked := l.store.GetBlockUntil(clientID); blocked && until.After(now) {
		u := until
		return CheckResult{Allowed: false, Reason: "client is blocked due to prior rate limit violation", BlockUntil: &u}
	}

	hourCurrent, hourEnd := l.store.Increment(clientID, WindowHour)
	burstOK := l.burstLimiterFor(clientID).AllowN(now, 1)

	usages := []Usage{
		{Window: WindowHour, Current: hourCurrent, Limit: l.cfg.HourlyLimit, WindowEnd: hourEnd},
	}

	if hourCurrent > l.cfg.HourlyLimit {
		until := now.Add(l.cfg.BlockDuration)
		l.store.SetBlockUntil(clientID, until)
		return CheckResult{
			Allowed:    false,
			Reason:     fmt.Sprintf("hourly limit exceeded (%d/%d)", hourCurrent, l.cfg.HourlyLimit),
			BlockUntil: &until,
			Usages:     usages,
		}
	}

	if !burstOK {
		until := now.Add(l.cfg.BlockDuration)
		l.store.SetBlockUntil(clientID, until)
		return CheckResult{
			Allowed:    false,
			Reason:     fmt.Sprintf("burst limit exceeded (%d/min)", l.cfg.BurstLimit),
			BlockUntil: &until,
			Usages:     usages,
		}
	}

	return CheckResult{Allowed: true, Usages: usages}
}

// ResetExpired sweeps window/block records that went stale before the
// given time. Nothing in evocrewd calls it (the Supervisor holds no
// Limiter), so idle clients' records and burst buckets stay in memory for
// the process lifetime.
func (l *Limiter) ResetExpired(before time.Time) {
	l.store.DeleteExpired(before)
}
