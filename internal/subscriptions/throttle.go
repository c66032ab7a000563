package subscriptions

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ArchonCollection/StreamPing/internal/metrics"
)

const (
	// defaultThrottleLimit / defaultThrottleWindow: at most 5 accepted
	// commands per 5-second sliding window per guild.
	defaultThrottleLimit  = 5
	defaultThrottleWindow = 5 * time.Second

	// defaultMaxGuilds bounds the window map so an attacker spraying guild
	// ids cannot grow it without limit.
	defaultMaxGuilds = 10_000
)

// GuildThrottle is a sliding-window command rate limiter keyed by guild.
// Rejected commands are not queued; callers surface the rejection to the
// user immediately.
type GuildThrottle struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	limit     int
	window    time.Duration
	maxGuilds int
	clock     clockwork.Clock
	cleanupAt time.Time
}

func NewGuildThrottle(clock clockwork.Clock) *GuildThrottle {
	return &GuildThrottle{
		windows:   make(map[string][]time.Time),
		limit:     defaultThrottleLimit,
		window:    defaultThrottleWindow,
		maxGuilds: defaultMaxGuilds,
		clock:     clock,
		cleanupAt: clock.Now().Add(defaultThrottleWindow * 2),
	}
}

// Allow reports whether a command from the guild may proceed, consuming a
// window slot when it does.
func (t *GuildThrottle) Allow(guildID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()

	if now.After(t.cleanupAt) {
		t.evictStale(now)
		t.cleanupAt = now.Add(t.window * 2)
	}

	stamps := t.pruned(t.windows[guildID], now)

	if len(stamps) >= t.limit {
		t.windows[guildID] = stamps
		metrics.CommandThrottledTotal.Inc()
		return false
	}

	if _, exists := t.windows[guildID]; !exists && len(t.windows) >= t.maxGuilds {
		t.evictStale(now)
		if len(t.windows) >= t.maxGuilds {
			t.evictOldest()
		}
	}

	t.windows[guildID] = append(stamps, now)
	return true
}

// pruned drops timestamps that have slid out of the window.
func (t *GuildThrottle) pruned(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-t.window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// evictStale removes guilds whose entire window has expired.
// Must be called with mu held.
func (t *GuildThrottle) evictStale(now time.Time) {
	cutoff := now.Add(-t.window)
	for guildID, stamps := range t.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(t.windows, guildID)
		}
	}
}

// evictOldest removes the guild with the oldest most-recent command.
// Must be called with mu held.
func (t *GuildThrottle) evictOldest() {
	var victim string
	var oldest time.Time
	for guildID, stamps := range t.windows {
		last := stamps[len(stamps)-1]
		if victim == "" || last.Before(oldest) {
			victim = guildID
			oldest = last
		}
	}
	if victim != "" {
		delete(t.windows, victim)
	}
}

// Size returns the number of tracked guilds.
func (t *GuildThrottle) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}
