package application

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Creation quota defaults.
const (
	DefaultEventsPerMonth = 10
	DefaultCreateCooldown = 5 * time.Minute

	limiterCapacity = 4096
	limiterTTL      = 31 * 24 * time.Hour
)

// creationStats is what the limiter remembers about one suggester.
type creationStats struct {
	month        string
	monthlyCount int
	total        int
	last         time.Time
}

// RateLimiter bounds how many events one suggester can create per calendar
// month and how close together. Stats live in an expiring LRU, so idle
// suggesters are forgotten after a month.
type RateLimiter struct {
	mu       sync.Mutex
	now      func() time.Time
	perMonth int
	cooldown time.Duration
	entries  *expirable.LRU[string, creationStats]
}

// NewRateLimiter returns a limiter. Non-positive limits fall back to the defaults.
func NewRateLimiter(perMonth int, cooldown time.Duration, now func() time.Time) *RateLimiter {
	if perMonth <= 0 {
		perMonth = DefaultEventsPerMonth
	}
	if cooldown < 0 {
		cooldown = DefaultCreateCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		now:      now,
		perMonth: perMonth,
		cooldown: cooldown,
		entries:  expirable.NewLRU[string, creationStats](limiterCapacity, nil, limiterTTL),
	}
}

// CreationStats summarises one suggester's event creations.
type CreationStats struct {
	Suggester     string     `json:"suggester"`
	MonthCount    int        `json:"monthCount"`
	MonthlyLimit  int        `json:"monthlyLimit"`
	Remaining     int        `json:"remaining"`
	Total         int        `json:"total"`
	LastCreatedAt *time.Time `json:"lastCreatedAt"`
	ResetsAt      time.Time  `json:"resetsAt"`
}

// Reserve claims one creation for suggester, checking the monthly quota and
// the cooldown under the same lock that counts it. A refusal is a
// *RateLimitError. Call release when the creation does not go through.
func (l *RateLimiter) Reserve(suggester string) (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := limiterKey(suggester)
	stats := l.statsLocked(suggester, now)
	if err := l.checkLocked(stats, now); err != nil {
		return nil, err
	}

	previous := stats.last
	stats.monthlyCount++
	stats.total++
	stats.last = now
	l.entries.Add(key, stats)

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, now, previous) })
	}, nil
}

func (l *RateLimiter) release(key string, reservedAt, previous time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats, ok := l.entries.Get(key)
	if !ok {
		return
	}
	if stats.month == reservedAt.UTC().Format("2006-01") && stats.monthlyCount > 0 {
		stats.monthlyCount--
	}
	if stats.total > 0 {
		stats.total--
	}
	if stats.last.Equal(reservedAt) {
		stats.last = previous
	}
	l.entries.Add(key, stats)
}

func (l *RateLimiter) checkLocked(stats creationStats, now time.Time) error {
	if stats.monthlyCount >= l.perMonth {
		reset := firstOfNextMonth(now)
		return &RateLimitError{
			Reason:     fmt.Sprintf("limit of %d events per month reached, resets on %s", l.perMonth, reset.Format("January 2")),
			RetryAfter: int64(reset.Sub(now).Seconds()),
		}
	}
	if !stats.last.IsZero() {
		if wait := l.cooldown - now.Sub(stats.last); wait > 0 {
			minutes := int((wait + time.Minute - 1) / time.Minute)
			unit := "minutes"
			if minutes == 1 {
				unit = "minute"
			}
			return &RateLimitError{
				Reason:     fmt.Sprintf("please wait %d %s before creating another event", minutes, unit),
				Remaining:  l.perMonth - stats.monthlyCount,
				RetryAfter: int64(wait.Seconds()) + 1,
			}
		}
	}
	return nil
}

// Stats reports suggester's creations. Suggesters the limiter has not seen,
// or has forgotten, report zero counts.
func (l *RateLimiter) Stats(suggester string) CreationStats {
	if l == nil {
		return CreationStats{Suggester: suggester}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stats := l.statsLocked(suggester, now)
	out := CreationStats{
		Suggester:    strings.TrimSpace(suggester),
		MonthCount:   stats.monthlyCount,
		MonthlyLimit: l.perMonth,
		Remaining:    max(l.perMonth-stats.monthlyCount, 0),
		Total:        stats.total,
		ResetsAt:     firstOfNextMonth(now),
	}
	if !stats.last.IsZero() {
		last := stats.last.UTC()
		out.LastCreatedAt = &last
	}
	return out
}

func (l *RateLimiter) statsLocked(suggester string, now time.Time) creationStats {
	month := now.UTC().Format("2006-01")
	stats, ok := l.entries.Get(limiterKey(suggester))
	if !ok {
		return creationStats{month: month}
	}
	if stats.month != month {
		stats.month = month
		stats.monthlyCount = 0
	}
	return stats
}

func limiterKey(suggester string) string {
	return strings.ToLower(strings.TrimSpace(suggester))
}

func firstOfNextMonth(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
