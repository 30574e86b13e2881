package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter hands out one token bucket per anonymous user.
type userLimiter struct {
	every rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	lastGC   time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(requests int, window time.Duration) *userLimiter {
	return &userLimiter{
		every:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		idle:     window * 2,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow reports whether userID may submit now.
func (l *userLimiter) Allow(userID string) bool {
	return l.allowAt(userID, time.Now())
}

func (l *userLimiter) allowAt(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.idle {
		for id, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.idle {
				delete(l.limiters, id)
			}
		}
		l.lastGC = now
	}

	e, ok := l.limiters[userID]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.limiters[userID] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}
