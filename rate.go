package main

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter hands each client address its own token bucket refilled at perMinuteCap per minute.
// A nil *clientLimiter allows everything.
type clientLimiter struct {
	mutex     sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newClientLimiter(perMinuteCap int) *clientLimiter {
	if perMinuteCap <= 0 {
		return nil
	}
	return &clientLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Every(time.Minute / time.Duration(perMinuteCap)),
		burst:     perMinuteCap,
		lastSweep: timeNow(),
	}
}

func (limiter *clientLimiter) allow(clientKey string) bool {
	if limiter == nil {
		return true
	}
	currentTime := timeNow()

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	if currentTime.Sub(limiter.lastSweep) >= limiterSweepInterval {
		for cachedKey, cachedEntry := range limiter.limiters {
			if currentTime.Sub(cachedEntry.lastSeen) >= limiterIdleTTL {
				delete(limiter.limiters, cachedKey)
			}
		}
		limiter.lastSweep = currentTime
	}

	entry, exists := limiter.limiters[clientKey]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(limiter.limit, limiter.burst)}
		limiter.limiters[clientKey] = entry
	}
	entry.lastSeen = currentTime
	return entry.limiter.AllowN(currentTime, 1)
}

func (limiter *clientLimiter) size() int {
	if limiter == nil {
		return 0
	}
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return len(limiter.limiters)
}

func rateKey(remoteAddress string) string {
	hostPart, _, splitError := net.SplitHostPort(remoteAddress)
	if splitError != nil {
		return remoteAddress
	}
	return hostPart
}
