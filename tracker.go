package main

import (
	"strings"
	"sync"
)

// trackerResetThreshold is the registry size above which resetIfOversized wipes everything.
// A full clear is a coarse bound on memory; it forgets every consumed token at once.
// TODO: replace the full clear with time-windowed eviction once callers send tokens with a known expiry.
const trackerResetThreshold = 10000

// tokenTracker records every one-time token it has accepted and refuses to accept the same value twice.
// The zero value is not usable; construct it with newTokenTracker.
type tokenTracker struct {
	mutex sync.Mutex
	used  map[string]struct{}
}

func newTokenTracker() *tokenTracker {
	return &tokenTracker{used: make(map[string]struct{})}
}

// checkAndRecord reports whether token was never seen before and records it in the same critical section.
// Blank tokens are rejected without touching the registry.
func (tracker *tokenTracker) checkAndRecord(token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	if _, exists := tracker.used[token]; exists {
		return false
	}
	tracker.used[token] = struct{}{}
	return true
}

// resetIfOversized clears the registry when it holds more than trackerResetThreshold tokens
// and reports whether it did.
func (tracker *tokenTracker) resetIfOversized() bool {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	if len(tracker.used) <= trackerResetThreshold {
		return false
	}
	tracker.used = make(map[string]struct{})
	return true
}

func (tracker *tokenTracker) count() int {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	return len(tracker.used)
}
