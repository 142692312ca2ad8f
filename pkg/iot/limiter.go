package iot

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// MaxLimiterBurst bounds a configured burst so it fits an int on every platform.
const MaxLimiterBurst = math.MaxInt32

// RateLimiterStore holds one token bucket per device, created on first use with the
// store defaults. A nil store allows everything.
type RateLimiterStore struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

func NewRateLimiterStore(defaultRate rate.Limit, defaultBurst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

func (s *RateLimiterStore) GetLimiter(deviceID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[deviceID]
	if !exists {
		limiter = rate.NewLimiter(s.defaultRate, s.defaultBurst)
		s.limiters[deviceID] = limiter
	}
	return limiter
}

// SetLimiter replaces the device's bucket; the new one starts full.
func (s *RateLimiterStore) SetLimiter(deviceID string, deviceRate rate.Limit, deviceBurst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[deviceID] = rate.NewLimiter(deviceRate, deviceBurst)
}

// Allow takes one token from the device's bucket.
func (s *RateLimiterStore) Allow(deviceID string) bool {
	if s == nil {
		return true
	}
	return s.GetLimiter(deviceID).Allow()
}

func (s *RateLimiterStore) Limits(deviceID string) (rate.Limit, int) {
	l := s.GetLimiter(deviceID)
	return l.Limit(), l.Burst()
}
