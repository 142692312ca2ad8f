package iot

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiterStore_Basic(t *testing.T) {
	store := NewRateLimiterStore(1, 2)

	limiter := store.GetLimiter(DefaultTestDeviceID)
	if limiter == nil {
		t.Fatal("expected limiter, got nil")
	}
	if limiter.Limit() != 1 {
		t.Errorf("expected limit 1, got %v", limiter.Limit())
	}
}

func TestRateLimiterStore_CustomLimit(t *testing.T) {
	store := NewRateLimiterStore(1, 2)

	store.SetLimiter("crib-2", 5, 10)
	r, burst := store.Limits("crib-2")

	assert.Equal(t, rate.Limit(5), r)
	assert.Equal(t, 10, burst)
}

func TestRateLimiterStore_Concurrency(t *testing.T) {
	store := NewRateLimiterStore(10, 5)
	deviceID := uuid.NewString()

	var wg sync.WaitGroup
	limiters := make(chan *rate.Limiter, 100)

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiters <- store.GetLimiter(deviceID)
		}()
	}

	wg.Wait()
	close(limiters)

	first := store.GetLimiter(deviceID)
	for l := range limiters {
		assert.Same(t, first, l, "every caller must share the device's bucket")
	}
}

func TestRateLimiter_Enforcement(t *testing.T) {
	store := NewRateLimiterStore(2, 2) // 2 events/sec

	deviceID := uuid.NewString()

	if !store.Allow(deviceID) || !store.Allow(deviceID) {
		t.Fatal("expected first two calls to be allowed")
	}

	if store.Allow(deviceID) {
		t.Error("expected third call to be rate limited")
	}

	// other devices have their own bucket
	assert.True(t, store.Allow(uuid.NewString()))

	time.Sleep(600 * time.Millisecond)
	if !store.Allow(deviceID) {
		t.Error("expected one token to be available after refill")
	}
}

func TestRateLimiterStore_NilAllowsAll(t *testing.T) {
	var store *RateLimiterStore
	for range 10 {
		assert.True(t, store.Allow("crib"))
	}
}
