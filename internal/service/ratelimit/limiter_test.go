package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllowUpToMaxThenReject(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(10*time.Minute, 3, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "other clients are independent")
}

func TestAllowAgainAfterWindowElapses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(time.Minute, 2, WithClock(clock.Now))

	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	clock.Advance(time.Minute)
	assert.True(t, l.Allow("k"))
}

func TestRejectedRequestsAreNotRecorded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(time.Minute, 1, WithClock(clock.Now))

	assert.True(t, l.Allow("k"))
	clock.Advance(30 * time.Second)
	assert.False(t, l.Allow("k"))
	clock.Advance(31 * time.Second)
	assert.True(t, l.Allow("k"), "only the accepted request counts toward the window")
}

func TestSweepEvictsIdleKeys(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(time.Minute, 5, WithClock(clock.Now))

	l.Allow("a")
	clock.Advance(45 * time.Second)
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestAllowIsSafeForConcurrentUse(t *testing.T) {
	l := New(time.Hour, 50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, accepted)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/chat", nil)
	assert.Equal(t, UnknownClient, ClientKey(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientKey(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientKey(req))
}
