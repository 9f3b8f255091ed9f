package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestRealClock_Since(t *testing.T) {
	c := RealClock{}
	start := time.Now().Add(-time.Second)
	assert.GreaterOrEqual(t, c.Since(start), time.Second)
}

func TestMockClock_NowIsFixed(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: base}
	assert.Equal(t, base, c.Now())
	assert.Equal(t, base, c.Now(), "repeated reads do not advance")
}

func TestMockClock_Advance(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: base}

	c.Advance(90 * time.Second)
	assert.Equal(t, base.Add(90*time.Second), c.Now())

	c.Advance(0)
	assert.Equal(t, base.Add(90*time.Second), c.Now(), "zero advance is a no-op")

	c.Advance(-30 * time.Second)
	assert.Equal(t, base.Add(60*time.Second), c.Now(), "negative advance moves backward")
}

func TestMockClock_Since(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: base}
	start := c.Now()

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, c.Since(start))
}

func TestElapsedMS(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: base}
	start := c.Now()

	assert.Equal(t, int64(0), ElapsedMS(c, start))
	c.Advance(2345 * time.Millisecond)
	assert.Equal(t, int64(2345), ElapsedMS(c, start))
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	stamp := now.Add(-30 * time.Minute)

	assert.False(t, Expired(now, stamp, time.Hour), "within the window")
	assert.True(t, Expired(now, stamp, time.Minute), "older than the window")
	assert.False(t, Expired(now, now, time.Hour), "fresh stamp")
	assert.True(t, Expired(now, stamp, 0), "zero max age expires everything aged")
	assert.False(t, Expired(now, now.Add(time.Minute), time.Hour), "future stamp is never expired")
}

func TestMockClock_ConcurrentReads(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: base}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, base, c.Now())
			}
		}()
	}
	wg.Wait()
}
