// ABOUTME: Tests for the event dedupe cache
// ABOUTME: Covers duplicate detection, TTL expiry and expired-entry sweeping

package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAndMark(t *testing.T) {
	c := New(time.Minute)
	assert.False(t, c.CheckAndMark("evt-1"))
	assert.True(t, c.CheckAndMark("evt-1"))
	assert.False(t, c.CheckAndMark("evt-2"))
}

func TestCheckAndMark_TTLExpiry(t *testing.T) {
	c := New(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	assert.False(t, c.CheckAndMark("evt-1"))
	now = now.Add(30 * time.Second)
	assert.True(t, c.CheckAndMark("evt-1"))
	now = now.Add(2 * time.Minute)
	assert.False(t, c.CheckAndMark("evt-1"))
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.CheckAndMark("a")
	c.CheckAndMark("b")
	now = now.Add(2 * time.Minute)
	c.CheckAndMark("c")
	assert.Equal(t, 1, c.Len())
}
