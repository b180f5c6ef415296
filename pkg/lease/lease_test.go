package lease

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
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

func TestLeaseExpiryDerivedFromIssue(t *testing.T) {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New("readonly", map[string]interface{}{"username": "u1"}, issued, 3600, true)

	assert.Equal(t, issued.Add(time.Hour), l.ExpiresAt)
	assert.True(t, l.Fresh(issued))
	assert.True(t, l.Fresh(issued.Add(3599*time.Second)))
	assert.False(t, l.Fresh(issued.Add(3600*time.Second)))
	assert.False(t, l.Fresh(issued.Add(3601*time.Second)))
}

func TestZeroDurationLeaseNeverFresh(t *testing.T) {
	issued := time.Now()
	l := New("readonly", nil, issued, 0, false)

	assert.False(t, l.Fresh(issued))
	assert.False(t, l.Fresh(issued.Add(-time.Second)))
	assert.False(t, l.Fresh(issued.Add(time.Second)))

	l = New("readonly", nil, issued, -5, false)
	assert.False(t, l.Fresh(issued.Add(-time.Minute)))
}

func TestLeasePayloadCopied(t *testing.T) {
	data := map[string]interface{}{"username": "u1"}
	l := New("readonly", data, time.Now(), 60, false)

	data["username"] = "mutated"
	assert.Equal(t, "u1", l.Data["username"])
}

func TestStorePutRejectsExpiredOnArrival(t *testing.T) {
	s := NewStore()

	err := s.Put(New("readonly", nil, time.Now(), 0, false))
	require.Error(t, err)
	err = s.Put(New("readonly", nil, time.Now(), -5, false))
	require.Error(t, err)

	_, ok := s.Get("readonly")
	assert.False(t, ok)
}

func TestStoreLastWriterWins(t *testing.T) {
	s := NewStore()
	first := New("readonly", map[string]interface{}{"username": "u1"}, time.Now(), 60, false)
	second := New("readonly", map[string]interface{}{"username": "u2"}, time.Now(), 60, false)

	require.NoError(t, s.Put(first))
	require.NoError(t, s.Put(second))

	got, ok := s.Get("readonly")
	require.True(t, ok)
	assert.Same(t, second, got)

	// replaced lease is untouched, holders can keep using it
	assert.Equal(t, "u1", first.Data["username"])
}
