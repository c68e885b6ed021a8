package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestTTLCache_GetHidesExpiredBeforeEviction(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := New[string, int](3*time.Second, WithClock(clock.Now))
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(3*time.Second + time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entry stays until evicted")

	assert.Equal(t, 1, c.EvictExpired())
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_SetRefreshesExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := New[string, int](3*time.Second, WithClock(clock.Now))

	c.Set("a", 1)
	clock.Advance(2 * time.Second)
	c.Set("a", 2)
	clock.Advance(2 * time.Second)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCache_RangeSkipsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := New[int, string](time.Second, WithClock(clock.Now))

	c.Set(1, "old")
	clock.Advance(2 * time.Second)
	c.Set(2, "new")

	var seen []string
	c.Range(func(_ int, v string) bool {
		seen = append(seen, v)
		return true
	})
	assert.Equal(t, []string{"new"}, seen)
}

func TestTTLCache_DeleteFuncAndClear(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("x:1", 1)
	c.Set("x:2", 2)
	c.Set("y:1", 3)

	c.DeleteFunc(func(k string) bool { return k[0] == 'x' })
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Delete("y:1"))
	assert.False(t, c.Delete("y:1"))

	c.Set("z", 1)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_CloseIsIdempotent(t *testing.T) {
	c := New[string, int](time.Second, WithCleanupInterval(10*time.Millisecond))
	c.Close()
	assert.NotPanics(t, c.Close)
}
