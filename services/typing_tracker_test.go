package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker() (*TypingTracker, *manualClock) {
	clock := &manualClock{now: baseTime}
	tr := NewTypingTracker(3*time.Second, zap.NewNop()).WithClock(clock.Now)
	tr.SetSelf(1)
	tr.SetActive(models.ChannelScope(5))
	return tr, clock
}

func TestTyping_ObserveAndFormat(t *testing.T) {
	tr, _ := newTestTracker()
	scope := models.ChannelScope(5)

	text, changed := tr.Observe(scope, 3, "carol", true)
	assert.True(t, changed)
	assert.Equal(t, "carol is typing…", text)

	text, changed = tr.Observe(scope, 2, "amy", true)
	assert.True(t, changed)
	assert.Equal(t, "amy, carol are typing…", text)

	_, changed = tr.Observe(scope, 2, "amy", true)
	assert.False(t, changed, "refresh does not change the text")
}

func TestTyping_ResetKeepsSelf(t *testing.T) {
	tr, _ := newTestTracker()
	scope := models.ChannelScope(5)
	tr.Observe(scope, 2, "amy", true)

	tr.Reset()
	assert.Empty(t, tr.Typing(scope))

	tr.SetActive(scope)
	_, changed := tr.Observe(scope, 1, "me", true)
	assert.False(t, changed, "own typing stays hidden after reset")
	assert.Empty(t, tr.Indicator())
}

func TestTyping_SelfIsIgnored(t *testing.T) {
	tr, _ := newTestTracker()

	_, changed := tr.Observe(models.ChannelScope(5), 1, "me", true)
	assert.False(t, changed)
	assert.Empty(t, tr.Indicator())
}

func TestTyping_OtherScopeNotRendered(t *testing.T) {
	tr, _ := newTestTracker()

	_, changed := tr.Observe(models.DirectMessageScope(9), 2, "amy", true)
	assert.False(t, changed)
	assert.Empty(t, tr.Indicator())
	assert.Len(t, tr.Typing(models.DirectMessageScope(9)), 1)
}

func TestTyping_ExpiredEntryGoneAfterSweep(t *testing.T) {
	tr, clock := newTestTracker()
	scope := models.ChannelScope(5)

	tr.Observe(scope, 2, "amy", true)
	clock.Advance(2 * time.Second)
	tr.Observe(scope, 3, "bob", true)

	clock.Advance(1500 * time.Millisecond)
	text, changed := tr.Sweep()
	assert.True(t, changed)
	assert.Equal(t, "bob is typing…", text)

	clock.Advance(2 * time.Second)
	text, changed = tr.Sweep()
	assert.True(t, changed)
	assert.Empty(t, text)
	assert.Empty(t, tr.Typing(scope))
}

func TestTyping_ExpiredIsHiddenBeforeSweep(t *testing.T) {
	tr, clock := newTestTracker()
	tr.Observe(models.ChannelScope(5), 2, "amy", true)

	clock.Advance(3*time.Second + time.Millisecond)
	assert.Empty(t, tr.Indicator())
}

func TestTyping_StopSignalRemovesEntry(t *testing.T) {
	tr, _ := newTestTracker()
	scope := models.ChannelScope(5)

	tr.Observe(scope, 2, "amy", true)
	text, changed := tr.Observe(scope, 2, "amy", false)
	assert.True(t, changed)
	assert.Empty(t, text)
}

func TestTyping_SetActiveDropsPreviousScope(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Observe(models.ChannelScope(5), 2, "amy", true)

	tr.SetActive(models.DirectMessageScope(9))
	assert.Empty(t, tr.Indicator())
	assert.Empty(t, tr.Typing(models.ChannelScope(5)))
}

func TestFormatTyping(t *testing.T) {
	assert.Equal(t, "", FormatTyping(nil))
	assert.Equal(t, "x is typing…", FormatTyping([]string{"x"}))
	assert.Equal(t, "x, y, z are typing…", FormatTyping([]string{"x", "y", "z"}))
}
