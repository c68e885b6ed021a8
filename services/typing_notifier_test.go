package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
)

type sentSignals struct {
	mu     sync.Mutex
	scopes []models.ChatScope
}

func (s *sentSignals) send(scope models.ChatScope) error {
	s.mu.Lock()
	s.scopes = append(s.scopes, scope)
	s.mu.Unlock()
	return nil
}

func (s *sentSignals) snapshot() []models.ChatScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatScope(nil), s.scopes...)
}

func TestTypingNotifier_BurstProducesOneSignal(t *testing.T) {
	sent := &sentSignals{}
	n := NewTypingNotifier(30*time.Millisecond, sent.send, zap.NewNop())

	for i := 0; i < 10; i++ {
		n.Notify(models.ChannelScope(5))
	}

	assert.Eventually(t, func() bool { return len(sent.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []models.ChatScope{models.ChannelScope(5)}, sent.snapshot())
}

func TestTypingNotifier_CancelDropsPending(t *testing.T) {
	sent := &sentSignals{}
	n := NewTypingNotifier(30*time.Millisecond, sent.send, zap.NewNop())

	n.Notify(models.ChannelScope(5))
	n.Cancel()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, sent.snapshot())
}

func TestTypingNotifier_IgnoresZeroScope(t *testing.T) {
	sent := &sentSignals{}
	n := NewTypingNotifier(10*time.Millisecond, sent.send, zap.NewNop())

	n.Notify(models.ChatScope{})
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, sent.snapshot())
}
