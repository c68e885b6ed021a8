package services

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
)

// DefaultTypingDebounce, tuş vuruşu patlamalarında tek sinyal için bekleme süresi.
const DefaultTypingDebounce = 400 * time.Millisecond

// TypingNotifier, yerel kullanıcının typing sinyalini trailing-edge debounce ile gönderir.
// Delay penceresi içindeki N tuş vuruşu tek bir giden sinyal üretir.
type TypingNotifier struct {
	debounced func(func())
	send      func(scope models.ChatScope) error
	log       *zap.Logger

	mu      sync.Mutex
	pending models.ChatScope
}

// NewTypingNotifier, send her debounce penceresi sonunda bir kez çağrılır.
func NewTypingNotifier(delay time.Duration, send func(models.ChatScope) error, log *zap.Logger) *TypingNotifier {
	if delay <= 0 {
		delay = DefaultTypingDebounce
	}
	return &TypingNotifier{
		debounced: debounce.New(delay),
		send:      send,
		log:       log,
	}
}

// Notify, bir tuş vuruşunu kaydeder. Son scope kazanır.
func (n *TypingNotifier) Notify(scope models.ChatScope) {
	if scope.IsZero() {
		return
	}
	n.mu.Lock()
	n.pending = scope
	n.mu.Unlock()

	n.debounced(n.flush)
}

// Cancel, bekleyen sinyali iptal eder (scope değişimi, mesaj gönderimi).
func (n *TypingNotifier) Cancel() {
	n.mu.Lock()
	n.pending = models.ChatScope{}
	n.mu.Unlock()
}

func (n *TypingNotifier) flush() {
	n.mu.Lock()
	scope := n.pending
	n.pending = models.ChatScope{}
	n.mu.Unlock()

	if scope.IsZero() {
		return
	}
	if err := n.send(scope); err != nil {
		n.log.Debug("typing signal not sent", zap.String("scope", scope.String()), zap.Error(err))
	}
}
