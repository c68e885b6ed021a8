package services

import (
	"sync"

	"github.com/akinalp/chatsync/models"
)

// ScopeResolver, aktif ChatScope'un tek kaynağıdır.
// Aynı anda en fazla bir scope aktiftir; diğer bileşenler buradan okur.
type ScopeResolver struct {
	mu     sync.RWMutex
	active models.ChatScope
}

// NewScopeResolver, seçimsiz resolver.
func NewScopeResolver() *ScopeResolver {
	return &ScopeResolver{}
}

// Select, scope'u aktif yapar. Önceki scope'tan farklıysa true döner.
func (r *ScopeResolver) Select(scope models.ChatScope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == scope {
		return false
	}
	r.active = scope
	return true
}

// Active, aktif scope; seçim yoksa ok=false.
func (r *ScopeResolver) Active() (models.ChatScope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, !r.active.IsZero()
}

// IsActive, verilen scope şu an aktif mi?
// Geç gelen async sonuçların atılıp atılmayacağına bununla karar verilir.
func (r *ScopeResolver) IsActive(scope models.ChatScope) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !scope.IsZero() && r.active == scope
}

// Clear, seçimi kaldırır.
func (r *ScopeResolver) Clear() {
	r.mu.Lock()
	r.active = models.ChatScope{}
	r.mu.Unlock()
}
