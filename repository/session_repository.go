// Package repository, yerel SQLite dosyasına erişim katmanıdır.
//
// Service katmanı doğrudan SQL yazmaz, buradaki interface'ler üzerinden çalışır.
// Testlerde interface'in sahte bir implementasyonu verilir; DB gerekmez.
package repository

import (
	"context"
	"time"

	"github.com/akinalp/chatsync/models"
)

// SessionRepository, kayıtlı login ve son seçilen konuşma için interface.
//
// Aynı anda tek bir kayıtlı login vardır: Save öncekini değiştirir.
// Son scope kullanıcı başına tutulur ve logout'ta silinmez.
type SessionRepository interface {
	Save(ctx context.Context, session *models.StoredSession) error
	// Load, kayıtlı login'i döner; yoksa pkg.ErrNotFound.
	Load(ctx context.Context) (*models.StoredSession, error)
	// UpdateToken, refresh sonrası token'ı günceller. Kayıtlı login yoksa pkg.ErrNotFound.
	UpdateToken(ctx context.Context, token string, expiresAt time.Time) error
	Delete(ctx context.Context) error

	SaveLastScope(ctx context.Context, username, scope string) error
	// LoadLastScope, kullanıcının son scope'u; yoksa pkg.ErrNotFound.
	LoadLastScope(ctx context.Context, username string) (string, error)
}
