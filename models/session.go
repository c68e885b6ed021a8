package models

import "time"

// SessionCredential, canlı bearer token ve token'ın claim'lerinden okunan son kullanma zamanı.
//
// Aynı anda tek bir credential canlıdır. Refresh yeni bir credential üretir;
// eskisi ancak yenisi doğrulandıktan sonra atomik olarak değiştirilir.
type SessionCredential struct {
	Token     string
	ExpiresAt time.Time
	Subject   string // JWT "sub", sunucu kullanıcı adını koyar
}

// ExpiresWithin, credential verilen süre içinde (veya zaten) dolmuş mu?
func (c SessionCredential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return c.ExpiresAt.Sub(now) < margin
}

// StoredSession, diskte (SQLite) saklanan login bilgisi.
// Mesaj içeriği asla saklanmaz, sadece CLI'ın oturumu geri yükleyebilmesi için token.
type StoredSession struct {
	Username  string
	Token     string
	ExpiresAt time.Time
	LastScope string
	SavedAt   time.Time
}
