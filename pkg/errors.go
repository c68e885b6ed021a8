// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Go'da error'lar basit değerlerdir. errors.New() ile sabit error değişkenleri
// tanımlarız, karşılaştırma string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrUnauthenticated) { ... }
//
// Detay eklemek için sentinel'i %w ile sararız:
//
//	return fmt.Errorf("%w: emoji is required", pkg.ErrBadRequest)
package pkg

import (
	"errors"
	"fmt"
)

// Sync engine'in hata taksonomisi.
//
//   - ErrUnauthenticated: credential yok, geçersiz veya refresh başarısız → login'e dönülür, sessizce retry YOK.
//   - ErrTransport: push bağlantısı kurulamadı veya koptu → state Disconnected, gönderim kapalı.
//   - ErrRequestFailed: network çağrısı 2xx dışı döndü → tek seferlik bildirim.
//   - ErrMalformedPayload: frame/body beklenen şekle uymuyor → logla, event'i düşür.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrTransport        = errors.New("transport error")
	ErrRequestFailed    = errors.New("request failed")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Yardımcı error'lar, intent'lerin ön koşul ihlalleri.
var (
	ErrNotConnected  = errors.New("not connected")
	ErrNoActiveScope = errors.New("no active chat")
	ErrNotFound      = errors.New("not found")
	ErrBadRequest    = errors.New("bad request")
	ErrRateLimited   = errors.New("rate limited")
)

// RequestError, sunucunun 2xx dışı cevabını taşır.
// errors.Is(err, ErrRequestFailed) true döner, Unwrap sayesinde.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

func (e *RequestError) Unwrap() error {
	return ErrRequestFailed
}
