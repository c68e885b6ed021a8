package main

import (
	"context"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/services"
)

// initCallbacks, katmanlar arası callback'leri bağlar.
//
// Guard repository'yi bilmez; refresh olunca yeni token'ı diske yazmak
// AuthService'in işidir. Bağlantı burada, wire-up noktasında kurulur.
func initCallbacks(svcs *Services) {
	svcs.Guard.OnRefresh(svcs.Auth.PersistRefreshed)
}

// initSessionCallbacks, session'a özgü callback'ler. Run'dan önce çağrılmalı.
//
// OnScopeSelected event loop goroutine'inde çalışır; SQLite yazısı
// loop'u bekletmesin diye ayrı goroutine'e alınır.
func initSessionCallbacks(svcs *Services, session *services.Session, user models.User) {
	session.OnScopeSelected(func(scope models.ChatScope) {
		go svcs.Auth.RememberScope(context.Background(), user.Username, scope)
	})
}
