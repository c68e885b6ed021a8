// Package main, chatsync CLI'ının giriş noktasıdır.
//
// Her komut aynı wire-up'ı kullanır (bkz. bootstrap):
//  1. Config'i yükle
//  2. Logger'ı kur
//  3. Database'i aç, migration'ları uygula
//  4. Repository'leri oluştur
//  5. Service'leri oluştur (REST client, SessionGuard, AuthService, STOMP dialer)
//  6. Callback'leri bağla (refresh → diske yaz)
//  7. METRICS_ADDR verilmişse /metrics endpoint'ini aç
//
// Global değişken YOK; her şey bootstrap'te oluşturulup birbirine bağlanıyor.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/akinalp/chatsync/pkg"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode, script'lerin "tekrar login ol" durumunu ayırt edebilmesi için.
func exitCode(err error) int {
	if errors.Is(err, pkg.ErrUnauthenticated) {
		return 2
	}
	return 1
}
