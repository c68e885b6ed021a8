package main

import (
	"net/http"

	"github.com/akinalp/chatsync/pkg/metrics"
)

// initRoutes, METRICS_ADDR üzerinde açılan küçük HTTP mux'ı kurar.
//
// Go 1.22+ method-based routing kullanılır: "GET /metrics".
func initRoutes(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
