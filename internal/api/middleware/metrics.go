package middleware

import (
	"net/http"
	"sync/atomic"
)

// HTTPMetrics counts API traffic for the /metrics endpoint.
type HTTPMetrics struct {
	Requests     atomic.Int64
	ClientErrors atomic.Int64
	ServerErrors atomic.Int64
	InFlight     atomic.Int64
}

func (m *HTTPMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"requests":      m.Requests.Load(),
		"client_errors": m.ClientErrors.Load(),
		"server_errors": m.ServerErrors.Load(),
		"in_flight":     m.InFlight.Load(),
	}
}

func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Requests.Add(1)
		m.InFlight.Add(1)
		defer m.InFlight.Add(-1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode >= 500:
			m.ServerErrors.Add(1)
		case rw.statusCode >= 400:
			m.ClientErrors.Add(1)
		}
	})
}
