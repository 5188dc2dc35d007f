package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// QuotaReader reports remaining permits per window without consuming any.
type QuotaReader interface {
	Enabled() bool
	ServiceNames() []string
	Remaining(service string) map[string]int
}

type RateLimitHandler struct {
	limiter QuotaReader
}

func NewRateLimitHandler(limiter QuotaReader) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

func (h *RateLimitHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.limiter.ServiceNames()
	sort.Strings(names)

	services := make(map[string]map[string]int, len(names))
	for _, name := range names {
		services[name] = h.limiter.Remaining(name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  h.limiter.Enabled(),
		"services": services,
	})
}

func (h *RateLimitHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	for _, known := range h.limiter.ServiceNames() {
		if known == name {
			writeJSON(w, http.StatusOK, map[string]any{
				"service":   name,
				"enabled":   h.limiter.Enabled(),
				"remaining": h.limiter.Remaining(name),
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown service")
}
