package handler

import (
	"net/http"

	"github.com/zackweld/crAPI/internal/server/httpx"
)

// HTTP returns the GET /health handler: 200 when every component is healthy, 503 otherwise.
func HTTP(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components, healthy := c.Check(r.Context())
		if !healthy {
			httpx.Data(w, http.StatusServiceUnavailable, "NOT_SERVING", components)
			return
		}
		httpx.Data(w, http.StatusOK, "SERVING", components)
	}
}
