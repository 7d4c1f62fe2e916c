package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/infra/buildinfo"
	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

const readyTimeout = 2 * time.Second

// HealthResponse is the body of the health and readiness endpoints.
type HealthResponse struct {
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Version buildinfo.Info `json:"version"`
}

// handleHealth reports that the process is serving.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: buildinfo.Get()})
}

// readyHandler probes the store with a point lookup of the nil user.
// Not found is the healthy answer.
func readyHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		resp := HealthResponse{Status: "ok", Version: buildinfo.Get()}
		code := http.StatusOK

		_, err := store.FindUser(ctx, uuid.Nil)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.L(r.Context()).Warn("readiness probe failed", "error", err)
			resp.Status = "unavailable"
			resp.Error = err.Error()
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, resp)
	}
}
