// Package handlers serves the station's JSON API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/interfaces/http/rest/middleware"
	"github.com/hchapman/WBOR-sub000/internal/service/station"
	"github.com/hchapman/WBOR-sub000/pkg/api"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Handler serves every route over one station.
type Handler struct {
	station *station.Station
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler creates a handler for st. A nil now uses the wall clock.
func NewHandler(st *station.Station, logger *zap.Logger, now func() time.Time) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{station: st, logger: logger, now: now}
}

// handleServiceError converts service errors to HTTP responses. Internal
// details are logged, never returned.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestIDFromRequest(r)
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("internal error",
			zap.String("requestID", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		api.Error(w, status, "An internal error occurred")
		return
	}
	h.logger.Debug("request rejected",
		zap.String("requestID", requestID),
		zap.Int("status", status),
		zap.Error(err),
	)
	api.Error(w, status, err.Error())
}

// decode reads a JSON body into req and checks its validate tags.
func decode(r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return apperrors.NewValidation("invalid request body", err)
	}
	return domain.Validate(req)
}

// limitParam reads ?limit=, bounded to maxLimit.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.NewValidation(fmt.Sprintf("limit %q must be a positive integer", raw), err)
	}
	return min(n, maxLimit), nil
}

// keyParam parses an encoded entity key from the named URL parameter and
// checks its kind.
func keyParam(r *http.Request, name, kind string) (persistence.Key, error) {
	raw := chi.URLParam(r, name)
	key, err := persistence.ParseKey(raw)
	if err != nil {
		return persistence.Key{}, apperrors.NewValidation(fmt.Sprintf("invalid key %q", raw), err)
	}
	if key.Kind != kind {
		return persistence.Key{}, apperrors.NewValidation(fmt.Sprintf("key %q is not a %s", raw, kind), nil)
	}
	return key, nil
}

// parseKeys decodes a list of encoded keys of kind.
func parseKeys(raw []string, kind string) ([]persistence.Key, error) {
	keys := make([]persistence.Key, 0, len(raw))
	for _, s := range raw {
		key, err := persistence.ParseKey(s)
		if err != nil {
			return nil, apperrors.NewValidation(fmt.Sprintf("invalid key %q", s), err)
		}
		if key.Kind != kind {
			return nil, apperrors.NewValidation(fmt.Sprintf("key %q is not a %s", s, kind), nil)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "healthy"})
}
