package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/appMiddleware"
	"FluxMessenger/server/internal/models"
	"FluxMessenger/server/internal/pool"
	"FluxMessenger/server/internal/services"
)

// Handler holds every injected collaborator; nothing in this package
// reaches for globals.
type Handler struct {
	conversations services.ConversationService
	messages      services.MessageService
	readStates    services.ReadStateService
	threads       services.ThreadService
	users         services.UserService
	summaries     services.SummaryProvider
	activity      services.ActivityLogger
	pool          *pool.Pool
	jwtSecret     string
	log           zerolog.Logger
}

func New(
	conversations services.ConversationService,
	messages services.MessageService,
	readStates services.ReadStateService,
	threads services.ThreadService,
	users services.UserService,
	summaries services.SummaryProvider,
	activity services.ActivityLogger,
	p *pool.Pool,
	jwtSecret string,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		conversations: conversations,
		messages:      messages,
		readStates:    readStates,
		threads:       threads,
		users:         users,
		summaries:     summaries,
		activity:      activity,
		pool:          p,
		jwtSecret:     jwtSecret,
		log:           log,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("error encoding response")
	}
}

// writeError translates the service error taxonomy into HTTP statuses.
// Unexpected errors surface as a generic 500 without leaking internals.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidationError(err):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "code": "validation_error"})
	case errors.Is(err, models.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "code": "not_found"})
	case errors.Is(err, models.ErrUnauthorized):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized", "code": "unauthorized"})
	case errors.Is(err, models.ErrEditWindowExpired):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "edit window expired", "code": "edit_window_expired"})
	case errors.Is(err, models.ErrRateLimited):
		h.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited", "code": "rate_limited"})
	case errors.Is(err, models.ErrUpstreamUnavailable):
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "upstream unavailable", "code": "upstream_unavailable"})
	default:
		h.log.Error().Err(err).Msg("internal error")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error", "code": "internal"})
	}
}

// currentUserID pulls the authenticated caller out of the request context.
func (h *Handler) currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := appMiddleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

func urlParamInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryInt64Ptr(r *http.Request, name string) *int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
