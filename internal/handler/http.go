package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/elo-ledger/internal/auth"
	"github.com/elo-ledger/internal/domain"
	"github.com/elo-ledger/internal/service"
	"github.com/elo-ledger/internal/websocket"
)

// ReadinessCheck reports whether a backing dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the ledger API
type Handler struct {
	ledger   *service.Ledger
	verifier *auth.Verifier
	hub      *websocket.Hub
	checks   map[string]ReadinessCheck
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(ledger *service.Ledger, verifier *auth.Verifier, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:   ledger,
		verifier: verifier,
		hub:      hub,
		checks:   make(map[string]ReadinessCheck),
		logger:   logger,
	}
}

// AddReadinessCheck registers a dependency checked by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.With(h.authenticate).Post("/", h.CreateProfile)

			r.Route("/{identity}", func(r chi.Router) {
				r.Get("/", h.GetProfile)
				r.Get("/games", h.ListGameResults)
				r.Get("/rewards", h.ListRewardClaims)
				r.Post("/quote", h.Quote)

				// Owner-only mutations
				r.Group(func(r chi.Router) {
					r.Use(h.authenticate)
					r.Post("/rating", h.UpdateRating)
					r.Post("/games", h.RecordGameResult)
					r.Post("/reports", h.ReportGame)
					r.Post("/rewards", h.ClaimReward)
				})
			})
		})

		// Rating ladder
		r.Route("/ladder", func(r chi.Router) {
			r.Get("/top", h.GetTop)
			r.Get("/{identity}", h.GetPlayerRank)
			r.Get("/{identity}/around", h.GetAroundPlayer)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type callerKey struct{}

// authenticate resolves the bearer token to the caller's identity
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) domain.Identity {
	caller, _ := ctx.Value(callerKey{}).(domain.Identity)
	return caller
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeLedgerError maps a ledger error onto its HTTP status
func (h *Handler) writeLedgerError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrInvalidToken):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrProfileExists):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrLadderDisabled):
		h.writeError(w, http.StatusServiceUnavailable, err)
	default:
		h.logger.Error("failed to "+op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decodeBody decodes a JSON request body. Enum decode failures keep their
// own error; anything else is reported as ErrInvalidRequest.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMode),
			errors.Is(err, domain.ErrInvalidReward),
			errors.Is(err, domain.ErrInvalidIdentity):
			return err
		}
		return domain.ErrInvalidRequest
	}
	return nil
}

// identityParam parses the {identity} path parameter
func identityParam(r *http.Request) (domain.Identity, error) {
	return domain.ParseIdentity(chi.URLParam(r, "identity"))
}

// intQuery returns a positive integer query parameter, or 0
func intQuery(r *http.Request, name string) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections":  h.hub.GetTotalConnections(),
		"ladder_subscribers": h.hub.GetSubscriberCount(websocket.TopicLadder),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    failed,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

type createProfileRequest struct {
	Username string `json:"username"`
}

// CreateProfile creates the caller's profile
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := h.ledger.CreateProfile(r.Context(), callerFrom(r.Context()), req.Username)
	if err != nil {
		h.writeLedgerError(w, "create profile", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    profile,
	})
}

// GetProfile returns a profile by identity
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	player, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := h.ledger.GetProfile(r.Context(), player)
	if err != nil {
		h.writeLedgerError(w, "get profile", err)
		return
	}

	h.writeSuccess(w, profile)
}

type ratingRequest struct {
	Delta int32           `json:"delta"`
	Won   bool            `json:"won"`
	Mode  domain.GameMode `json:"mode"`
}

// UpdateRating applies a rating delta to the caller's profile
func (h *Handler) UpdateRating(w http.ResponseWriter, r *http.Request) {
	owner, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req ratingRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	change, err := h.ledger.UpdateRating(r.Context(), callerFrom(r.Context()), owner, domain.RatingUpdate{
		Delta: req.Delta,
		Won:   req.Won,
		Mode:  req.Mode,
	})
	if err != nil {
		h.writeLedgerError(w, "update rating", err)
		return
	}

	h.writeSuccess(w, change)
}

type gameRequest struct {
	Mode domain.GameMode `json:"mode"`
	domain.GameOutcome
}

func (h *Handler) decodeGame(w http.ResponseWriter, r *http.Request) (domain.Identity, gameRequest, bool) {
	var req gameRequest
	owner, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return owner, req, false
	}
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return owner, req, false
	}
	return owner, req, true
}

// RecordGameResult logs a game against an already-updated profile
func (h *Handler) RecordGameResult(w http.ResponseWriter, r *http.Request) {
	owner, req, ok := h.decodeGame(w, r)
	if !ok {
		return
	}

	result, err := h.ledger.RecordGameResult(r.Context(), callerFrom(r.Context()), owner, req.Mode, req.GameOutcome)
	if err != nil {
		h.writeLedgerError(w, "record game result", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    result,
	})
}

// ReportGame applies and records a game in one step
func (h *Handler) ReportGame(w http.ResponseWriter, r *http.Request) {
	owner, req, ok := h.decodeGame(w, r)
	if !ok {
		return
	}

	report, err := h.ledger.ReportGame(r.Context(), callerFrom(r.Context()), owner, req.Mode, req.GameOutcome)
	if err != nil {
		h.writeLedgerError(w, "report game", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    report,
	})
}

type rewardRequest struct {
	Kind        domain.RewardKind `json:"kind"`
	MetadataURI string            `json:"metadata_uri"`
}

// ClaimReward records a reward claim for the caller's profile
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	owner, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req rewardRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	claim, err := h.ledger.ClaimReward(r.Context(), callerFrom(r.Context()), owner, req.Kind, req.MetadataURI)
	if err != nil {
		h.writeLedgerError(w, "claim reward", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    claim,
	})
}

// ListGameResults returns a player's recent games
func (h *Handler) ListGameResults(w http.ResponseWriter, r *http.Request) {
	player, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := h.ledger.ListGameResults(r.Context(), player, intQuery(r, "limit"))
	if err != nil {
		h.writeLedgerError(w, "list game results", err)
		return
	}

	h.writeSuccess(w, results)
}

// ListRewardClaims returns a player's recent reward claims
func (h *Handler) ListRewardClaims(w http.ResponseWriter, r *http.Request) {
	player, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	claims, err := h.ledger.ListRewardClaims(r.Context(), player, intQuery(r, "limit"))
	if err != nil {
		h.writeLedgerError(w, "list reward claims", err)
		return
	}

	h.writeSuccess(w, claims)
}

// Quote returns the rating delta a game would produce
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	player, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req service.QuoteRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	delta, err := h.ledger.Quote(r.Context(), player, req)
	if err != nil {
		h.writeLedgerError(w, "quote rating", err)
		return
	}

	h.writeSuccess(w, map[string]int32{"delta": delta})
}

// GetTop returns the top N players of the ladder
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.GetTopN(r.Context(), intQuery(r, "limit"))
	if err != nil {
		h.writeLedgerError(w, "get top", err)
		return
	}

	h.writeSuccess(w, entries)
}

// GetPlayerRank returns a player's ladder position
func (h *Handler) GetPlayerRank(w http.ResponseWriter, r *http.Request) {
	player, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.ledger.GetPlayerRank(r.Context(), player)
	if err != nil {
		h.writeLedgerError(w, "get player rank", err)
		return
	}

	h.writeSuccess(w, entry)
}

// GetAroundPlayer returns the ladder window around a player
func (h *Handler) GetAroundPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := identityParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.ledger.GetAroundPlayer(r.Context(), player, intQuery(r, "range"))
	if err != nil {
		h.writeLedgerError(w, "get around player", err)
		return
	}

	h.writeSuccess(w, entries)
}
