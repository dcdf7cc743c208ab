// Package server exposes the HTTP API: estimation queries, watch
// subscriptions, and the bearer-gated cycle trigger.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chainpulse/blockwatch/estimation"
	"github.com/chainpulse/blockwatch/models"
	"github.com/chainpulse/blockwatch/scheduler"
	"github.com/chainpulse/blockwatch/store"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// CycleRunner is what the server needs from the scheduler.
type CycleRunner interface {
	Subscribe(ctx context.Context, req scheduler.SubscribeRequest) (*models.BlockWatch, []models.Notification, error)
	Cancel(ctx context.Context, id uuid.UUID, owner string) error
	RunCycle(ctx context.Context) ([]scheduler.ItemResult, error)
}

type Server struct {
	log        *slog.Logger
	estimator  estimation.Estimator
	scheduler  CycleRunner
	cycleToken string
}

func New(log *slog.Logger, estimator estimation.Estimator, sched CycleRunner, cycleToken string) *Server {
	return &Server{
		log:        log.With("module", "server"),
		estimator:  estimator,
		scheduler:  sched,
		cycleToken: cycleToken,
	}
}

// Handler returns the routed HTTP handler with transparent response
// compression.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/estimate/time", s.handleEstimateTime)
	mux.HandleFunc("GET /api/v1/estimate/height", s.handleEstimateHeight)
	mux.HandleFunc("POST /api/v1/watches", s.handleCreateWatch)
	mux.HandleFunc("DELETE /api/v1/watches/{id}", s.handleDeleteWatch)
	mux.HandleFunc("POST /api/v1/cycle", s.requireCycleToken(s.handleRunCycle))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return gzhttp.GzipHandler(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEstimationError maps the estimation error taxonomy onto HTTP statuses:
// domain conditions are 422, source exhaustion is 502.
func (s *Server) writeEstimationError(w http.ResponseWriter, err error) {
	var reached *models.AlreadyReachedError
	var inPast *models.TargetInPastError
	var allFailed *models.AllSourcesFailedError
	switch {
	case errors.As(err, &reached):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          "target block already reached",
			"kind":           "already_reached",
			"current_height": reached.CurrentHeight,
			"target_height":  reached.TargetHeight,
		})
	case errors.As(err, &inPast):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "target time is not in the future",
			"kind":  "target_in_past",
		})
	case errors.As(err, &allFailed):
		s.log.Error("All sources failed", "error", err)
		writeError(w, http.StatusBadGateway, "all chain sources are currently unavailable")
	default:
		s.log.Error("Estimation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func requireNetwork(w http.ResponseWriter, raw string) (models.Network, bool) {
	network := models.Network(raw)
	if !network.Valid() {
		writeError(w, http.StatusBadRequest, "network must be one of: mainnet, testnet")
		return "", false
	}
	return network, true
}

func (s *Server) handleEstimateTime(w http.ResponseWriter, r *http.Request) {
	network, ok := requireNetwork(w, r.URL.Query().Get("network"))
	if !ok {
		return
	}
	height, err := strconv.ParseInt(r.URL.Query().Get("height"), 10, 64)
	if err != nil || height <= 0 {
		writeError(w, http.StatusBadRequest, "height must be a positive integer")
		return
	}

	estimate, err := s.estimator.TimeForBlock(r.Context(), network, height)
	if err != nil {
		s.writeEstimationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (s *Server) handleEstimateHeight(w http.ResponseWriter, r *http.Request) {
	network, ok := requireNetwork(w, r.URL.Query().Get("network"))
	if !ok {
		return
	}
	targetTime, err := time.Parse(time.RFC3339, r.URL.Query().Get("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "time must be an RFC 3339 timestamp")
		return
	}

	var overrideMs float64
	if raw := r.URL.Query().Get("block_time_seconds"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds <= 0 {
			writeError(w, http.StatusBadRequest, "block_time_seconds must be a positive number")
			return
		}
		overrideMs = seconds * 1000
	}

	estimate, err := s.estimator.BlockForTime(r.Context(), network, targetTime, overrideMs)
	if err != nil {
		s.writeEstimationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

type createWatchRequest struct {
	Owner        string  `json:"owner"`
	Network      string  `json:"network"`
	TargetHeight int64   `json:"target_height"`
	Timezone     string  `json:"timezone"`
	Title        string  `json:"title"`
	WebhookURL   *string `json:"webhook_url"`
	Email        *string `json:"email"`
}

type createWatchResponse struct {
	ID            uuid.UUID      `json:"id"`
	Network       models.Network `json:"network"`
	TargetHeight  int64          `json:"target_height"`
	CurrentHeight int64          `json:"current_height"`
	EstimatedAt   time.Time      `json:"estimated_at"`
	Tiers         []string       `json:"tiers"`
}

func (s *Server) handleCreateWatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req createWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	network, ok := requireNetwork(w, req.Network)
	if !ok {
		return
	}
	if req.TargetHeight <= 0 {
		writeError(w, http.StatusBadRequest, "target_height must be a positive integer")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	watch, notifications, err := s.scheduler.Subscribe(r.Context(), scheduler.SubscribeRequest{
		Owner:        req.Owner,
		Network:      network,
		TargetHeight: req.TargetHeight,
		Timezone:     req.Timezone,
		Title:        req.Title,
		WebhookURL:   req.WebhookURL,
		Email:        req.Email,
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrNoDeliveryChannel) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeEstimationError(w, err)
		return
	}

	tiers := make([]string, len(notifications))
	for i, n := range notifications {
		tiers[i] = n.Tier.String()
	}
	writeJSON(w, http.StatusCreated, createWatchResponse{
		ID:            watch.ID,
		Network:       watch.Network,
		TargetHeight:  watch.TargetHeight,
		CurrentHeight: watch.CurrentHeight,
		EstimatedAt:   watch.EstimatedAt,
		Tiers:         tiers,
	})
}

func (s *Server) handleDeleteWatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid watch id")
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query param is required")
		return
	}

	if err := s.scheduler.Cancel(r.Context(), id, owner); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "watch not found")
			return
		}
		s.log.Error("Cancel watch failed", "watchID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireCycleToken gates the cycle trigger behind a constant-time bearer
// token comparison.
func (s *Server) requireCycleToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cycleToken == "" {
			writeError(w, http.StatusForbidden, "cycle trigger endpoint is disabled")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cycleToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	results, err := s.scheduler.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleBusy) {
			writeError(w, http.StatusConflict, "a processing cycle is already running")
			return
		}
		s.log.Error("Cycle failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": results})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
