package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/config"
	"github.com/ekaya-inc/ekaya-schema/pkg/logging"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports liveness and whether the target database answers.
type HealthResponse struct {
	Status     string `json:"status"`
	Datasource string `json:"datasource,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ConnectionChecker is satisfied by datasource adapters.
type ConnectionChecker interface {
	TestConnection(ctx context.Context) error
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	target ConnectionChecker
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. target may be nil, in which
// case only liveness is reported.
func NewHealthHandler(cfg *config.Config, target ConnectionChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, target: target, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if h.target != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.target.TestConnection(ctx); err != nil {
			h.logger.Warn("Target datasource health check failed", zap.String("error", logging.SanitizeError(err)))
			resp.Status = "degraded"
			resp.Datasource = "unreachable"
			resp.Error = logging.SanitizeError(err)
			status = http.StatusServiceUnavailable
		} else {
			resp.Datasource = "ok"
		}
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-schema",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
