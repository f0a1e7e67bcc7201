package api

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/okian/facepulse/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupDependencies reports missing datastore tables.
type SetupDependencies interface {
	SetupStatus(ctx context.Context) ([]string, error)
}

// HealthHandler serves the metrics scrape and the setup check.
type HealthHandler struct {
	deps    SetupDependencies
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps SetupDependencies) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz with the Prometheus exposition.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

type setupResponse struct {
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing"`
}

// HandleSetup handles GET /setup. It answers 503 while tables are missing
// so load balancers keep the instance out of rotation.
func (h *HealthHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	const op = "api.setup"
	missing, err := h.deps.SetupStatus(r.Context())
	if err != nil {
		fail(w, op, err)
		return
	}
	if missing == nil {
		missing = []string{}
	}
	status := http.StatusOK
	if len(missing) > 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, setupResponse{Ready: len(missing) == 0, Missing: missing})
}

// StatsProvider reports queue, worker, flow and ranking counters.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

//go:embed static
var staticFiles embed.FS

var dashboardFS = func() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}()

// StatsHandler serves the live counters and the dashboard page that polls
// them together with /analytics and /scores.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.GetStats())
}

// HandleDashboard handles GET /dashboard.
func (h *StatsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, dashboardFS, "dashboard.html")
}
