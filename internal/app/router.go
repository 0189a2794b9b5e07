package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	"github.com/fiscalpos/fiscalpos/internal/inventory"
	"github.com/fiscalpos/fiscalpos/internal/observability"
	"github.com/fiscalpos/fiscalpos/internal/platform/httpx"
	"github.com/fiscalpos/fiscalpos/internal/purchasing"
	"github.com/fiscalpos/fiscalpos/internal/sales"
	"github.com/fiscalpos/fiscalpos/internal/shifts"
	"github.com/fiscalpos/fiscalpos/jobs"
	"github.com/fiscalpos/fiscalpos/report"
)

// ReadinessCheck reports whether a backing dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	FiscalHandler     *fiscal.Handler
	SalesHandler      *sales.Handler
	PurchasingHandler *purchasing.Handler
	ShiftsHandler     *shifts.Handler
	InventoryHandler  *inventory.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler

	Readiness map[string]ReadinessCheck
}

// NewRouter constructs the chi.Router with fiscalpos defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Readiness, params.Logger))

	r.Route("/api", func(r chi.Router) {
		if params.FiscalHandler != nil {
			r.Route("/fiscal-ranges", params.FiscalHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/invoices", params.SalesHandler.MountRoutes)
		}
		if params.PurchasingHandler != nil {
			r.Route("/purchase-bills", params.PurchasingHandler.MountRoutes)
		}
		if params.ShiftsHandler != nil {
			r.Route("/shifts", params.ShiftsHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", params.ReportHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readinessHandler(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				result[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "up"
		}
		httpx.JSON(w, status, result)
	}
}
