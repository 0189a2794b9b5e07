package report

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalpos/fiscalpos/internal/platform/httpx"
	"github.com/fiscalpos/fiscalpos/internal/shifts"
)

// ShiftSource loads a closed shift with its ledger totals.
type ShiftSource interface {
	ClosingReport(ctx context.Context, shiftID int64) (shifts.Shift, shifts.ClosingPreview, error)
}

// Handler manages report endpoints.
type Handler struct {
	client   *Client
	renderer *ShiftRenderer
	shifts   ShiftSource
	logger   *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, renderer *ShiftRenderer, source ShiftSource, logger *slog.Logger) *Handler {
	return &Handler{client: client, renderer: renderer, shifts: source, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/shifts/{id}", h.shiftClosing)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// shiftClosing returns the closing report as PDF, or as HTML with ?format=html.
func (h *Handler) shiftClosing(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	shift, preview, err := h.shifts.ClosingReport(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	data := ShiftClosing{Shift: shift, Preview: preview}
	if r.URL.Query().Get("format") == "html" {
		html, err := h.renderer.HTML(data)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
		return
	}
	pdf, err := h.renderer.Render(r.Context(), data)
	if err != nil {
		h.logger.Error("render shift closing", slog.Int64("shift_id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=shift-%d.pdf", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
