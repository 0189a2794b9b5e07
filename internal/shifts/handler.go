package shifts

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for shifts.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the shift handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers shift routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleOpen)
	r.Get("/open", h.handleGetOpen)
	r.Get("/preview", h.handlePreview)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/close", h.handleClose)
}

type openRequest struct {
	UserID        int64           `json:"user_id" validate:"required,gt=0"`
	ShiftType     string          `json:"shift_type" validate:"required,max=32"`
	InitialAmount decimal.Decimal `json:"initial_amount"`
}

type closeRequest struct {
	ReportedCash  decimal.Decimal `json:"reported_cash"`
	ReportedCard  decimal.Decimal `json:"reported_card"`
	ExpectedTotal decimal.Decimal `json:"expected_total"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	shift, err := h.service.OpenShift(r.Context(), req.UserID, req.ShiftType, req.InitialAmount)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shift)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	shift, err := h.service.CloseShift(r.Context(), id, req.ReportedCash, req.ReportedCard, req.ExpectedTotal)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) handleGetOpen(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.QueryInt64(r, "user_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	shift, err := h.service.GetOpenShift(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

// handlePreview previews an explicit window when start is given, otherwise
// the user's open shift.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.QueryInt64(r, "user_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	var preview ClosingPreview
	if start := q.Get("start"); start != "" {
		from, err := time.Parse(time.RFC3339, start)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start must be an RFC 3339 timestamp")
			return
		}
		initial := decimal.Zero
		if raw := q.Get("initial"); raw != "" {
			if initial, err = decimal.NewFromString(raw); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "initial must be a decimal amount")
				return
			}
		}
		preview, err = h.service.GetShiftClosingPreview(r.Context(), userID, from, initial)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	} else {
		if preview, err = h.service.PreviewOpenShift(r.Context(), userID); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	shift, err := h.service.GetShift(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.QueryInt64(r, "user_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	shifts, err := h.service.ListShifts(r.Context(), userID, int(limit))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shifts)
}
