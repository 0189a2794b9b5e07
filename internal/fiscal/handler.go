package fiscal

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalpos/fiscalpos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for fiscal ranges.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs fiscal handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers fiscal range routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/capacity", h.handleCapacity)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Post("/{id}/activate", h.handleSetActive(true))
	r.Post("/{id}/deactivate", h.handleSetActive(false))
	r.Post("/{id}/allocate", h.handleAllocate)
}

type rangeRequest struct {
	AuthorizationCode string `json:"authorization_code" validate:"required"`
	Prefix            string `json:"prefix" validate:"required"`
	ValidFrom         string `json:"valid_from" validate:"required,datetime=2006-01-02"`
	ValidTo           string `json:"valid_to" validate:"required,datetime=2006-01-02"`
	Initial           int64  `json:"initial" validate:"gte=1"`
	Final             int64  `json:"final" validate:"gtefield=Initial"`
	Active            bool   `json:"active"`
}

type allocationResponse struct {
	Correlative int64  `json:"correlative"`
	Number      string `json:"number"`
	Range       Range  `json:"range"`
}

func (req rangeRequest) window() (time.Time, time.Time) {
	from, _ := time.Parse(time.DateOnly, req.ValidFrom)
	to, _ := time.Parse(time.DateOnly, req.ValidTo)
	return from, to
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ranges, err := h.service.ListRanges(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ranges)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	from, to := req.window()
	rng, err := h.service.CreateRange(r.Context(), httpx.ActorID(r), CreateRangeInput{
		AuthorizationCode: req.AuthorizationCode,
		Prefix:            req.Prefix,
		ValidFrom:         from,
		ValidTo:           to,
		Initial:           req.Initial,
		Final:             req.Final,
		Active:            req.Active,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("fiscal range created", slog.Int64("range_id", rng.ID), slog.String("prefix", rng.Prefix))
	httpx.JSON(w, http.StatusCreated, rng)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rng, err := h.service.GetRange(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rng)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req rangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	from, to := req.window()
	rng, err := h.service.UpdateRange(r.Context(), httpx.ActorID(r), id, UpdateRangeInput{
		AuthorizationCode: req.AuthorizationCode,
		Prefix:            req.Prefix,
		ValidFrom:         from,
		ValidTo:           to,
		Initial:           req.Initial,
		Final:             req.Final,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rng)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		rng, err := h.service.SetActive(r.Context(), httpx.ActorID(r), id, active)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rng)
	}
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	alloc, err := h.service.Allocate(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocationResponse{Correlative: alloc.Correlative, Number: alloc.Number, Range: alloc.Range})
}

func (h *Handler) handleCapacity(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.Capacity(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports)
}
