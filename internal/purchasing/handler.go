package purchasing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for purchase bills.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the purchase bill handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers purchase bill routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/payments", h.handlePayment)
	r.Post("/{id}/void", h.handleVoid)
}

type lineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TaxID     int64           `json:"tax_id" validate:"required,gt=0"`
}

type paymentRequest struct {
	PaymentTypeID int64           `json:"payment_type_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
}

type createRequest struct {
	ProviderID int64            `json:"provider_id" validate:"required,gt=0"`
	CreditDays int              `json:"credit_days" validate:"gte=0,lte=365"`
	Lines      []lineRequest    `json:"lines" validate:"required,min=1,dive"`
	Payments   []paymentRequest `json:"payments" validate:"dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input := CreateBillInput{
		ProviderID: req.ProviderID,
		CreatedBy:  httpx.ActorID(r),
		Plan:       PaymentPlan{CreditDays: req.CreditDays},
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost, TaxID: l.TaxID})
	}
	for _, p := range req.Payments {
		input.Plan.Payments = append(input.Plan.Payments, PaymentInput{PaymentTypeID: p.PaymentTypeID, Amount: p.Amount})
	}
	bill, err := h.service.CreateBill(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		filter ListFilter
		values [4]int64
	)
	for i, name := range []string{"status", "provider_id", "limit", "offset"} {
		v, err := httpx.QueryInt64(r, name)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		values[i] = v
	}
	filter.Status = ledger.Status(values[0])
	filter.ProviderID = values[1]
	filter.Limit, filter.Offset = int(values[2]), int(values[3])
	bills, err := h.service.ListBills(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bills)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	bill, err := h.service.GetBill(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	bill, err := h.service.ApplyBillPayment(r.Context(), id, req.PaymentTypeID, req.Amount)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req struct {
		Reason string `json:"reason" validate:"max=255"`
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	bill, err := h.service.VoidBill(r.Context(), id, httpx.ActorID(r), req.Reason)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}
