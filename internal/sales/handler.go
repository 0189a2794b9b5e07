package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/platform/httpx"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// IdempotencyHeader lets clients retry invoice creation safely.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the invoice handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/payments", h.handlePayment)
	r.Post("/{id}/void", h.handleVoid)
	r.Post("/{id}/printed", h.handlePrinted)
}

type lineRequest struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TaxID      int64           `json:"tax_id" validate:"required,gt=0"`
	DiscountID int64           `json:"discount_id" validate:"gte=0"`
}

type paymentRequest struct {
	PaymentTypeID int64           `json:"payment_type_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
}

type createRequest struct {
	CustomerID    int64            `json:"customer_id" validate:"gte=0"`
	CashierID     int64            `json:"cashier_id" validate:"required,gt=0"`
	FiscalRangeID int64            `json:"fiscal_range_id" validate:"gte=0"`
	CreditDays    int              `json:"credit_days" validate:"gte=0,lte=365"`
	Lines         []lineRequest    `json:"lines" validate:"required,min=1,dive"`
	Payments      []paymentRequest `json:"payments" validate:"dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input := CreateInvoiceInput{
		CustomerID:     req.CustomerID,
		CashierID:      req.CashierID,
		FiscalRangeID:  req.FiscalRangeID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
		Plan:           PaymentPlan{CreditDays: req.CreditDays},
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			TaxID:      l.TaxID,
			DiscountID: l.DiscountID,
		})
	}
	for _, p := range req.Payments {
		input.Plan.Payments = append(input.Plan.Payments, PaymentInput{PaymentTypeID: p.PaymentTypeID, Amount: p.Amount})
	}
	inv, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	status, err := httpx.QueryInt64(r, "status")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter.Status = ledger.Status(status)
	if filter.CustomerID, err = httpx.QueryInt64(r, "customer_id"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.CashierID, err = httpx.QueryInt64(r, "cashier_id"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	offset, err := httpx.QueryInt64(r, "offset")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter.Limit, filter.Offset = int(limit), int(offset)
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse(time.DateOnly, from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		toDate, err := time.Parse(time.DateOnly, to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = toDate.AddDate(0, 0, 1)
	}
	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
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
	inv, err := h.service.ApplyPayment(shared.ContextWithActor(r.Context(), httpx.ActorID(r)), id, req.PaymentTypeID, req.Amount)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req voidRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	inv, err := h.service.VoidInvoice(r.Context(), id, httpx.ActorID(r), req.Reason)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handlePrinted(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.MarkPrinted(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}
