package sales

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fiscalpos/fiscalpos/internal/ledger"
)

func newTestRouter(t *testing.T) (chi.Router, *fixture) {
	t.Helper()
	fx := newFixture(t, 1, 100)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), fx.svc).MountRoutes(r)
	return r, fx
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerInvoiceLifecycle(t *testing.T) {
	r, fx := newTestRouter(t)

	body := `{"customer_id":5,"cashier_id":7,"credit_days":15,"lines":[{"product_id":11,"quantity":"2","unit_price":"500","tax_id":1}]}`
	rec := do(r, http.MethodPost, "/", body, map[string]string{IdempotencyHeader: idemKeyOne})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inv Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, ledger.StatusCreated, inv.Status)
	require.True(t, inv.Total.Equal(dec("1000")))

	rec = do(r, http.MethodPost, "/", body, map[string]string{IdempotencyHeader: idemKeyOne})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, fx.repo.state.invoices, 1)

	rec = do(r, http.MethodPost, "/1/payments", `{"payment_type_id":1,"amount":"1000.01"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, "/1/payments", `{"payment_type_id":1,"amount":"1000"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, ledger.StatusPaid, inv.Status)

	rec = do(r, http.MethodPost, "/1/payments", `{"payment_type_id":1,"amount":"1"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(r, http.MethodPost, "/1/void", `{"reason":"duplicate"}`, map[string]string{"X-User-ID": "3"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, ledger.StatusCancelled, inv.Status)

	rec = do(r, http.MethodPost, "/1/void", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(r, http.MethodPost, "/1/printed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/?status=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"number":"000-001-01-00000001"`)

	rec = do(r, http.MethodGet, "/42", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsMalformedCreate(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(r, http.MethodPost, "/", `{"cashier_id":7,"lines":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/?status=x", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
