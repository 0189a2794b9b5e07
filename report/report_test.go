package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/fiscalpos/fiscalpos/internal/shared"
	"github.com/fiscalpos/fiscalpos/internal/shifts"
)

func fakeGotenberg(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/forms/chromium/convert/html":
			file, _, err := r.FormFile("files")
			if !assert.NoError(t, err) {
				http.Error(w, "missing file", http.StatusBadRequest)
				return
			}
			html, _ := io.ReadAll(file)
			received = append(received, string(html))
			assert.Equal(t, "3.15", r.FormValue("paperWidth"))
			_, _ = w.Write([]byte("%PDF-1.7 fake"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func closedShift() (shifts.Shift, shifts.ClosingPreview) {
	end := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	shift := shifts.Shift{
		ID:             4,
		UserID:         7,
		ShiftType:      "morning",
		StartTime:      end.Add(-8 * time.Hour),
		EndTime:        &end,
		InitialAmount:  decimal.RequireFromString("500"),
		FinalCash:      decimal.RequireFromString("12500.5"),
		FinalCard:      decimal.RequireFromString("300"),
		FinalAmount:    decimal.RequireFromString("13300.5"),
		ExpectedAmount: decimal.RequireFromString("13300.5"),
		Difference:     decimal.Zero,
	}
	preview := shifts.ClosingPreview{
		UserID:         7,
		From:           shift.StartTime,
		To:             end,
		ExpectedCash:   decimal.RequireFromString("12500.5"),
		ExpectedCard:   decimal.RequireFromString("300"),
		InvoiceCount:   1200,
		InvoicedTotal:  decimal.RequireFromString("12800.5"),
		UnprintedCount: 2,
	}
	return shift, preview
}

type shiftSource struct{ err error }

func (s shiftSource) ClosingReport(context.Context, int64) (shifts.Shift, shifts.ClosingPreview, error) {
	if s.err != nil {
		return shifts.Shift{}, shifts.ClosingPreview{}, s.err
	}
	shift, preview := closedShift()
	return shift, preview, nil
}

func TestShiftRendererFormatsAmounts(t *testing.T) {
	srv, received := fakeGotenberg(t)
	renderer, err := NewShiftRenderer(NewClient(srv.URL+"/"), language.English, time.UTC)
	require.NoError(t, err)
	shift, preview := closedShift()

	pdf, err := renderer.Render(context.Background(), ShiftClosing{Shift: shift, Preview: preview})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))
	require.Len(t, *received, 1)
	html := (*received)[0]
	assert.Contains(t, html, "L 12,500.50")
	assert.Contains(t, html, "1,200")
	assert.Contains(t, html, "02/03/2026 18:00")
}

func TestClientReportsRenderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RenderHTML(context.Background(), "<html></html>", PageOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium crashed")
	assert.Error(t, NewClient(srv.URL).Ping(context.Background()))
}

func TestHandlerShiftClosing(t *testing.T) {
	srv, _ := fakeGotenberg(t)
	client := NewClient(srv.URL)
	renderer, err := NewShiftRenderer(client, language.Spanish, time.UTC)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	NewHandler(client, renderer, shiftSource{}, logger).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shifts/4", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shifts/4?format=html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cierre de turno")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	r = chi.NewRouter()
	NewHandler(client, renderer, shiftSource{err: fmt.Errorf("%w: shift 4 is still open", shared.ErrInvalidState)}, logger).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shifts/4", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
