package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	"github.com/smallbiznis/cashback/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobRunner struct {
	gotJob string
	gotAt  time.Time
	result scheduler.JobResult
	err    error
}

func (f *fakeJobRunner) RunJob(_ context.Context, name string, at time.Time) (scheduler.JobResult, error) {
	f.gotJob = name
	f.gotAt = at
	return f.result, f.err
}

type fakeInvoiceSvc struct {
	invoicedomain.Service
	invoices map[snowflake.ID]invoicedomain.Invoice
}

func (f *fakeInvoiceSvc) GetByID(_ context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (f *fakeInvoiceSvc) MarkPaid(_ context.Context, id snowflake.ID, _ time.Time) (invoicedomain.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	if inv.Status == invoicedomain.InvoiceStatusPaid {
		return inv, invoicedomain.ErrInvalidStatusTransition
	}
	inv.Status = invoicedomain.InvoiceStatusPaid
	f.invoices[id] = inv
	return inv, nil
}

func newTestServer(jobs JobRunner, invoices invoicedomain.Service) *Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	s := newServer(r, nil, jobs, invoices, nil)
	s.registerRoutes()
	return s
}

func do(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestRunJobPassesDateAndReturnsResult(t *testing.T) {
	runner := &fakeJobRunner{result: scheduler.JobResult{
		Job:      scheduler.JobInvoiceGeneration,
		AsOf:     "2024-01-01",
		Summary:  "invoice generation for 2024-01-01: 1 processed, 1 succeeded, 0 failed, 0 skipped",
		Invoices: &invoicedomain.GenerateResult{Processed: 1, Succeeded: 1, Errors: []invoicedomain.GenerateError{}},
	}}
	s := newTestServer(runner, &fakeInvoiceSvc{})

	rec, body := do(t, s, http.MethodPost, "/v1/jobs/invoice_generation/run?date=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scheduler.JobInvoiceGeneration, runner.gotJob)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(runner.gotAt))

	data := body["data"].(map[string]any)
	invoices := data["invoices"].(map[string]any)
	assert.Equal(t, float64(1), invoices["processed"])
	assert.Equal(t, float64(1), invoices["succeeded"])
	assert.Equal(t, float64(0), invoices["failed"])
}

func TestRunJobWithoutDateUsesZeroTime(t *testing.T) {
	runner := &fakeJobRunner{}
	s := newTestServer(runner, &fakeInvoiceSvc{})

	rec, _ := do(t, s, http.MethodPost, "/v1/jobs/dunning/run")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.gotAt.IsZero())
}

func TestRunJobErrors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
		typ    string
	}{
		{"unknown job", "/v1/jobs/rollup/run", nil, http.StatusNotFound, "not_found"},
		{"bad date", "/v1/jobs/dunning/run?date=01-05-2024", nil, http.StatusBadRequest, "validation_error"},
		{"locked", "/v1/jobs/dunning/run", fmt.Errorf("dunning: %w", scheduler.ErrJobLocked), http.StatusConflict, "conflict"},
		{"failed", "/v1/jobs/dunning/run", errors.New("connection refused"), http.StatusInternalServerError, "job_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeJobRunner{err: tc.err}, &fakeInvoiceSvc{})
			rec, body := do(t, s, http.MethodPost, tc.target)
			require.Equal(t, tc.status, rec.Code)
			errBody := body["error"].(map[string]any)
			assert.Equal(t, tc.typ, errBody["type"])
		})
	}
}

func TestInvoiceRoutes(t *testing.T) {
	id := snowflake.ID(42)
	invoices := &fakeInvoiceSvc{invoices: map[snowflake.ID]invoicedomain.Invoice{
		id: {ID: id, Number: "INV-202401-000001", Status: invoicedomain.InvoiceStatusPending},
	}}
	s := newTestServer(&fakeJobRunner{}, invoices)

	rec, body := do(t, s, http.MethodGet, "/v1/invoices/42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "INV-202401-000001", body["data"].(map[string]any)["number"])

	rec, _ = do(t, s, http.MethodGet, "/v1/invoices/7")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/v1/invoices/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, s, http.MethodPost, "/v1/invoices/42/pay")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(invoicedomain.InvoiceStatusPaid), body["data"].(map[string]any)["status"])

	rec, _ = do(t, s, http.MethodPost, "/v1/invoices/42/pay")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthWithoutDatabase(t *testing.T) {
	s := newTestServer(&fakeJobRunner{}, &fakeInvoiceSvc{})
	rec, body := do(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}
