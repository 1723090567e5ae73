package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/gascontrol/internal/auth"
	authConfig "github.com/iurnickita/gascontrol/internal/auth/config"
	"github.com/iurnickita/gascontrol/internal/client"
	"github.com/iurnickita/gascontrol/internal/handler/config"
	"github.com/iurnickita/gascontrol/internal/ledger"
	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/service"
	serviceConfig "github.com/iurnickita/gascontrol/internal/service/config"
	"github.com/iurnickita/gascontrol/internal/store"
	"github.com/iurnickita/gascontrol/internal/token"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := service.NewService(serviceConfig.Config{LedgerMaxAttempts: 50}, store.NewMemory(), nil)
	require.NoError(t, err)
	h := newHandler(config.Config{}, auth.NewAuth(authConfig.Config{Secret: testSecret}, nil), svc, nil)

	srv := httptest.NewServer(h.newRouter())
	t.Cleanup(srv.Close)
	return srv
}

func operatorToken(t *testing.T, operator string) string {
	t.Helper()
	tokenString, err := token.BuildJWTString(testSecret, "", operator, time.Hour)
	require.NoError(t, err)
	return tokenString
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, operator, body string) *http.Response {
	t.Helper()
	request, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if operator != "" {
		request.Header.Set("Authorization", "Bearer "+operatorToken(t, operator))
	}
	request.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(request)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/fiados", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	request, err := http.NewRequest(http.MethodGet, srv.URL+"/api/fiados", nil)
	require.NoError(t, err)
	request.Header.Set("Authorization", "Bearer forged")
	resp, err = srv.Client().Do(request)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrders(t *testing.T) {
	srv := newTestServer(t)

	// Создание заказа
	resp := doRequest(t, srv, http.MethodPost, "/api/pedidos", "O1",
		`{"cliente":"Juan","direccion":"Calle 1","tamanoTanque":"20kg","numeroDeTanques":2,"tipoPago":"Contado","geolocation":{"lat":19.4,"lng":-99.1}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created OrderJSONResponse
	decode(t, resp, &created)
	assert.Equal(t, "O1", created.Operator)
	assert.Equal(t, model.OrderStatusPending, created.Status)
	assert.True(t, created.TotalPrice.Equal(decimal.NewFromInt(800)))
	require.NotNil(t, created.Geolocation)

	resp = doRequest(t, srv, http.MethodPost, "/api/pedidos", "O1",
		`{"cliente":"Juan","direccion":"Calle 1","tamanoTanque":"15kg","numeroDeTanques":1,"tipoPago":"Contado"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodPost, "/api/pedidos", "O1", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Список заказов
	resp = doRequest(t, srv, http.MethodGet, "/api/pedidos", "O1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []OrderJSONResponse
	decode(t, resp, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, created.ID, orders[0].ID)

	resp = doRequest(t, srv, http.MethodGet, "/api/pedidos", "O2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &orders)
	assert.Empty(t, orders)

	// Смена статуса
	tests := []struct {
		name     string
		id       string
		operator string
		body     string
		code     int
	}{
		{"ok", created.ID, "O1", `{"estado":"En camino"}`, http.StatusOK},
		{"other operator", created.ID, "O2", `{"estado":"Entregado"}`, http.StatusForbidden},
		{"bad status", created.ID, "O1", `{"estado":"Perdido"}`, http.StatusBadRequest},
		{"bad luhn", "12345", "O1", `{"estado":"Entregado"}`, http.StatusUnprocessableEntity},
		{"unknown", service.NewOrderNumber(), "O1", `{"estado":"Entregado"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, srv, http.MethodPatch, "/api/pedidos/"+tt.id, tt.operator, tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestFiadosFlow(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := client.NewClient(srv.URL, operatorToken(t, "O1"))

	// два заказа в кредит для Juan
	for _, size := range []string{"10kg", "20kg"} {
		_, err := c.PostOrder(ctx, client.Order{
			Customer: "Juan", Address: "Calle 1", TankSize: size, TankCount: 1, PaymentType: model.PaymentTypeCredit,
		})
		require.NoError(t, err)
	}

	debts, err := c.ListDebtors(ctx)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	debt := debts[0]
	assert.Equal(t, "Juan", debt.Customer)
	assert.True(t, debt.TotalOwed.Equal(decimal.NewFromInt(600)))
	require.Len(t, debt.History, 2)
	assert.False(t, debt.History[0].OccurredAt.Before(debt.History[1].OccurredAt))

	// чужой оператор
	other := client.NewClient(srv.URL, operatorToken(t, "O2"))
	_, err = other.PayDebt(ctx, debt.ID, decimal.NewFromInt(100))
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)

	_, err = c.PayDebt(ctx, debt.ID, decimal.NewFromInt(0))
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)

	// частичная оплата
	answer, err := c.PayDebt(ctx, debt.ID, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.False(t, answer.Settled)
	require.NotNil(t, answer.Debt)
	assert.True(t, answer.Debt.TotalOwed.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, model.DebtEntryPayment, answer.Debt.History[0].Kind)

	got, err := c.GetDebt(ctx, debt.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 3)

	// переплата закрывает долг
	answer, err = c.PayDebt(ctx, debt.ID, decimal.NewFromInt(550))
	require.NoError(t, err)
	assert.True(t, answer.Settled)
	assert.True(t, answer.Overpaid.Equal(decimal.NewFromInt(50)))

	_, err = c.GetDebt(ctx, debt.ID)
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	debts, err = c.ListDebtors(ctx)
	require.NoError(t, err)
	assert.Empty(t, debts)
}

func TestConcurrentCreditOrders(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := client.NewClient(srv.URL, operatorToken(t, "O1"))

	const orders = 10
	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.PostOrder(ctx, client.Order{
				Customer: "Juan", Address: "Calle 1", TankSize: "10kg", TankCount: 1, PaymentType: model.PaymentTypeCredit,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	debts, err := c.ListDebtors(ctx)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Len(t, debts[0].History, orders)
	assert.True(t, debts[0].TotalOwed.Equal(decimal.NewFromInt(200*orders)))
}

func TestReport(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/pedidos", "O1",
		`{"cliente":"Juan","direccion":"Calle 1","tamanoTanque":"30kg","numeroDeTanques":1,"tipoPago":"Fiado"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created OrderJSONResponse
	decode(t, resp, &created)
	resp = doRequest(t, srv, http.MethodPatch, "/api/pedidos/"+created.ID, "O1", `{"estado":"Entregado"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	today := time.Now().UTC().Format(time.DateOnly)
	resp = doRequest(t, srv, http.MethodGet, "/api/reportes?startDate="+today+"&endDate="+today, "O1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report ReportJSONResponse
	decode(t, resp, &report)
	require.Len(t, report.Orders, 1)
	assert.True(t, report.Summary.Revenue.Equal(decimal.NewFromInt(600)))
	assert.True(t, report.Summary.NewCredit.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, 1, report.Summary.DeliveredOrders)
	assert.Equal(t, map[string]int{"30kg": 1}, report.Summary.TanksBySize)

	resp = doRequest(t, srv, http.MethodGet, "/api/reportes?startDate="+today+"&endDate="+today+"&format=csv", "O1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, reportCSVHeader, records[0])
	assert.Equal(t, created.ID, records[1][0])
	assert.Equal(t, "600.00", records[1][7])

	resp = doRequest(t, srv, http.MethodGet, "/api/reportes?startDate="+today, "O1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodGet, "/api/reportes?startDate=2025-03-10&endDate=2025-03-01", "O1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseDate(t *testing.T) {
	from, err := parseDate("2025-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := parseDate("2025-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 23, 59, 59, 999999999, time.UTC), to)

	at, err := parseDate("2025-03-01T10:00:00-06:00", true)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC)))

	_, err = parseDate("", false)
	require.Error(t, err)
	_, err = parseDate("ayer", false)
	require.Error(t, err)
}

func TestWriteError(t *testing.T) {
	h := newHandler(config.Config{}, nil, nil, nil)

	tests := []struct {
		err  error
		code int
	}{
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{ledger.ErrNotFound, http.StatusNotFound},
		{ledger.ErrForbidden, http.StatusForbidden},
		{service.ErrUnprocessableEntity, http.StatusUnprocessableEntity},
		{ledger.ErrConcurrencyExhausted, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, errors.New("connection refused")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			h.writeError(w, tt.err)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "connection refused")
			}
		})
	}

	w := httptest.NewRecorder()
	h.writeError(w, ledger.ErrConcurrencyExhausted)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
