package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/gascontrol/internal/auth"
	"github.com/iurnickita/gascontrol/internal/handler/config"
	"github.com/iurnickita/gascontrol/internal/ledger"
	"github.com/iurnickita/gascontrol/internal/logger"
	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/service"
)

func Serve(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           NewRouter(cfg, auth, service, zaplog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	zaplog.Info("server started", zap.String("address", cfg.ServerAddr))
	return srv.ListenAndServe()
}

// NewRouter returns the API routes with their middleware.
func NewRouter(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) http.Handler {
	return newHandler(cfg, auth, service, zaplog).newRouter()
}

type handler struct {
	cfg     config.Config
	auth    auth.Auth
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &handler{
		cfg:     cfg,
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() http.Handler {
	origins := h.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(middleware.Compress(5, "application/json", "text/csv"))
	r.Use(logger.RequestLogMdlw(h.zaplog))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Route("/pedidos", func(r chi.Router) {
			r.Get("/", h.GetOrders)
			r.Post("/", h.PostOrder)
			r.Patch("/{id}", h.PatchOrder)
		})
		r.Route("/fiados", func(r chi.Router) {
			r.Get("/", h.GetDebtors)
			r.Get("/{id}", h.GetDebt)
			r.Post("/{id}/pagar", h.PostPayment)
		})
		r.Get("/reportes", h.GetReport)
	})

	return r
}

// Заказы

type geoJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type PostOrderJSONRequest struct {
	Customer    string   `json:"cliente"`
	Address     string   `json:"direccion"`
	TankSize    string   `json:"tamanoTanque"`
	TankCount   int      `json:"numeroDeTanques"`
	PaymentType string   `json:"tipoPago"`
	Geolocation *geoJSON `json:"geolocation,omitempty"`
}

type OrderJSONResponse struct {
	ID          string          `json:"id"`
	Operator    string          `json:"gaseroId"`
	Customer    string          `json:"cliente"`
	Address     string          `json:"direccion"`
	TankSize    string          `json:"tamanoTanque"`
	TankCount   int             `json:"numeroDeTanques"`
	PaymentType string          `json:"tipoPago"`
	TotalPrice  decimal.Decimal `json:"precioTotal"`
	Status      string          `json:"estado"`
	Geolocation *geoJSON        `json:"geolocation,omitempty"`
	CreatedAt   time.Time       `json:"fechaCreacion"`
}

func orderJSON(order model.Order) OrderJSONResponse {
	resp := OrderJSONResponse{
		ID:          order.Number,
		Operator:    order.Data.Operator,
		Customer:    order.Data.Customer,
		Address:     order.Data.Address,
		TankSize:    order.Data.TankSize,
		TankCount:   order.Data.TankCount,
		PaymentType: order.Data.PaymentType,
		TotalPrice:  order.Data.TotalPrice,
		Status:      order.Data.Status,
		CreatedAt:   order.Data.CreatedAt,
	}
	if order.Data.Geolocation != nil {
		resp.Geolocation = &geoJSON{Lat: order.Data.Geolocation.Lat, Lng: order.Data.Geolocation.Lng}
	}
	return resp
}

func (h *handler) PostOrder(w http.ResponseWriter, r *http.Request) {
	var orderJSONReq PostOrderJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&orderJSONReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var order model.Order
	order.Data.Operator = auth.Operator(r.Context())
	order.Data.Customer = orderJSONReq.Customer
	order.Data.Address = orderJSONReq.Address
	order.Data.TankSize = orderJSONReq.TankSize
	order.Data.TankCount = orderJSONReq.TankCount
	order.Data.PaymentType = orderJSONReq.PaymentType
	if orderJSONReq.Geolocation != nil {
		order.Data.Geolocation = &model.GeoPoint{Lat: orderJSONReq.Geolocation.Lat, Lng: orderJSONReq.Geolocation.Lng}
	}

	order, err := h.service.PostOrder(r.Context(), order)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, orderJSON(order))
}

func (h *handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrder(r.Context(), auth.Operator(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}

	ordersJSON := make([]OrderJSONResponse, 0, len(orders))
	for _, order := range orders {
		ordersJSON = append(ordersJSON, orderJSON(order))
	}
	h.writeJSON(w, http.StatusOK, ordersJSON)
}

type PatchOrderJSONRequest struct {
	Status string `json:"estado"`
}

func (h *handler) PatchOrder(w http.ResponseWriter, r *http.Request) {
	var patch PatchOrderJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.service.PutOrderStatus(r.Context(), auth.Operator(r.Context()), chi.URLParam(r, "id"), patch.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MessageJSONResponse{Message: "Pedido actualizado exitosamente."})
}

// Fiados

type DebtEntryJSONResponse struct {
	OrderID    string          `json:"pedidoId"`
	Amount     decimal.Decimal `json:"monto"`
	OccurredAt time.Time       `json:"fecha"`
	Kind       string          `json:"tipo"`
}

type DebtJSONResponse struct {
	ID            string                  `json:"id"`
	Operator      string                  `json:"gaseroId"`
	Customer      string                  `json:"clienteNombre"`
	TotalOwed     decimal.Decimal         `json:"deudaTotal"`
	LastUpdatedAt time.Time               `json:"ultimaActualizacion"`
	History       []DebtEntryJSONResponse `json:"historialPedidos"`
}

// debtJSON renders a debt with its history newest first.
func debtJSON(debt model.Debt) DebtJSONResponse {
	resp := DebtJSONResponse{
		ID:            debt.Data.ID,
		Operator:      debt.Key.Operator,
		Customer:      debt.Key.Customer,
		TotalOwed:     debt.Data.TotalOwed,
		LastUpdatedAt: debt.Data.LastUpdatedAt,
		History:       make([]DebtEntryJSONResponse, 0, len(debt.Data.History)),
	}
	for _, entry := range model.SortHistoryDesc(debt.Data.History) {
		resp.History = append(resp.History, DebtEntryJSONResponse{
			OrderID:    entry.SourceID,
			Amount:     entry.Amount,
			OccurredAt: entry.OccurredAt,
			Kind:       entry.Kind,
		})
	}
	return resp
}

func (h *handler) GetDebtors(w http.ResponseWriter, r *http.Request) {
	debts, err := h.service.GetDebtors(r.Context(), auth.Operator(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}

	debtsJSON := make([]DebtJSONResponse, 0, len(debts))
	for _, debt := range debts {
		debtsJSON = append(debtsJSON, debtJSON(debt))
	}
	h.writeJSON(w, http.StatusOK, debtsJSON)
}

func (h *handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	debt, err := h.service.GetDebt(r.Context(), auth.Operator(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, debtJSON(debt))
}

type PostPaymentJSONRequest struct {
	Amount decimal.Decimal `json:"montoPagado"`
}

type PaymentJSONResponse struct {
	Message  string            `json:"message"`
	Settled  bool              `json:"liquidada"`
	Overpaid decimal.Decimal   `json:"excedente"`
	Debt     *DebtJSONResponse `json:"deuda,omitempty"`
}

func (h *handler) PostPayment(w http.ResponseWriter, r *http.Request) {
	var payment PostPaymentJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.PostPayment(r.Context(), auth.Operator(r.Context()), chi.URLParam(r, "id"), payment.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := PaymentJSONResponse{
		Message:  "Pago registrado exitosamente.",
		Settled:  result.Settled,
		Overpaid: result.Overpaid,
	}
	if !result.Settled {
		debt := debtJSON(result.Debt)
		resp.Debt = &debt
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Отчёты

type ReportSummaryJSONResponse struct {
	Revenue         decimal.Decimal `json:"ingresosTotales"`
	DeliveredOrders int             `json:"pedidosCompletados"`
	TanksSold       int             `json:"cilindrosVendidos"`
	NewCredit       decimal.Decimal `json:"nuevosFiados"`
	TanksBySize     map[string]int  `json:"ventasPorTamano"`
}

type ReportJSONResponse struct {
	From    time.Time                 `json:"startDate"`
	To      time.Time                 `json:"endDate"`
	Orders  []OrderJSONResponse       `json:"pedidos"`
	Summary ReportSummaryJSONResponse `json:"resumen"`
}

func (h *handler) GetReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseDate(query.Get("startDate"), false)
	if err != nil {
		http.Error(w, "Se requieren fechas de inicio y fin.", http.StatusBadRequest)
		return
	}
	to, err := parseDate(query.Get("endDate"), true)
	if err != nil {
		http.Error(w, "Se requieren fechas de inicio y fin.", http.StatusBadRequest)
		return
	}

	report, err := h.service.GetReport(r.Context(), auth.Operator(r.Context()), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if query.Get("format") == "csv" {
		h.writeReportCSV(w, report)
		return
	}

	resp := ReportJSONResponse{
		From:   report.From,
		To:     report.To,
		Orders: make([]OrderJSONResponse, 0, len(report.Orders)),
		Summary: ReportSummaryJSONResponse{
			Revenue:         report.Summary.Revenue,
			DeliveredOrders: report.Summary.DeliveredOrders,
			TanksSold:       report.Summary.TanksSold,
			NewCredit:       report.Summary.NewCredit,
			TanksBySize:     map[string]int{},
		},
	}
	for _, order := range report.Orders {
		resp.Orders = append(resp.Orders, orderJSON(order))
	}
	for _, size := range report.Summary.TanksBySize {
		resp.Summary.TanksBySize[size.Size] = size.Tanks
	}
	h.writeJSON(w, http.StatusOK, resp)
}

var reportCSVHeader = []string{"id", "fechaCreacion", "cliente", "tamanoTanque", "numeroDeTanques", "tipoPago", "estado", "precioTotal"}

func (h *handler) writeReportCSV(w http.ResponseWriter, report service.Report) {
	orders := append([]model.Order(nil), report.Orders...)
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Data.CreatedAt.Before(orders[j].Data.CreatedAt)
	})

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="reporte.csv"`)
	cw := csv.NewWriter(w)
	cw.Write(reportCSVHeader)
	for _, order := range orders {
		cw.Write([]string{
			order.Number,
			order.Data.CreatedAt.Format(time.RFC3339),
			order.Data.Customer,
			order.Data.TankSize,
			strconv.Itoa(order.Data.TankCount),
			order.Data.PaymentType,
			order.Data.Status,
			order.Data.TotalPrice.StringFixed(2),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.zaplog.Error("report csv write failed", zap.Error(err))
	}
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, service.ErrInsufficientData
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// Общее

type MessageJSONResponse struct {
	Message string `json:"message"`
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(responseJSON)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInsufficientData),
		errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidPeriod),
		errors.Is(err, ledger.ErrInsufficientData),
		errors.Is(err, ledger.ErrInvalidAmount):
		code = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, ledger.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, ledger.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrUnprocessableEntity):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrConcurrencyExhausted):
		code = http.StatusServiceUnavailable
	}

	if ledger.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	if code == http.StatusInternalServerError || code == http.StatusServiceUnavailable {
		h.zaplog.Error("request failed", zap.Int("code", code), zap.Error(err))
		h.writeJSON(w, code, MessageJSONResponse{Message: "Error interno del servidor."})
		return
	}
	h.writeJSON(w, code, MessageJSONResponse{Message: err.Error()})
}
