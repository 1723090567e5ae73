// Package client talks to a running gascontrol server on behalf of an operator.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

type HistoryEntry struct {
	OrderID    string          `json:"pedidoId"`
	Amount     decimal.Decimal `json:"monto"`
	OccurredAt time.Time       `json:"fecha"`
	Kind       string          `json:"tipo"`
}

// JSON ответ /api/fiados
type Debt struct {
	ID            string          `json:"id"`
	Operator      string          `json:"gaseroId"`
	Customer      string          `json:"clienteNombre"`
	TotalOwed     decimal.Decimal `json:"deudaTotal"`
	LastUpdatedAt time.Time       `json:"ultimaActualizacion"`
	History       []HistoryEntry  `json:"historialPedidos"`
}

type PaymentAnswer struct {
	Message  string          `json:"message"`
	Settled  bool            `json:"liquidada"`
	Overpaid decimal.Decimal `json:"excedente"`
	Debt     *Debt           `json:"deuda,omitempty"`
}

type Order struct {
	ID          string          `json:"id"`
	Customer    string          `json:"cliente"`
	Address     string          `json:"direccion"`
	TankSize    string          `json:"tamanoTanque"`
	TankCount   int             `json:"numeroDeTanques"`
	PaymentType string          `json:"tipoPago"`
	TotalPrice  decimal.Decimal `json:"precioTotal"`
	Status      string          `json:"estado"`
	CreatedAt   time.Time       `json:"fechaCreacion"`
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gascontrol request status %d: %s", e.Code, e.Message)
}

type Client interface {
	ListDebtors(ctx context.Context) ([]Debt, error)
	GetDebt(ctx context.Context, id string) (Debt, error)
	PayDebt(ctx context.Context, id string, amount decimal.Decimal) (PaymentAnswer, error)
	PostOrder(ctx context.Context, order Order) (Order, error)
}

type client struct {
	rest *resty.Client
}

func NewClient(serverAddr, token string) Client {
	rest := resty.New().
		SetBaseURL(serverAddr).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second)
	return &client{rest: rest}
}

func (c *client) ListDebtors(ctx context.Context) ([]Debt, error) {
	var debts []Debt
	err := c.do(ctx, http.MethodGet, "/api/fiados", nil, &debts)
	return debts, err
}

func (c *client) GetDebt(ctx context.Context, id string) (Debt, error) {
	var debt Debt
	err := c.do(ctx, http.MethodGet, "/api/fiados/"+id, nil, &debt)
	return debt, err
}

func (c *client) PayDebt(ctx context.Context, id string, amount decimal.Decimal) (PaymentAnswer, error) {
	var answer PaymentAnswer
	body := map[string]decimal.Decimal{"montoPagado": amount}
	err := c.do(ctx, http.MethodPost, "/api/fiados/"+id+"/pagar", body, &answer)
	return answer, err
}

func (c *client) PostOrder(ctx context.Context, order Order) (Order, error) {
	var created Order
	err := c.do(ctx, http.MethodPost, "/api/pedidos", order, &created)
	return created, err
}

func (c *client) do(ctx context.Context, method, path string, body, result any) error {
	setreq := c.rest.R().SetContext(ctx)
	if body != nil {
		setreq.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	setresp, err := setreq.Execute(method, path)
	if err != nil {
		return err
	}

	switch setresp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return json.Unmarshal(setresp.Body(), result)
	default:
		var answer struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(setresp.Body(), &answer) != nil || answer.Message == "" {
			answer.Message = string(setresp.Body())
		}
		return &StatusError{Code: setresp.StatusCode(), Message: answer.Message}
	}
}
