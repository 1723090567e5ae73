package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/theplant/luhn"
	"go.uber.org/zap"

	"github.com/iurnickita/gascontrol/internal/ledger"
	"github.com/iurnickita/gascontrol/internal/metrics"
	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/service/config"
	"github.com/iurnickita/gascontrol/internal/store"
)

type Service interface {
	PostOrder(ctx context.Context, order model.Order) (model.Order, error)
	GetOrder(ctx context.Context, operator string) ([]model.Order, error)
	PutOrderStatus(ctx context.Context, operator, number, status string) error
	GetDebtors(ctx context.Context, operator string) ([]model.Debt, error)
	GetDebt(ctx context.Context, operator, id string) (model.Debt, error)
	PostPayment(ctx context.Context, operator, debtID string, amount decimal.Decimal) (ledger.PaymentResult, error)
	GetReport(ctx context.Context, operator string, from, to time.Time) (Report, error)
}

var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrInvalidPeriod       = errors.New("invalid period: end before start")
	ErrUnprocessableEntity = errors.New("unprocessable entity")
	ErrOrderNotFound       = errors.New("order not found")
	ErrForbidden           = errors.New("order belongs to another operator")
)

const orderNumberAttempts = 3

type service struct {
	cfg    config.Config
	store  store.Store
	ledger ledger.Ledger
	zaplog *zap.Logger
	now    func() time.Time
}

func NewService(cfg config.Config, store store.Store, zaplog *zap.Logger) (Service, error) {
	if len(cfg.Prices) == 0 {
		cfg.Prices = config.DefaultPrices()
	}
	for size, price := range cfg.Prices {
		if price <= 0 {
			return nil, fmt.Errorf("price for %s must be positive, got %d", size, price)
		}
	}
	if zaplog == nil {
		zaplog = zap.NewNop()
	}

	service := service{
		cfg:    cfg,
		store:  store,
		ledger: ledger.NewLedger(store, cfg.LedgerMaxAttempts, zaplog),
		zaplog: zaplog,
		now:    func() time.Time { return time.Now().UTC() },
	}

	return &service, nil
}

// Заказы

func (service *service) PostOrder(ctx context.Context, order model.Order) (model.Order, error) {
	var newOrder model.Order
	newOrder.Data.Operator = order.Data.Operator
	newOrder.Data.Customer = strings.TrimSpace(order.Data.Customer)
	newOrder.Data.Address = strings.TrimSpace(order.Data.Address)
	newOrder.Data.TankSize = order.Data.TankSize
	newOrder.Data.TankCount = order.Data.TankCount
	newOrder.Data.PaymentType = order.Data.PaymentType
	newOrder.Data.Geolocation = order.Data.Geolocation

	if newOrder.Data.Operator == "" || newOrder.Data.Customer == "" || newOrder.Data.Address == "" {
		return model.Order{}, ErrInsufficientData
	}
	price, ok := service.cfg.Prices[newOrder.Data.TankSize]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: unknown tank size %q", ErrInvalidOrder, newOrder.Data.TankSize)
	}
	if newOrder.Data.TankCount < 1 {
		return model.Order{}, fmt.Errorf("%w: at least one tank", ErrInvalidOrder)
	}
	switch newOrder.Data.PaymentType {
	case model.PaymentTypeCash, model.PaymentTypeCredit:
	default:
		return model.Order{}, fmt.Errorf("%w: unknown payment type %q", ErrInvalidOrder, newOrder.Data.PaymentType)
	}

	newOrder.Data.TotalPrice = decimal.NewFromInt(price).Mul(decimal.NewFromInt(int64(newOrder.Data.TankCount)))
	newOrder.Data.Status = model.OrderStatusPending
	newOrder.Data.CreatedAt = service.now()

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		newOrder.Number = NewOrderNumber()
		err = service.store.OrderPost(ctx, newOrder)
		if !errors.Is(err, store.ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return model.Order{}, err
	}
	metrics.OrdersCreated.WithLabelValues(newOrder.Data.PaymentType).Inc()

	if newOrder.Data.PaymentType == model.PaymentTypeCredit {
		_, err = service.ledger.PostCreditOrder(ctx,
			newOrder.Data.Operator,
			newOrder.Data.Customer,
			newOrder.Number,
			newOrder.Data.TotalPrice,
			newOrder.Data.CreatedAt)
		if err != nil {
			service.zaplog.Error("order created but credit not posted",
				zap.String("order", newOrder.Number),
				zap.String("operator", newOrder.Data.Operator),
				zap.Error(err))
			return newOrder, fmt.Errorf("order %s: credit not posted: %w", newOrder.Number, err)
		}
	}

	return newOrder, nil
}

func (service *service) GetOrder(ctx context.Context, operator string) ([]model.Order, error) {
	if operator == "" {
		return nil, ErrInsufficientData
	}

	return service.store.OrderGet(ctx, operator)
}

func (service *service) PutOrderStatus(ctx context.Context, operator, number, status string) error {
	if operator == "" || number == "" || status == "" {
		return ErrInsufficientData
	}
	// Проверка по алгоритму Луна
	if !ValidOrderNumber(number) {
		return ErrUnprocessableEntity
	}
	if !model.ValidOrderStatus(status) {
		return ErrInvalidStatus
	}

	order, err := service.store.OrderGetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrOrderNotFound
		}
		return err
	}
	if order.Data.Operator != operator {
		return ErrForbidden
	}

	order.Data.Status = status
	err = service.store.OrderPut(ctx, order)
	if errors.Is(err, store.ErrNoRows) {
		return ErrOrderNotFound
	}
	return err
}

// Fiados

func (service *service) GetDebtors(ctx context.Context, operator string) ([]model.Debt, error) {
	return service.ledger.ListDebtors(ctx, operator)
}

func (service *service) GetDebt(ctx context.Context, operator, id string) (model.Debt, error) {
	return service.ledger.GetDebt(ctx, operator, id)
}

// PostPayment applies a payment to the debt with the given id. The debt must
// belong to operator.
func (service *service) PostPayment(ctx context.Context, operator, debtID string, amount decimal.Decimal) (ledger.PaymentResult, error) {
	if !amount.IsPositive() {
		return ledger.PaymentResult{}, ledger.ErrInvalidAmount
	}
	return service.ledger.ApplyPaymentToDebt(ctx, operator, debtID, amount, service.now())
}

// NewOrderNumber returns a random numeric order number ending in a Luhn check digit.
func NewOrderNumber() string {
	id := uuid.New()
	base := int(binary.BigEndian.Uint64(id[:8])%99999999999) + 1
	return strconv.Itoa(base*10 + luhn.CalculateLuhn(base))
}

func ValidOrderNumber(number string) bool {
	n, err := strconv.Atoi(number)
	if err != nil || n <= 0 {
		return false
	}
	return luhn.Valid(n)
}
