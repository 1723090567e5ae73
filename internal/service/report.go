package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/gascontrol/internal/model"
)

type Report struct {
	From    time.Time
	To      time.Time
	Orders  []model.Order
	Summary ReportSummary
}

// ReportSummary aggregates delivered orders; NewCredit counts every credit
// order in the period regardless of its status.
type ReportSummary struct {
	Revenue         decimal.Decimal
	DeliveredOrders int
	TanksSold       int
	NewCredit       decimal.Decimal
	TanksBySize     []SizeCount
}

type SizeCount struct {
	Size  string
	Tanks int
}

func (service *service) GetReport(ctx context.Context, operator string, from, to time.Time) (Report, error) {
	if operator == "" || from.IsZero() || to.IsZero() {
		return Report{}, ErrInsufficientData
	}
	if to.Before(from) {
		return Report{}, ErrInvalidPeriod
	}

	orders, err := service.store.OrderGetRange(ctx, operator, from, to)
	if err != nil {
		return Report{}, err
	}

	return Report{
		From:    from,
		To:      to,
		Orders:  orders,
		Summary: Summarize(orders),
	}, nil
}

func Summarize(orders []model.Order) ReportSummary {
	summary := ReportSummary{
		Revenue:   decimal.Zero,
		NewCredit: decimal.Zero,
	}
	bySize := map[string]int{}
	for _, order := range orders {
		if order.Data.PaymentType == model.PaymentTypeCredit {
			summary.NewCredit = summary.NewCredit.Add(order.Data.TotalPrice)
		}
		if order.Data.Status != model.OrderStatusDelivered {
			continue
		}
		summary.Revenue = summary.Revenue.Add(order.Data.TotalPrice)
		summary.DeliveredOrders++
		summary.TanksSold += order.Data.TankCount
		bySize[order.Data.TankSize] += order.Data.TankCount
	}

	for size, tanks := range bySize {
		summary.TanksBySize = append(summary.TanksBySize, SizeCount{Size: size, Tanks: tanks})
	}
	sort.Slice(summary.TanksBySize, func(i, j int) bool {
		return summary.TanksBySize[i].Size < summary.TanksBySize[j].Size
	})
	return summary
}
