package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Заказы (pedidos)

type Order struct {
	Number string
	Data   OrderData
}
type OrderData struct {
	Operator    string
	Customer    string
	Address     string
	TankSize    string
	TankCount   int
	PaymentType string
	TotalPrice  decimal.Decimal
	Status      string
	Geolocation *GeoPoint
	CreatedAt   time.Time
}

type GeoPoint struct {
	Lat float64
	Lng float64
}

const (
	PaymentTypeCash   = "Contado"
	PaymentTypeCredit = "Fiado"
)

const (
	OrderStatusPending   = "Pendiente"
	OrderStatusOnTheWay  = "En camino"
	OrderStatusDelivered = "Entregado"
	OrderStatusCanceled  = "Cancelado"
)

func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusOnTheWay, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// Fiados: deuda por cliente e historial

type Debt struct {
	Key  DebtKey
	Data DebtData
}

// DebtKey identifies a debt aggregate. Customer names match exactly.
type DebtKey struct {
	Operator string
	Customer string
}

type DebtData struct {
	ID            string
	TotalOwed     decimal.Decimal
	LastUpdatedAt time.Time
	History       []DebtEntry
}

type DebtEntry struct {
	Kind       string
	Amount     decimal.Decimal
	SourceID   string
	OccurredAt time.Time
}

const (
	DebtEntryCredit  = "Deuda"
	DebtEntryPayment = "Abono"
)

// HistorySum replays the history. It must equal TotalOwed.
func (debt Debt) HistorySum() decimal.Decimal {
	sum := decimal.Zero
	for _, entry := range debt.Data.History {
		sum = sum.Add(entry.Amount)
	}
	return sum
}

func (debt Debt) Consistent() bool {
	return debt.Data.TotalOwed.Equal(debt.HistorySum())
}

// HasSource reports whether an entry with the given source id was already recorded.
func (debt Debt) HasSource(sourceID string) bool {
	for _, entry := range debt.Data.History {
		if entry.SourceID == sourceID {
			return true
		}
	}
	return false
}

// Clone returns a copy whose history can be appended to without aliasing.
func (debt Debt) Clone() Debt {
	history := make([]DebtEntry, len(debt.Data.History))
	copy(history, debt.Data.History)
	debt.Data.History = history
	return debt
}

// SortHistoryDesc returns the entries newest first.
func SortHistoryDesc(history []DebtEntry) []DebtEntry {
	sorted := make([]DebtEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.After(sorted[j].OccurredAt)
	})
	return sorted
}
