package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iurnickita/gascontrol/internal/model"
)

// Memory keeps everything in process. Debt writes are compare-and-swap on a
// version taken at read time, so DebtApply behaves like the SQL stores under
// contention: a stale decision is rejected with ErrConflict.
type Memory struct {
	mu      sync.RWMutex
	seq     int64
	debts   map[model.DebtKey]memoryDebt
	debtIDs map[string]model.DebtKey
	orders  map[string]model.Order
}

type memoryDebt struct {
	debt    model.Debt
	version int64
}

func NewMemory() *Memory {
	return &Memory{
		debts:   make(map[model.DebtKey]memoryDebt),
		debtIDs: make(map[string]model.DebtKey),
		orders:  make(map[string]model.Order),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) DebtGet(_ context.Context, key model.DebtKey) (model.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.debts[key]
	if !ok {
		return model.Debt{}, ErrNoRows
	}
	return entry.debt.Clone(), nil
}

func (m *Memory) DebtGetByID(_ context.Context, id string) (model.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.debtIDs[id]
	if !ok {
		return model.Debt{}, ErrNoRows
	}
	return m.debts[key].debt.Clone(), nil
}

func (m *Memory) DebtList(_ context.Context, operator string) ([]model.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	debts := []model.Debt{}
	for key, entry := range m.debts {
		if key.Operator == operator {
			debts = append(debts, entry.debt.Clone())
		}
	}
	sort.Slice(debts, func(i, j int) bool {
		return debts[i].Data.LastUpdatedAt.After(debts[j].Data.LastUpdatedAt)
	})
	return debts, nil
}

func (m *Memory) DebtApply(_ context.Context, key model.DebtKey, decide Decider) error {
	// Чтение
	m.mu.RLock()
	entry, found := m.debts[key]
	m.mu.RUnlock()

	var current *model.Debt
	if found {
		debt := entry.debt.Clone()
		current = &debt
	}

	decision, err := decide(current)
	if err != nil {
		return err
	}

	// Запись при неизменной версии
	m.mu.Lock()
	defer m.mu.Unlock()

	latest, exists := m.debts[key]
	if exists != found || (exists && latest.version != entry.version) {
		return ErrConflict
	}

	switch decision.Action {
	case ActionUpsert:
		debt := decision.Debt.Clone()
		debt.Key = key
		m.seq++
		m.debts[key] = memoryDebt{debt: debt, version: m.seq}
		m.debtIDs[debt.Data.ID] = key
	case ActionDelete:
		if found {
			delete(m.debts, key)
			delete(m.debtIDs, entry.debt.Data.ID)
		}
	}
	return nil
}

func (m *Memory) OrderPost(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.Number]; ok {
		return ErrAlreadyExists
	}
	m.orders[order.Number] = order
	return nil
}

func (m *Memory) OrderPut(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[order.Number]
	if !ok || stored.Data.Operator != order.Data.Operator {
		return ErrNoRows
	}
	stored.Data.Status = order.Data.Status
	m.orders[order.Number] = stored
	return nil
}

func (m *Memory) OrderGet(_ context.Context, operator string) ([]model.Order, error) {
	return m.orderFilter(func(order model.Order) bool {
		return order.Data.Operator == operator
	}), nil
}

func (m *Memory) OrderGetByNumber(_ context.Context, number string) (model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[number]
	if !ok {
		return model.Order{}, ErrNoRows
	}
	return order, nil
}

func (m *Memory) OrderGetRange(_ context.Context, operator string, from, to time.Time) ([]model.Order, error) {
	return m.orderFilter(func(order model.Order) bool {
		return order.Data.Operator == operator &&
			!order.Data.CreatedAt.Before(from) &&
			!order.Data.CreatedAt.After(to)
	}), nil
}

func (m *Memory) orderFilter(keep func(model.Order) bool) []model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := []model.Order{}
	for _, order := range m.orders {
		if keep(order) {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Data.CreatedAt.After(orders[j].Data.CreatedAt)
	})
	return orders
}
