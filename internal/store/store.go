package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/store/config"
)

type Store interface {
	DebtGet(ctx context.Context, key model.DebtKey) (model.Debt, error)
	DebtGetByID(ctx context.Context, id string) (model.Debt, error)
	DebtList(ctx context.Context, operator string) ([]model.Debt, error)
	DebtApply(ctx context.Context, key model.DebtKey, decide Decider) error
	OrderPost(ctx context.Context, order model.Order) error
	OrderPut(ctx context.Context, order model.Order) error
	OrderGet(ctx context.Context, operator string) ([]model.Order, error)
	OrderGetByNumber(ctx context.Context, number string) (model.Order, error)
	OrderGetRange(ctx context.Context, operator string, from, to time.Time) ([]model.Order, error)
	Close() error
}

var (
	ErrNoRows        = errors.New("no rows")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict means the debt changed between read and write. Nothing was written.
	ErrConflict = errors.New("write conflict")
)

// Decider receives the current aggregate (nil when absent) and returns what
// to write. It may run several times for a single logical operation.
type Decider func(current *model.Debt) (Decision, error)

type Action int

const (
	ActionNone Action = iota
	ActionUpsert
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpsert:
		return "upsert"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

type Decision struct {
	Action Action
	Debt   model.Debt
}

func Upsert(debt model.Debt) Decision { return Decision{Action: ActionUpsert, Debt: debt} }
func Delete() Decision                { return Decision{Action: ActionDelete} }
func NoOp() Decision                  { return Decision{Action: ActionNone} }

func NewStore(cfg config.Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverMemory
		if cfg.DBDsn != "" {
			driver = config.DriverPostgres
		}
	}

	switch driver {
	case config.DriverMemory:
		return NewMemory(), nil
	case config.DriverPostgres:
		return newSQLStore(postgresDialect, cfg.DBDsn)
	case config.DriverSQLite:
		return newSQLStore(sqliteDialect, cfg.DBDsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
