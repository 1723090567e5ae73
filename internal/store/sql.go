package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iurnickita/gascontrol/internal/model"
)

// dialect holds what differs between the SQL backends. Queries are written
// with $N placeholders and rebound per driver.
type dialect struct {
	name       string
	driver     string
	dsn        func(dsn string) string
	maxConns   int
	migrations []string
	rebind     func(query string) string
	timeArg    func(t time.Time) any
	// conflict reports errors that mean another writer got there first.
	conflict func(err error) bool
	unique   func(err error) bool
}

type sqlStore struct {
	database *sql.DB
	dialect  dialect
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func newSQLStore(d dialect, dsn string) (*sqlStore, error) {
	if d.dsn != nil {
		dsn = d.dsn(dsn)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.maxConns > 0 {
		db.SetMaxOpenConns(d.maxConns)
	}

	for _, stmt := range d.migrations {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s migration: %w", d.name, err)
		}
	}

	return &sqlStore{
		database: db,
		dialect:  d,
	}, nil
}

func (store *sqlStore) Close() error {
	return store.database.Close()
}

func (store *sqlStore) q(query string) string {
	if store.dialect.rebind == nil {
		return query
	}
	return store.dialect.rebind(query)
}

// Долги

const debtColumns = "id, gasero_id, cliente_nombre, deuda_total, ultima_actualizacion, version"

func (store *sqlStore) DebtGet(ctx context.Context, key model.DebtKey) (model.Debt, error) {
	debt, _, err := store.debtSelect(ctx, store.database,
		"SELECT "+debtColumns+" FROM deudas"+
			" WHERE gasero_id = $1"+
			"   AND cliente_nombre = $2",
		key.Operator, key.Customer)
	return debt, err
}

func (store *sqlStore) DebtGetByID(ctx context.Context, id string) (model.Debt, error) {
	debt, _, err := store.debtSelect(ctx, store.database,
		"SELECT "+debtColumns+" FROM deudas"+
			" WHERE id = $1",
		id)
	return debt, err
}

func (store *sqlStore) DebtList(ctx context.Context, operator string) ([]model.Debt, error) {
	rows, err := store.database.QueryContext(ctx, store.q(
		"SELECT "+debtColumns+" FROM deudas"+
			" WHERE gasero_id = $1"+
			" ORDER BY ultima_actualizacion DESC"),
		operator)
	if err != nil {
		return nil, err
	}
	debts := []model.Debt{}
	for rows.Next() {
		debt, _, err := scanDebt(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		debts = append(debts, debt)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// rows must be released before the history queries: SQLite runs on one connection
	rows.Close()

	for i := range debts {
		debts[i].Data.History, err = store.historySelect(ctx, store.database, debts[i].Data.ID)
		if err != nil {
			return nil, err
		}
	}
	return debts, nil
}

// DebtApply runs one optimistic attempt: the debt row is read together with
// its version, and the write is conditioned on that version being unchanged.
func (store *sqlStore) DebtApply(ctx context.Context, key model.DebtKey, decide Decider) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current *model.Debt
	debt, version, err := store.debtSelect(ctx, tx,
		"SELECT "+debtColumns+" FROM deudas"+
			" WHERE gasero_id = $1"+
			"   AND cliente_nombre = $2",
		key.Operator, key.Customer)
	switch {
	case err == nil:
		current = &debt
	case errors.Is(err, ErrNoRows):
	default:
		return store.wrapConflict(err)
	}

	decision, err := decide(current)
	if err != nil {
		return err
	}

	switch decision.Action {
	case ActionNone:
		return nil
	case ActionUpsert:
		next := decision.Debt
		next.Key = key
		if current == nil {
			err = store.debtInsert(ctx, tx, next)
		} else {
			err = store.debtUpdate(ctx, tx, *current, version, next)
		}
	case ActionDelete:
		if current == nil {
			return nil
		}
		err = store.debtDelete(ctx, tx, current.Data.ID, version)
	}
	if err != nil {
		return store.wrapConflict(err)
	}

	return store.wrapConflict(tx.Commit())
}

func (store *sqlStore) wrapConflict(err error) error {
	if err != nil && store.dialect.conflict(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (store *sqlStore) debtInsert(ctx context.Context, tx *sql.Tx, debt model.Debt) error {
	_, err := tx.ExecContext(ctx, store.q(
		"INSERT INTO deudas ("+debtColumns+")"+
			" VALUES ($1, $2, $3, $4, $5, 1)"),
		debt.Data.ID,
		debt.Key.Operator,
		debt.Key.Customer,
		debt.Data.TotalOwed,
		store.dialect.timeArg(debt.Data.LastUpdatedAt))
	if err != nil {
		return err
	}
	return store.historyInsert(ctx, tx, debt.Data.ID, 0, debt.Data.History)
}

func (store *sqlStore) debtUpdate(ctx context.Context, tx *sql.Tx, current model.Debt, version int64, next model.Debt) error {
	result, err := tx.ExecContext(ctx, store.q(
		"UPDATE deudas"+
			" SET deuda_total = $1,"+
			"     ultima_actualizacion = $2,"+
			"     version = version + 1"+
			" WHERE id = $3"+
			"   AND version = $4"),
		next.Data.TotalOwed,
		store.dialect.timeArg(next.Data.LastUpdatedAt),
		current.Data.ID,
		version)
	if err != nil {
		return err
	}
	if err = expectOneRow(result); err != nil {
		return err
	}

	// История только дополняется
	known := len(current.Data.History)
	if len(next.Data.History) < known {
		return fmt.Errorf("debt %s: history shrank from %d to %d entries", current.Data.ID, known, len(next.Data.History))
	}
	return store.historyInsert(ctx, tx, current.Data.ID, known, next.Data.History[known:])
}

func (store *sqlStore) debtDelete(ctx context.Context, tx *sql.Tx, id string, version int64) error {
	_, err := tx.ExecContext(ctx, store.q(
		"DELETE FROM historial_pedidos WHERE deuda_id = $1"),
		id)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, store.q(
		"DELETE FROM deudas"+
			" WHERE id = $1"+
			"   AND version = $2"),
		id,
		version)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrConflict
	}
	return nil
}

func (store *sqlStore) debtSelect(ctx context.Context, db queryer, query string, args ...any) (model.Debt, int64, error) {
	row := db.QueryRowContext(ctx, store.q(query), args...)
	debt, version, err := scanDebt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Debt{}, 0, ErrNoRows
		}
		return model.Debt{}, 0, err
	}
	debt.Data.History, err = store.historySelect(ctx, db, debt.Data.ID)
	if err != nil {
		return model.Debt{}, 0, err
	}
	return debt, version, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDebt(row scanner) (model.Debt, int64, error) {
	var debt model.Debt
	var version int64
	err := row.Scan(&debt.Data.ID,
		&debt.Key.Operator,
		&debt.Key.Customer,
		&debt.Data.TotalOwed,
		timeScanner{&debt.Data.LastUpdatedAt},
		&version)
	return debt, version, err
}

// История

func (store *sqlStore) historySelect(ctx context.Context, db queryer, debtID string) ([]model.DebtEntry, error) {
	rows, err := db.QueryContext(ctx, store.q(
		"SELECT pedido_id, monto, fecha, tipo"+
			" FROM historial_pedidos"+
			" WHERE deuda_id = $1"+
			" ORDER BY seq"),
		debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []model.DebtEntry{}
	for rows.Next() {
		var entry model.DebtEntry
		err := rows.Scan(&entry.SourceID,
			&entry.Amount,
			timeScanner{&entry.OccurredAt},
			&entry.Kind)
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

func (store *sqlStore) historyInsert(ctx context.Context, tx *sql.Tx, debtID string, from int, entries []model.DebtEntry) error {
	for i, entry := range entries {
		_, err := tx.ExecContext(ctx, store.q(
			"INSERT INTO historial_pedidos (deuda_id, seq, pedido_id, monto, fecha, tipo)"+
				" VALUES ($1, $2, $3, $4, $5, $6)"),
			debtID,
			from+i,
			entry.SourceID,
			entry.Amount,
			store.dialect.timeArg(entry.OccurredAt),
			entry.Kind)
		if err != nil {
			return err
		}
	}
	return nil
}

// Заказы

const orderColumns = "numero, gasero_id, cliente, direccion, tamano_tanque, numero_de_tanques," +
	" tipo_pago, precio_total, estado, lat, lng, fecha_creacion"

func (store *sqlStore) OrderPost(ctx context.Context, order model.Order) error {
	var lat, lng sql.NullFloat64
	if order.Data.Geolocation != nil {
		lat = sql.NullFloat64{Float64: order.Data.Geolocation.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: order.Data.Geolocation.Lng, Valid: true}
	}
	_, err := store.database.ExecContext(ctx, store.q(
		"INSERT INTO pedidos ("+orderColumns+")"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)"),
		order.Number,
		order.Data.Operator,
		order.Data.Customer,
		order.Data.Address,
		order.Data.TankSize,
		order.Data.TankCount,
		order.Data.PaymentType,
		order.Data.TotalPrice,
		order.Data.Status,
		lat,
		lng,
		store.dialect.timeArg(order.Data.CreatedAt))
	if err != nil {
		if store.dialect.unique(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (store *sqlStore) OrderPut(ctx context.Context, order model.Order) error {
	result, err := store.database.ExecContext(ctx, store.q(
		"UPDATE pedidos"+
			" SET estado = $1"+
			" WHERE numero = $2"+
			"   AND gasero_id = $3"),
		order.Data.Status,
		order.Number,
		order.Data.Operator)
	if err != nil {
		return err
	}
	if expectOneRow(result) != nil {
		return ErrNoRows
	}
	return nil
}

func (store *sqlStore) OrderGet(ctx context.Context, operator string) ([]model.Order, error) {
	return store.orderSelect(ctx,
		"SELECT "+orderColumns+" FROM pedidos"+
			" WHERE gasero_id = $1"+
			" ORDER BY fecha_creacion DESC",
		operator)
}

func (store *sqlStore) OrderGetByNumber(ctx context.Context, number string) (model.Order, error) {
	orders, err := store.orderSelect(ctx,
		"SELECT "+orderColumns+" FROM pedidos"+
			" WHERE numero = $1",
		number)
	if err != nil {
		return model.Order{}, err
	}
	if len(orders) == 0 {
		return model.Order{}, ErrNoRows
	}
	return orders[0], nil
}

func (store *sqlStore) OrderGetRange(ctx context.Context, operator string, from, to time.Time) ([]model.Order, error) {
	return store.orderSelect(ctx,
		"SELECT "+orderColumns+" FROM pedidos"+
			" WHERE gasero_id = $1"+
			"   AND fecha_creacion >= $2"+
			"   AND fecha_creacion <= $3"+
			" ORDER BY fecha_creacion DESC",
		operator,
		store.dialect.timeArg(from),
		store.dialect.timeArg(to))
}

func (store *sqlStore) orderSelect(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := store.database.QueryContext(ctx, store.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		var order model.Order
		var lat, lng sql.NullFloat64
		err := rows.Scan(&order.Number,
			&order.Data.Operator,
			&order.Data.Customer,
			&order.Data.Address,
			&order.Data.TankSize,
			&order.Data.TankCount,
			&order.Data.PaymentType,
			&order.Data.TotalPrice,
			&order.Data.Status,
			&lat,
			&lng,
			timeScanner{&order.Data.CreatedAt})
		if err != nil {
			return nil, err
		}
		if lat.Valid && lng.Valid {
			order.Data.Geolocation = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// timeScanner accepts native timestamps (PostgreSQL) and text (SQLite).
type timeScanner struct {
	t *time.Time
}

func (ts timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case nil:
		*ts.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (ts timeScanner) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", s)
}
