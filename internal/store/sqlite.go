package store

import (
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Fixed width so that text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	dsn: func(dsn string) string {
		if dsn == "" {
			dsn = "gascontrol.db"
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	},
	// single writer connection; transactions queue instead of failing with SQLITE_BUSY
	maxConns: 1,
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS pedidos (
			numero            TEXT PRIMARY KEY,
			gasero_id         TEXT NOT NULL,
			cliente           TEXT NOT NULL,
			direccion         TEXT NOT NULL,
			tamano_tanque     TEXT NOT NULL,
			numero_de_tanques INTEGER NOT NULL,
			tipo_pago         TEXT NOT NULL,
			precio_total      TEXT NOT NULL,
			estado            TEXT NOT NULL,
			lat               REAL,
			lng               REAL,
			fecha_creacion    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pedidos_gasero_fecha ON pedidos(gasero_id, fecha_creacion DESC)`,
		`CREATE TABLE IF NOT EXISTS deudas (
			id                   TEXT PRIMARY KEY,
			gasero_id            TEXT NOT NULL,
			cliente_nombre       TEXT NOT NULL,
			deuda_total          TEXT NOT NULL,
			ultima_actualizacion TEXT NOT NULL,
			version              INTEGER NOT NULL,
			UNIQUE(gasero_id, cliente_nombre)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deudas_gasero_actualizacion ON deudas(gasero_id, ultima_actualizacion DESC)`,
		`CREATE TABLE IF NOT EXISTS historial_pedidos (
			deuda_id  TEXT NOT NULL,
			seq       INTEGER NOT NULL,
			pedido_id TEXT NOT NULL,
			monto     TEXT NOT NULL,
			fecha     TEXT NOT NULL,
			tipo      TEXT NOT NULL,
			PRIMARY KEY (deuda_id, seq)
		)`,
	},
	rebind: func(query string) string {
		return strings.ReplaceAll(query, "$", "?")
	},
	timeArg: func(t time.Time) any {
		return t.UTC().Format(sqliteTimeLayout)
	},
	conflict: func(err error) bool {
		code, ok := sqliteCode(err)
		if !ok {
			return false
		}
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	},
	unique: func(err error) bool {
		code, ok := sqliteCode(err)
		return ok && (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
	},
}

func sqliteCode(err error) (int, bool) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code(), true
	}
	return 0, false
}
