package store

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLSTATE codes treated as a lost race.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	migrations: []string{
		// Таблица заказов.
		// Создается одна строка на заказ, после чего меняется только ее статус
		"CREATE TABLE IF NOT EXISTS pedidos (" +
			" numero VARCHAR (20) PRIMARY KEY," +
			" gasero_id VARCHAR (128) NOT NULL," +
			" cliente VARCHAR (200) NOT NULL," +
			" direccion VARCHAR (300) NOT NULL," +
			" tamano_tanque VARCHAR (8) NOT NULL," +
			" numero_de_tanques INTEGER NOT NULL," +
			" tipo_pago VARCHAR (10) NOT NULL," +
			" precio_total NUMERIC NOT NULL," +
			" estado VARCHAR (20) NOT NULL," +
			" lat DOUBLE PRECISION," +
			" lng DOUBLE PRECISION," +
			" fecha_creacion TIMESTAMPTZ NOT NULL" +
			" );",
		"CREATE INDEX IF NOT EXISTS idx_pedidos_gasero_fecha ON pedidos (gasero_id, fecha_creacion DESC);",

		// Таблица долгов. Одна строка на пару (gasero, cliente);
		// version растет с каждой записью и служит для оптимистичной блокировки
		"CREATE TABLE IF NOT EXISTS deudas (" +
			" id TEXT PRIMARY KEY," +
			" gasero_id VARCHAR (128) NOT NULL," +
			" cliente_nombre VARCHAR (200) NOT NULL," +
			" deuda_total NUMERIC NOT NULL," +
			" ultima_actualizacion TIMESTAMPTZ NOT NULL," +
			" version BIGINT NOT NULL," +
			" UNIQUE (gasero_id, cliente_nombre)" +
			" );",
		"CREATE INDEX IF NOT EXISTS idx_deudas_gasero_actualizacion ON deudas (gasero_id, ultima_actualizacion DESC);",

		// Журнал долга. Записи только добавляются
		"CREATE TABLE IF NOT EXISTS historial_pedidos (" +
			" deuda_id TEXT NOT NULL REFERENCES deudas (id) ON DELETE CASCADE," +
			" seq INTEGER NOT NULL," +
			" pedido_id TEXT NOT NULL," +
			" monto NUMERIC NOT NULL," +
			" fecha TIMESTAMPTZ NOT NULL," +
			" tipo VARCHAR (10) NOT NULL," +
			" PRIMARY KEY (deuda_id, seq)" +
			" );",
	},
	timeArg: func(t time.Time) any {
		return t.UTC()
	},
	conflict: func(err error) bool {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
				return true
			}
		}
		return false
	},
	unique: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	},
}
