package config

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	// Driver is one of memory, postgres, sqlite. Empty means postgres when
	// DBDsn is set and memory otherwise.
	Driver string `toml:"driver"`
	DBDsn  string `toml:"dsn"`
}
