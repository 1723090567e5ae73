package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	authConfig "github.com/iurnickita/gascontrol/internal/auth/config"
	handlerConfig "github.com/iurnickita/gascontrol/internal/handler/config"
	loggerConfig "github.com/iurnickita/gascontrol/internal/logger/config"
	serviceConfig "github.com/iurnickita/gascontrol/internal/service/config"
	storeConfig "github.com/iurnickita/gascontrol/internal/store/config"
)

type Config struct {
	Handler handlerConfig.Config `toml:"server"`
	Service serviceConfig.Config `toml:"service"`
	Store   storeConfig.Config   `toml:"store"`
	Logger  loggerConfig.Config  `toml:"log"`
	Auth    authConfig.Config    `toml:"auth"`
}

// Переменные окружения
const (
	EnvServerAddr        = "RUN_ADDRESS"
	EnvDatabaseURI       = "DATABASE_URI"
	EnvDatabaseDriver    = "DATABASE_DRIVER"
	EnvLogLevel          = "LOG_LEVEL"
	EnvAuthSecret        = "AUTH_SECRET"
	EnvAuthIssuer        = "AUTH_ISSUER"
	EnvLedgerMaxAttempts = "LEDGER_MAX_ATTEMPTS"
	EnvAllowedOrigins    = "ALLOWED_ORIGINS"
)

func DefaultConfig() Config {
	return Config{
		Handler: handlerConfig.Config{ServerAddr: "localhost:5000"},
		Service: serviceConfig.Config{Prices: serviceConfig.DefaultPrices()},
		Logger:  loggerConfig.Config{LogLevel: "info"},
	}
}

// GetConfig builds the configuration from defaults, the optional TOML file
// at path and the environment, in that order.
func GetConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// ApplyEnv overrides cfg with the variables lookup finds.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvServerAddr); ok {
		cfg.Handler.ServerAddr = v
	}
	if v, ok := lookup(EnvAllowedOrigins); ok {
		cfg.Handler.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup(EnvDatabaseURI); ok {
		cfg.Store.DBDsn = v
	}
	if v, ok := lookup(EnvDatabaseDriver); ok {
		cfg.Store.Driver = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Logger.LogLevel = v
	}
	if v, ok := lookup(EnvAuthSecret); ok {
		cfg.Auth.Secret = v
	}
	if v, ok := lookup(EnvAuthIssuer); ok {
		cfg.Auth.Issuer = v
	}
	if v, ok := lookup(EnvLedgerMaxAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s: want a positive integer, got %q", EnvLedgerMaxAttempts, v)
		}
		cfg.Service.LedgerMaxAttempts = n
	}
	return nil
}

func splitList(v string) []string {
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
