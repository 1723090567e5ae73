package config

type Config struct {
	LogLevel string `toml:"level"`
}
