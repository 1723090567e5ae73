package config

type Config struct {
	ServerAddr     string   `toml:"address"`
	AllowedOrigins []string `toml:"allowed_origins"`
}
