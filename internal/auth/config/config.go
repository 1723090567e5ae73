package config

type Config struct {
	// Secret is the HMAC key shared with the identity provider.
	Secret string `toml:"secret"`
	// Issuer, when set, must match the iss claim.
	Issuer string `toml:"issuer"`
}
