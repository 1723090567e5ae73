package config

type Config struct {
	// Prices is the unit price per tank size.
	Prices map[string]int64 `toml:"prices"`
	// LedgerMaxAttempts bounds the retries of one debt transaction.
	LedgerMaxAttempts int `toml:"ledger_max_attempts"`
}

func DefaultPrices() map[string]int64 {
	return map[string]int64{
		"10kg": 200,
		"20kg": 400,
		"30kg": 600,
	}
}
