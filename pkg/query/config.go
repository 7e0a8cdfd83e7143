package query

import "github.com/OFFIS-RIT/causeway/internal/util"

// Config tunes the query resolver.
type Config struct {
	// RetrieveK is how many evidence hits RETRIEVE asks the index for.
	RetrieveK int
	// MaxHops bounds the EXPAND walk from each seed event.
	MaxHops int
	// MaxEvents bounds the selected subgraph size.
	MaxEvents int
	// MinConfidence is the combined-confidence floor below which the
	// resolution is flagged low-confidence instead of being suppressed.
	MinConfidence float64
}

// DefaultConfig returns the defaults used when env overrides are absent.
func DefaultConfig() Config {
	return Config{
		RetrieveK:     12,
		MaxHops:       2,
		MaxEvents:     12,
		MinConfidence: 0.35,
	}
}

// ConfigFromEnv reads overrides from the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.RetrieveK = util.GetEnvInt("QUERY_RETRIEVE_K", cfg.RetrieveK)
	cfg.MaxHops = util.GetEnvInt("QUERY_MAX_HOPS", cfg.MaxHops)
	cfg.MaxEvents = util.GetEnvInt("QUERY_MAX_EVENTS", cfg.MaxEvents)
	cfg.MinConfidence = util.GetEnvNumeric("QUERY_MIN_CONFIDENCE", cfg.MinConfidence)
	return cfg
}
