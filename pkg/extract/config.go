package extract

import (
	"golang.org/x/time/rate"

	"github.com/OFFIS-RIT/causeway/internal/util"
)

// Config tunes the event extractor. All knobs are env-overridable via
// ConfigFromEnv; nothing here is a hard-coded policy.
type Config struct {
	// WindowSize is the number of utterances per extraction window.
	WindowSize int
	// Overlap is the number of utterances shared by adjacent windows.
	Overlap int
	// MaxWindowTokens caps a window's token count; oversized windows are
	// split regardless of WindowSize.
	MaxWindowTokens int
	// TokenEncoder names the tiktoken encoding used for the cap.
	TokenEncoder string

	// ConfidenceFloor flags (never drops) events below it.
	ConfidenceFloor float64
	// DedupeSimilarity is the description-similarity threshold above
	// which overlapping events are merged.
	DedupeSimilarity float64

	// MaxRetries bounds per-window capability retries.
	MaxRetries int
	// ParallelWindows bounds concurrent windows per call.
	ParallelWindows int
	// CapabilityRPS globally rate-limits capability calls.
	CapabilityRPS float64
}

// DefaultConfig returns the defaults used when env overrides are absent.
func DefaultConfig() Config {
	return Config{
		WindowSize:       8,
		Overlap:          2,
		MaxWindowTokens:  1200,
		TokenEncoder:     "o200k_base",
		ConfidenceFloor:  0.3,
		DedupeSimilarity: 0.7,
		MaxRetries:       3,
		ParallelWindows:  4,
		CapabilityRPS:    8,
	}
}

// ConfigFromEnv reads overrides from the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.WindowSize = util.GetEnvInt("EXTRACT_WINDOW_SIZE", cfg.WindowSize)
	cfg.Overlap = util.GetEnvInt("EXTRACT_WINDOW_OVERLAP", cfg.Overlap)
	cfg.MaxWindowTokens = util.GetEnvInt("EXTRACT_MAX_WINDOW_TOKENS", cfg.MaxWindowTokens)
	cfg.TokenEncoder = util.GetEnvString("EXTRACT_TOKEN_ENCODER", cfg.TokenEncoder)
	cfg.ConfidenceFloor = util.GetEnvNumeric("EXTRACT_CONFIDENCE_FLOOR", cfg.ConfidenceFloor)
	cfg.DedupeSimilarity = util.GetEnvNumeric("EXTRACT_DEDUPE_SIMILARITY", cfg.DedupeSimilarity)
	cfg.MaxRetries = util.GetEnvInt("EXTRACT_MAX_RETRIES", cfg.MaxRetries)
	cfg.ParallelWindows = util.GetEnvInt("EXTRACT_PARALLEL_WINDOWS", cfg.ParallelWindows)
	cfg.CapabilityRPS = util.GetEnvNumeric("EXTRACT_CAPABILITY_RPS", cfg.CapabilityRPS)
	return cfg
}

func (c Config) limiter() *rate.Limiter {
	rps := c.CapabilityRPS
	if rps <= 0 {
		rps = 8
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
