package causal

import "github.com/OFFIS-RIT/causeway/internal/util"

// Weights blends the three link signals. They need not sum to 1; the
// final strength is clamped to [0,1].
type Weights struct {
	Cue       float64
	Coherence float64
	Proximity float64
}

// Config tunes the causal link scorer. The exact weights and thresholds
// are deliberately configuration, to be tuned empirically per corpus.
type Config struct {
	Weights Weights

	// MaxPairDistance bounds the utterance distance between cause and
	// effect considered for in-call links.
	MaxPairDistance int
	// ProximityTau is the decay constant for the temporal-proximity
	// signal: exp(-distance/tau).
	ProximityTau float64

	// MinStrength discards in-call links below it. A deliberate
	// precision/recall trade-off: recall loss is preferred over an
	// unbounded noisy graph.
	MinStrength float64
	// CrossCallMinStrength gates cross-call links; it is never below
	// MinStrength.
	CrossCallMinStrength float64
}

// DefaultConfig returns the defaults used when env overrides are absent.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Cue:       0.5,
			Coherence: 0.3,
			Proximity: 0.2,
		},
		MaxPairDistance:      12,
		ProximityTau:         6,
		MinStrength:          0.35,
		CrossCallMinStrength: 0.5,
	}
}

// ConfigFromEnv reads overrides from the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Weights.Cue = util.GetEnvNumeric("CAUSAL_WEIGHT_CUE", cfg.Weights.Cue)
	cfg.Weights.Coherence = util.GetEnvNumeric("CAUSAL_WEIGHT_COHERENCE", cfg.Weights.Coherence)
	cfg.Weights.Proximity = util.GetEnvNumeric("CAUSAL_WEIGHT_PROXIMITY", cfg.Weights.Proximity)
	cfg.MaxPairDistance = util.GetEnvInt("CAUSAL_MAX_PAIR_DISTANCE", cfg.MaxPairDistance)
	cfg.ProximityTau = util.GetEnvNumeric("CAUSAL_PROXIMITY_TAU", cfg.ProximityTau)
	cfg.MinStrength = util.GetEnvNumeric("CAUSAL_MIN_STRENGTH", cfg.MinStrength)
	cfg.CrossCallMinStrength = util.GetEnvNumeric("CAUSAL_CROSS_CALL_MIN_STRENGTH", cfg.CrossCallMinStrength)
	if cfg.CrossCallMinStrength < cfg.MinStrength {
		cfg.CrossCallMinStrength = cfg.MinStrength
	}
	return cfg
}
