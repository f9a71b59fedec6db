package search

// Default search parameters.
const (
	DefaultTopK         = 5
	DefaultMaxTopK      = 50
	DefaultBM25Weight   = 0.4
	DefaultVectorWeight = 0.6
	DefaultMinScore     = 0.05

	// candidateMultiplier widens per-source retrieval so fusion sees
	// more candidates than the caller asked for.
	candidateMultiplier = 3

	// effectivenessBoost scales the optional per-document usage signal
	// into a small multiplicative score adjustment.
	effectivenessBoost = 0.02
)

// Weights splits the hybrid score between the two retrieval sources.
// By convention they sum to 1.0; the engine does not enforce it.
type Weights struct {
	BM25   float64
	Vector float64
}

// Config holds the engine-wide search defaults, overridable per query
// through Options.
type Config struct {
	DefaultTopK    int
	MaxTopK        int
	DefaultWeights Weights
	MinScore       float64
}

// DefaultConfig returns the stock search configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTopK: DefaultTopK,
		MaxTopK:     DefaultMaxTopK,
		DefaultWeights: Weights{
			BM25:   DefaultBM25Weight,
			Vector: DefaultVectorWeight,
		},
		MinScore: DefaultMinScore,
	}
}

// Options are per-query search parameters. TopK bounds the result
// count and is honored literally, including zero. Pointer fields
// distinguish "unset" from a meaningful zero: Weights{Vector: 0} is
// pure BM25, MinScore 0 disables filtering.
type Options struct {
	TopK             int
	Weights          *Weights
	MinScore         *float64
	Category         string
	UseEffectiveness bool
}

// DefaultOptions returns Options filled from the config defaults.
func DefaultOptions(cfg Config) Options {
	weights := cfg.DefaultWeights
	minScore := cfg.MinScore
	return Options{
		TopK:     cfg.DefaultTopK,
		Weights:  &weights,
		MinScore: &minScore,
	}
}
