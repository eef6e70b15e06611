// Package tokenizer counts tokens for the models llmap's backends serve.
// A Tokenizer is constructed once per Pipeline and passed explicitly to
// whatever needs it (the collation phase, truncation); nothing here is a
// package-level singleton, so tests can swap in a fake without mutating
// shared state that other tests or goroutines depend on.
package tokenizer

// Tokenizer counts and estimates tokens for a specific model family.
type Tokenizer interface {
	// CountTokens returns the number of tokens text would encode to.
	CountTokens(text string) (int, error)

	// Name identifies the counting strategy, for logging.
	Name() string
}

// New picks a tiktoken-backed counter for models that have a known
// encoding, falling back to the CJK-aware character estimator for
// everything else (notably the Gemini model family, whose tokenizer is
// not published).
func New(model string) Tokenizer {
	if t, ok := newTiktoken(model); ok {
		return t
	}
	return NewEstimator()
}
