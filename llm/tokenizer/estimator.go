package tokenizer

import "unicode/utf8"

// estimator is a character-count-based token estimator, distinguishing
// CJK from ASCII text for better accuracy than a flat chars-per-token
// ratio. Used for the Gemini backend, whose tokenizer isn't published.
type estimator struct{}

// NewEstimator returns the generic character-based counter.
func NewEstimator() Tokenizer { return estimator{} }

func (estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}
	// CJK characters run ~1.5 chars/token, ASCII ~4 chars/token.
	cjkTokens := float64(cjkCount) / 1.5
	asciiTokens := float64(totalChars-cjkCount) / 4.0
	estimated := int(cjkTokens + asciiTokens)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (estimator) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
