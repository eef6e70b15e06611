package pipeline

import (
	"sort"
	"strings"

	"github.com/jbellis/llmap/llm/tokenizer"
	"github.com/jbellis/llmap/source"
)

// Collate groups sources into batches that each fit under
// maxTokensPerGroup, greedily packing items in input order, and
// separates out any single source that alone exceeds the ceiling.
//
// This is deliberately a first-fit-in-order packing, not an optimal bin
// pack: token counts from the tokenizer are themselves an estimate (a
// character-based estimator for Gemini, a GPT-4 encoding standing in
// for DeepSeek's own tokenizer), so spending effort on an optimal
// packing would buy precision the inputs don't support.
func Collate(sources []source.Text, maxTokensPerGroup int, tok tokenizer.Tokenizer) (groups [][]source.Text, oversized []source.Text, err error) {
	type sized struct {
		text   source.Text
		tokens int
	}
	var small []sized

	for _, s := range sources {
		n, countErr := tok.CountTokens(s.Text)
		if countErr != nil {
			return nil, nil, countErr
		}
		if n > maxTokensPerGroup {
			oversized = append(oversized, s)
			continue
		}
		small = append(small, sized{text: s, tokens: n})
	}

	var current []source.Text
	currentTokens := 0
	for _, item := range small {
		if currentTokens+item.tokens > maxTokensPerGroup && len(current) > 0 {
			groups = append(groups, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, item.text)
		currentTokens += item.tokens
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups, oversized, nil
}

// CombineChunkAnalyses merges the per-chunk analyses for one file into
// a single text, sorted lexically before joining so that repeated runs
// over the same chunk set produce byte-identical combined text — and
// therefore the same downstream cache key — regardless of the order
// concurrent workers happened to finish in.
func CombineChunkAnalyses(analyses []string) string {
	sorted := append([]string(nil), analyses...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\n\n")
}

// MaybeTruncate repeatedly halves text by dropping its second half of
// lines until it fits under maxTokens, preserving whatever structure
// survives at the front. It never looks at where a declaration or
// sentence ends — a blunt but deterministic policy that favors keeping
// the beginning of a file intact over a smarter cut.
func MaybeTruncate(text string, maxTokens int, tok tokenizer.Tokenizer) (string, error) {
	n, err := tok.CountTokens(text)
	if err != nil {
		return "", err
	}
	for n > maxTokens {
		lines := strings.Split(text, "\n")
		if len(lines) <= 1 {
			break
		}
		text = strings.Join(lines[:len(lines)/2], "\n")
		n, err = tok.CountTokens(text)
		if err != nil {
			return "", err
		}
	}
	return text, nil
}
