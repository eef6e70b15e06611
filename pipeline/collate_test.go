package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jbellis/llmap/source"
)

// charCountTokenizer counts one token per character, making the
// invariants below exact instead of approximate.
type charCountTokenizer struct{}

func (charCountTokenizer) CountTokens(text string) (int, error) { return len(text), nil }
func (charCountTokenizer) Name() string                         { return "char-count" }

func TestCollate_GroupsUnderBudget(t *testing.T) {
	sources := []source.Text{
		{FilePath: "a", Text: strings.Repeat("x", 10)},
		{FilePath: "b", Text: strings.Repeat("x", 10)},
		{FilePath: "c", Text: strings.Repeat("x", 10)},
	}
	groups, oversized, err := Collate(sources, 15, charCountTokenizer{})
	require.NoError(t, err)
	assert.Empty(t, oversized)
	for _, g := range groups {
		total := 0
		for _, s := range g {
			total += len(s.Text)
		}
		assert.LessOrEqual(t, total, 15)
	}
}

func TestCollate_SeparatesOversizedSources(t *testing.T) {
	sources := []source.Text{
		{FilePath: "big", Text: strings.Repeat("x", 100)},
		{FilePath: "small", Text: "x"},
	}
	groups, oversized, err := Collate(sources, 50, charCountTokenizer{})
	require.NoError(t, err)
	require.Len(t, oversized, 1)
	assert.Equal(t, "big", oversized[0].FilePath)
	require.Len(t, groups, 1)
	assert.Equal(t, "small", groups[0][0].FilePath)
}

func TestCollate_SingleOversizedItemNeverBlocksSmallOnes(t *testing.T) {
	// A group that would fit alone must not be starved because an
	// earlier, too-large item got routed to oversized instead of
	// silently consuming budget.
	sources := []source.Text{
		{FilePath: "big", Text: strings.Repeat("x", 1000)},
		{FilePath: "s1", Text: strings.Repeat("x", 10)},
		{FilePath: "s2", Text: strings.Repeat("x", 10)},
	}
	groups, oversized, err := Collate(sources, 30, charCountTokenizer{})
	require.NoError(t, err)
	require.Len(t, oversized, 1)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

// Property: every group Collate returns sums to at most the requested
// ceiling, for any mix of source sizes.
func TestCollate_Property_GroupsNeverExceedBudget(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		budget := rapid.IntRange(1, 500).Draw(rt, "budget")
		n := rapid.IntRange(0, 30).Draw(rt, "n")

		var sources []source.Text
		for i := 0; i < n; i++ {
			size := rapid.IntRange(1, 50).Draw(rt, fmt.Sprintf("size-%d", i))
			sources = append(sources, source.Text{FilePath: fmt.Sprintf("f%d", i), Text: strings.Repeat("x", size)})
		}

		groups, oversized, err := Collate(sources, budget, charCountTokenizer{})
		require.NoError(rt, err)

		for _, g := range groups {
			total := 0
			for _, s := range g {
				total += len(s.Text)
			}
			if total > budget {
				rt.Fatalf("group total %d exceeds budget %d", total, budget)
			}
		}
		for _, o := range oversized {
			if len(o.Text) <= budget {
				rt.Fatalf("oversized item %q should have fit in budget %d", o.FilePath, budget)
			}
		}

		// Every input source appears exactly once across groups+oversized.
		seen := make(map[string]int)
		for _, g := range groups {
			for _, s := range g {
				seen[s.FilePath]++
			}
		}
		for _, o := range oversized {
			seen[o.FilePath]++
		}
		if len(seen) != len(sources) {
			rt.Fatalf("expected %d distinct sources accounted for, got %d", len(sources), len(seen))
		}
		for _, count := range seen {
			if count != 1 {
				rt.Fatalf("expected each source exactly once, got count %d", count)
			}
		}
	})
}

func TestCombineChunkAnalyses_SortsBeforeJoining(t *testing.T) {
	result := CombineChunkAnalyses([]string{"zzz", "aaa", "mmm"})
	assert.Equal(t, "aaa\n\nmmm\n\nzzz", result)
}

func TestCombineChunkAnalyses_DeterministicRegardlessOfInputOrder(t *testing.T) {
	a := CombineChunkAnalyses([]string{"one", "two", "three"})
	b := CombineChunkAnalyses([]string{"three", "one", "two"})
	assert.Equal(t, a, b)
}

func TestMaybeTruncate_NoOpUnderBudget(t *testing.T) {
	text := "line one\nline two\n"
	out, err := MaybeTruncate(text, 1000, charCountTokenizer{})
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestMaybeTruncate_HalvesUntilUnderBudget(t *testing.T) {
	var lines []string
	for i := 0; i < 16; i++ {
		lines = append(lines, strings.Repeat("x", 4))
	}
	text := strings.Join(lines, "\n")

	out, err := MaybeTruncate(text, 20, charCountTokenizer{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 20+4) // allow one line of slack from integer halving
}

func TestMaybeTruncate_Property_NeverGrowsAndEventuallyFits(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numLines := rapid.IntRange(1, 40).Draw(rt, "numLines")
		lineLen := rapid.IntRange(1, 10).Draw(rt, "lineLen")
		budget := rapid.IntRange(1, 400).Draw(rt, "budget")

		var lines []string
		for i := 0; i < numLines; i++ {
			lines = append(lines, strings.Repeat("y", lineLen))
		}
		text := strings.Join(lines, "\n")

		out, err := MaybeTruncate(text, budget, charCountTokenizer{})
		require.NoError(rt, err)
		if len(out) > len(text) {
			rt.Fatalf("truncated text grew: %d > %d", len(out), len(text))
		}
		// MaybeTruncate can only keep halving while it still has more
		// than one line; a single line is never split mid-line.
		if strings.Count(out, "\n") == 0 && len(out) > budget && len(text) > budget {
			// A single remaining line may still exceed budget: that's
			// the documented "blunt" truncation policy, not a bug.
			return
		}
		if len(out) > budget {
			rt.Fatalf("truncated text still exceeds budget: %d > %d", len(out), budget)
		}
	})
}
