// Package source defines the text llmap's pipeline passes between
// phases, and the two small collaborators (skeleton extraction and
// chunking) that turn a raw file on disk into that text. The original
// implementation leaned on tree-sitter to produce a real language-aware
// skeleton; reproducing that parser is out of scope here (see
// SPEC_FULL.md §1), so this package exposes the extraction points as
// interfaces and ships one naive, dependency-free implementation of
// each so the pipeline is runnable end to end.
package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Text pairs a file path with some text extracted from it — a
// skeleton, a chunk, or an analysis result. It flows through every
// phase of the pipeline.
type Text struct {
	FilePath string
	Text     string
}

// SkeletonExtractor reduces a file's full content to a compact
// signature-only view (class/function declarations, no bodies) used by
// the triage phase. Implementations that don't recognize a file's
// language may return the file unchanged.
type SkeletonExtractor interface {
	Extract(filePath, content string) (string, error)
}

// Chunker splits a file's content into pieces small enough to analyze
// individually, when the whole file would not fit in one request.
type Chunker interface {
	Chunk(filePath, content string, maxChars int) []string
}

// ParseableExtensions lists the source file extensions the default
// skeleton extractor understands structurally; anything else is passed
// through unchanged by DeclarationSkeleton.
var ParseableExtensions = map[string]bool{
	".java": true,
	".py":   true,
}

// DeclarationSkeleton is a naive, keyword-based stand-in for the
// original's tree-sitter-based Java skeleton extractor: for .java and
// .py files it keeps only the lines that look like declarations (at
// most four characters of leading indentation, starting with a
// recognizable keyword) and drops everything else. It favors recall over precision — better to
// keep a borderline declaration than to silently drop a relevant one.
type DeclarationSkeleton struct{}

var declKeywords = []string{
	"class ", "def ", "interface ",
	"public ", "private ", "protected ",
}

func (DeclarationSkeleton) Extract(filePath, content string) (string, error) {
	ext := filepath.Ext(filePath)
	if !ParseableExtensions[ext] {
		return content, nil
	}

	var out []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimLeft(line, " \t")
		indent := len(line) - len(trimmed)
		if indent > 4 {
			continue
		}
		for _, kw := range declKeywords {
			if strings.HasPrefix(trimmed, kw) {
				out = append(out, line)
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan %s: %w", filePath, err)
	}
	return strings.Join(out, "\n"), nil
}

// LineChunker splits content on line boundaries, packing as many whole
// lines as fit under maxChars into each chunk. It never splits a line
// across two chunks, since doing so would break declarations in the
// middle for no benefit (the per-chunk analysis prompt can tolerate
// slightly oversized chunks far better than truncated syntax).
type LineChunker struct{}

func (LineChunker) Chunk(_ string, content string, maxChars int) []string {
	if maxChars <= 0 || len(content) <= maxChars {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(content, "\n") {
		if current.Len() > 0 && current.Len()+len(line) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// Load reads a file's content into a Text, recording the path exactly
// as given so downstream output matches what the caller passed in.
func Load(filePath string) (Text, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Text{}, fmt.Errorf("read %s: %w", filePath, err)
	}
	return Text{FilePath: filePath, Text: string(data)}, nil
}
