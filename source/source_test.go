package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclarationSkeleton_KeepsTopLevelDeclarations(t *testing.T) {
	content := strings.Join([]string{
		"import os",
		"",
		"def exported():",
		"    x = 1",
		"    if x == 1:",
		"        return x",
		"",
		"class Thing:",
		"    field = 1",
	}, "\n")

	skel, err := DeclarationSkeleton{}.Extract("foo.py", content)
	require.NoError(t, err)
	assert.Contains(t, skel, "def exported():")
	assert.Contains(t, skel, "class Thing:")
	assert.NotContains(t, skel, "x = 1")
}

func TestDeclarationSkeleton_PassesThroughNonParseableLanguages(t *testing.T) {
	content := "func Exported() {\n\tx := 1\n}\n"
	skel, err := DeclarationSkeleton{}.Extract("foo.go", content)
	require.NoError(t, err)
	assert.Equal(t, content, skel)
}

func TestDeclarationSkeleton_PassesThroughUnknownExtensions(t *testing.T) {
	skel, err := DeclarationSkeleton{}.Extract("notes.txt", "anything at all")
	require.NoError(t, err)
	assert.Equal(t, "anything at all", skel)
}

func TestLineChunker_SmallContentIsOneChunk(t *testing.T) {
	chunks := LineChunker{}.Chunk("f.go", "short", 1000)
	assert.Equal(t, []string{"short"}, chunks)
}

func TestLineChunker_SplitsOnLineBoundaries(t *testing.T) {
	content := strings.Repeat("a line of text\n", 100)
	chunks := LineChunker{}.Chunk("f.go", content, 200)
	assert.Greater(t, len(chunks), 1)

	var rejoined strings.Builder
	for _, c := range chunks {
		rejoined.WriteString(c)
	}
	assert.Equal(t, content, rejoined.String())
}

func TestLineChunker_NeverSplitsALineInHalf(t *testing.T) {
	content := "short\n" + strings.Repeat("x", 500) + "\nshort again\n"
	chunks := LineChunker{}.Chunk("f.go", content, 100)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c, "\n") || c == chunks[len(chunks)-1])
	}
}

func TestLoad_ReadsFileIntoText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a"), 0o644))

	text, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, text.FilePath)
	assert.Equal(t, "package a", text.Text)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.go"))
	require.Error(t, err)
}
