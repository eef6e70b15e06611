package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbellis/llmap/llm"
	"github.com/jbellis/llmap/source"
)

type fakeAsker struct {
	responses []string
	calls     int
	lastModel string
}

func (f *fakeAsker) Ask(_ context.Context, _ []llm.Message, model string, progress llm.ProgressSink) (*llm.Response, error) {
	return f.next(model, progress)
}

func (f *fakeAsker) AskRefine(_ context.Context, _ []llm.Message, model string, progress llm.ProgressSink) (*llm.Response, error) {
	return f.next(model, progress)
}

func (f *fakeAsker) next(model string, progress llm.ProgressSink) (*llm.Response, error) {
	f.lastModel = model
	if progress != nil {
		progress(1)
	}
	resp := f.responses[f.calls]
	f.calls++
	return &llm.Response{Content: resp}, nil
}

func TestTriageSkeletons_KeepsOnlyMentionedPaths(t *testing.T) {
	asker := &fakeAsker{responses: []string{"- a/b.go\nsome other line\n- c/d.go"}}
	skeletons := []source.Text{
		{FilePath: "a/b.go", Text: "func A() {}"},
		{FilePath: "e/f.go", Text: "func E() {}"},
		{FilePath: "c/d.go", Text: "func C() {}"},
	}

	relevant, err := TriageSkeletons(context.Background(), asker, "model", skeletons, "what does A do?", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b.go", "c/d.go"}, relevant)
}

func TestTriageSkeletons_NoneRelevant(t *testing.T) {
	asker := &fakeAsker{responses: []string{"nothing matches"}}
	skeletons := []source.Text{{FilePath: "a/b.go", Text: "x"}}

	relevant, err := TriageSkeletons(context.Background(), asker, "model", skeletons, "q", nil)
	require.NoError(t, err)
	assert.Empty(t, relevant)
}

func TestAnalyzeChunk_PreservesFilePath(t *testing.T) {
	asker := &fakeAsker{responses: []string{"this code handles X"}}
	result, err := AnalyzeChunk(context.Background(), asker, "model", source.Text{FilePath: "x.go", Text: "func X(){}"}, "what is X?", nil)
	require.NoError(t, err)
	assert.Equal(t, "x.go", result.FilePath)
	assert.Equal(t, "this code handles X", result.Text)
}

func TestRefineContext_ConcatenatesBothPasses(t *testing.T) {
	asker := &fakeAsker{responses: []string{"first pass", "second pass"}}
	group := []source.Text{{FilePath: "a.go", Text: "analysis of a"}}

	result, err := RefineContext(context.Background(), asker, "model", group, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "first pass\n\nsecond pass", result)
	assert.Equal(t, 2, asker.calls)
}
