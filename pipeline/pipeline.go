// Package pipeline orchestrates the relevance pipeline's phases:
// skeleton triage, chunk analysis, per-file combination, and
// collation-plus-refine. Each phase is a bounded fan-out over runPhase,
// so a slow or failing file never blocks the whole run and never
// brings down a request that would otherwise succeed.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jbellis/llmap/internal/metrics"
	"github.com/jbellis/llmap/llm"
	"github.com/jbellis/llmap/llm/tokenizer"
	"github.com/jbellis/llmap/prompts"
	"github.com/jbellis/llmap/source"
)

// Client is the subset of *llm.Client the pipeline drives. Keeping it
// as an interface here (rather than depending on the concrete type)
// lets tests substitute a fake backend without a network round trip.
type Client interface {
	prompts.Asker
	DefaultAnalyzeModel() string
	DefaultRefineModel() string
	MaxTokens() int
}

// charsPerTokenEstimate sizes the Chunker's maxChars argument from the
// backend's token ceiling. It only needs to be in the right ballpark:
// the chunker keeps whole lines, and the downstream analyze call will
// still count real tokens before it ever talks to the backend.
const charsPerTokenEstimate = 3

// skeletonBatchTokenBudget bounds how many skeletons are evaluated in
// one triage call, independent of the backend's much larger analyze
// ceiling — skeletons are meant to be skimmed quickly, not exhaustively
// reasoned over, so keeping batches small keeps triage responses fast.
const skeletonBatchTokenBudget = 20000

// Config tunes one pipeline run.
type Config struct {
	Concurrency      int
	Refine           bool
	AnalyzeSkeletons bool
}

// Pipeline wires a backend Client together with the small collaborators
// that turn file paths into LLM-ready text.
type Pipeline struct {
	Client    Client
	Extractor source.SkeletonExtractor
	Chunker   source.Chunker
	Tokenizer tokenizer.Tokenizer
	Config    Config

	// Metrics records each phase's wall-clock duration. Nil by default;
	// set it after New to opt in, since every Collector method tolerates
	// a nil receiver.
	Metrics *metrics.Collector
}

// New builds a Pipeline with the default naive extractor, chunker, and
// a tokenizer matched to the client's analyze model.
func New(client Client, cfg Config) *Pipeline {
	return &Pipeline{
		Client:    client,
		Extractor: source.DeclarationSkeleton{},
		Chunker:   source.LineChunker{},
		Tokenizer: tokenizer.New(client.DefaultAnalyzeModel()),
		Config:    cfg,
	}
}

// Run searches filePaths for relevance to question and returns the
// condensed, question-focused context string along with any per-file
// PhaseErrors encountered. progress, if non-nil, is passed to every LLM
// call of every phase (see llm.ProgressSink for when it is invoked).
func (p *Pipeline) Run(ctx context.Context, question string, filePaths []string, progress llm.ProgressSink) (string, []*PhaseError, error) {
	concurrency := p.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 100
	}

	var allErrs []*PhaseError

	triageStart := time.Now()
	relevantFiles, errs, err := p.triagePhase(ctx, question, filePaths, concurrency, progress)
	p.Metrics.ObservePhase("triage", time.Since(triageStart))
	allErrs = append(allErrs, errs...)
	if err != nil {
		return "", allErrs, fmt.Errorf("skeleton triage phase: %w", err)
	}

	chunkStart := time.Now()
	fileChunks, errs, err := p.chunkPhase(ctx, relevantFiles, concurrency)
	p.Metrics.ObservePhase("chunk", time.Since(chunkStart))
	allErrs = append(allErrs, errs...)
	if err != nil {
		return "", allErrs, fmt.Errorf("chunking phase: %w", err)
	}

	analyzeStart := time.Now()
	chunkAnalyses, errs, err := p.analyzePhase(ctx, question, fileChunks, concurrency, progress)
	p.Metrics.ObservePhase("analyze", time.Since(analyzeStart))
	allErrs = append(allErrs, errs...)
	if err != nil {
		return "", allErrs, fmt.Errorf("chunk analysis phase: %w", err)
	}

	combineStart := time.Now()
	combined, err := p.combinePhase(chunkAnalyses)
	p.Metrics.ObservePhase("combine", time.Since(combineStart))
	if err != nil {
		return "", allErrs, fmt.Errorf("combine phase: %w", err)
	}

	groups, oversized, err := Collate(combined, p.Client.MaxTokens(), p.Tokenizer)
	if err != nil {
		return "", allErrs, fmt.Errorf("collate phase: %w", err)
	}

	refineStart := time.Now()
	contexts, errs, err := p.refinePhase(ctx, question, groups, concurrency, progress)
	p.Metrics.ObservePhase("refine", time.Since(refineStart))
	allErrs = append(allErrs, errs...)
	if err != nil {
		return "", allErrs, fmt.Errorf("refine phase: %w", err)
	}

	return p.formatOutput(contexts, oversized), allErrs, nil
}

type skeletonChunk struct {
	batch []source.Text
}

func (p *Pipeline) triagePhase(ctx context.Context, question string, filePaths []string, concurrency int, progress llm.ProgressSink) ([]string, []*PhaseError, error) {
	var parseable, other []string
	for _, fp := range filePaths {
		if p.Config.AnalyzeSkeletons && source.ParseableExtensions[filepath.Ext(fp)] {
			parseable = append(parseable, fp)
		} else {
			other = append(other, fp)
		}
	}

	if len(parseable) == 0 {
		return other, nil, nil
	}

	skeletons, loadErrs, err := runPhase(ctx, parseable, concurrency, func(ctx context.Context, fp string) (source.Text, error) {
		text, loadErr := source.Load(fp)
		if loadErr != nil {
			return source.Text{}, &PhaseError{Message: "failed to read file", FilePath: fp, Cause: loadErr, Kind: KindRequest}
		}
		skel, extractErr := p.Extractor.Extract(fp, text.Text)
		if extractErr != nil {
			return source.Text{}, &PhaseError{Message: "failed to extract skeleton", FilePath: fp, Cause: extractErr, Kind: KindRequest}
		}
		return source.Text{FilePath: fp, Text: skel}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	groups, large, err := Collate(skeletons, skeletonBatchTokenBudget, p.Tokenizer)
	if err != nil {
		return nil, loadErrs, err
	}
	for _, l := range large {
		groups = append(groups, []source.Text{l})
	}

	batchResults, triageErrs, err := runPhase(ctx, groups, concurrency, func(ctx context.Context, batch []source.Text) ([]string, error) {
		relevant, askErr := prompts.TriageSkeletons(ctx, p.Client, p.Client.DefaultAnalyzeModel(), batch, question, progress)
		if askErr != nil {
			return nil, wrapLLMError(askErr, batchLabel(batch))
		}
		return relevant, nil
	})
	if err != nil {
		return nil, nil, err
	}

	relevantFiles := append([]string(nil), other...)
	for _, r := range batchResults {
		relevantFiles = append(relevantFiles, r...)
	}

	allErrs := append(loadErrs, triageErrs...)
	return relevantFiles, allErrs, nil
}

func batchLabel(batch []source.Text) string {
	if len(batch) == 1 {
		return batch[0].FilePath
	}
	return fmt.Sprintf("%d files", len(batch))
}

type fileChunks struct {
	filePath string
	chunks   []string
}

func (p *Pipeline) chunkPhase(ctx context.Context, filePaths []string, concurrency int) ([]fileChunks, []*PhaseError, error) {
	maxChars := p.Client.MaxTokens() * charsPerTokenEstimate
	return runPhase(ctx, filePaths, concurrency, func(_ context.Context, fp string) (fileChunks, error) {
		text, err := source.Load(fp)
		if err != nil {
			return fileChunks{}, &PhaseError{Message: "failed to read file", FilePath: fp, Cause: err, Kind: KindRequest}
		}
		return fileChunks{filePath: fp, chunks: p.Chunker.Chunk(fp, text.Text, maxChars)}, nil
	})
}

type chunkPair struct {
	filePath string
	text     string
}

func (p *Pipeline) analyzePhase(ctx context.Context, question string, files []fileChunks, concurrency int, progress llm.ProgressSink) ([]source.Text, []*PhaseError, error) {
	var pairs []chunkPair
	for _, f := range files {
		for _, c := range f.chunks {
			pairs = append(pairs, chunkPair{filePath: f.filePath, text: c})
		}
	}

	return runPhase(ctx, pairs, concurrency, func(ctx context.Context, pair chunkPair) (source.Text, error) {
		text, err := MaybeTruncate(pair.text, p.Client.MaxTokens(), p.Tokenizer)
		if err != nil {
			return source.Text{}, err
		}
		result, err := prompts.AnalyzeChunk(ctx, p.Client, p.Client.DefaultAnalyzeModel(), source.Text{FilePath: pair.filePath, Text: text}, question, progress)
		if err != nil {
			return source.Text{}, wrapLLMError(err, pair.filePath)
		}
		return result, nil
	})
}

// combinePhase groups each file's chunk analyses together, joins them
// in sorted order for cache-key determinism, and truncates any file
// whose combined analysis still exceeds the backend's ceiling.
func (p *Pipeline) combinePhase(analyses []source.Text) ([]source.Text, error) {
	byFile := make(map[string][]string)
	for _, a := range analyses {
		byFile[a.FilePath] = append(byFile[a.FilePath], a.Text)
	}

	var filePaths []string
	for fp := range byFile {
		filePaths = append(filePaths, fp)
	}
	sort.Strings(filePaths)

	var results []source.Text
	for _, fp := range filePaths {
		combined := CombineChunkAnalyses(byFile[fp])
		truncated, err := MaybeTruncate(combined, p.Client.MaxTokens(), p.Tokenizer)
		if err != nil {
			return nil, err
		}
		results = append(results, source.Text{FilePath: fp, Text: truncated})
	}
	return results, nil
}

func (p *Pipeline) refinePhase(ctx context.Context, question string, groups [][]source.Text, concurrency int, progress llm.ProgressSink) ([]string, []*PhaseError, error) {
	if !p.Config.Refine {
		var flattened []string
		for _, group := range groups {
			for _, a := range group {
				flattened = append(flattened, fmt.Sprintf("File: %s\n%s\n", a.FilePath, a.Text))
			}
		}
		return flattened, nil, nil
	}

	return runPhase(ctx, groups, concurrency, func(ctx context.Context, group []source.Text) (string, error) {
		result, err := prompts.RefineContext(ctx, p.Client, p.Client.DefaultRefineModel(), group, question, progress)
		if err != nil {
			return "", wrapLLMError(err, batchLabel(group))
		}
		return result, nil
	})
}

func (p *Pipeline) formatOutput(contexts []string, oversized []source.Text) string {
	var out strings.Builder
	for _, c := range contexts {
		if c != "" {
			out.WriteString(c)
			out.WriteString("\n\n")
		}
	}
	for _, o := range oversized {
		fmt.Fprintf(&out, "%s:\n%s\n\n", o.FilePath, o.Text)
	}
	return out.String()
}
