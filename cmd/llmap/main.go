// Command llmap evaluates a set of source files for relevance to a
// natural-language question and prints condensed, question-focused
// context to stdout. File paths are read one per line from stdin, in
// Unix-pipeline fashion (e.g. `git ls-files | llmap "how does auth work?"`).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jbellis/llmap/config"
	"github.com/jbellis/llmap/internal/metrics"
	"github.com/jbellis/llmap/internal/telemetry"
	"github.com/jbellis/llmap/llm"
	"github.com/jbellis/llmap/llm/cache"
	"github.com/jbellis/llmap/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	question := flag.String("question", "", "question to check relevance against (or pass as the first positional argument)")
	sample := flag.Int("sample", 0, "number of random files to sample from the input set")
	concurrency := flag.Int("llm-concurrency", 100, "maximum number of concurrent LLM requests")
	noRefine := flag.Bool("no-refine", false, "skip refinement and combination of analyses")
	noSkeletons := flag.Bool("no-skeletons", false, "skip skeleton analysis phase for all files")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	q := *question
	if q == "" && flag.NArg() > 0 {
		q = flag.Arg(0)
	}
	if q == "" {
		fmt.Fprintln(os.Stderr, "Error: a question is required")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	runID := uuid.New().String()
	logger = logger.With(zap.String("run_id", runID))

	ctx := context.Background()
	providers, err := telemetry.Init(ctx, telemetry.Config{Endpoint: cfg.OTELEndpoint}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize telemetry: %v\n", err)
		return 1
	}
	defer providers.Shutdown(ctx) //nolint:errcheck

	sourceFiles, err := readFilePaths(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(sourceFiles) == 0 {
		fmt.Fprintln(os.Stderr, "Error: No valid source files provided")
		return 1
	}
	if *sample > 0 && *sample < len(sourceFiles) {
		sourceFiles = sampleFiles(sourceFiles, *sample)
	}

	mcol := metrics.NewCollector("llmap")

	cch, err := cache.Open(cfg.CacheDir, cfg.CacheMode, logger, mcol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open cache: %v\n", err)
		return 1
	}

	client, err := llm.NewClient(cfg.Credentials, cch,
		llm.WithLogger(logger),
		llm.WithModels(cfg.AnalyzeModel, cfg.RefineModel),
		llm.WithMetrics(mcol),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// An explicit --llm-concurrency wins; otherwise the config value
	// (default 100, or the YAML file's concurrency) applies.
	workers := cfg.Concurrency
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "llm-concurrency" {
			workers = *concurrency
		}
	})

	pipelineCfg := pipeline.Config{
		Concurrency:      workers,
		Refine:           !*noRefine,
		AnalyzeSkeletons: !*noSkeletons,
	}
	p := pipeline.New(client, pipelineCfg)
	p.Metrics = mcol

	linesReceived := 0
	progress := func(n int) {
		linesReceived += n
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "\rreceived %d lines", linesReceived)
		}
	}

	output, phaseErrs, err := p.Run(ctx, q, sourceFiles, progress)
	if cfg.Verbose {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if len(phaseErrs) > 0 {
		fmt.Fprintln(os.Stderr, "Errors encountered:")
		for _, pe := range phaseErrs {
			fmt.Fprintln(os.Stderr, pe.Error())
		}
		fmt.Fprintln(os.Stderr)
	}

	fmt.Println(output)
	return 0
}

func readFilePaths(stdin *os.File) ([]string, error) {
	var files []string
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		path := scanner.Text()
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: File does not exist: %s\n", path)
			continue
		}
		files = append(files, path)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return files, nil
}

func sampleFiles(files []string, n int) []string {
	shuffled := append([]string(nil), files...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
