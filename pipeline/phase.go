package pipeline

import (
	"context"
	"sync"

	"github.com/jbellis/llmap/llm"
)

// wrapLLMError turns a *llm.Error from the Client into the PhaseError
// shape the pipeline reports per file: non-retryable backend rejections
// become KindRequest, exhausted-retry failures become KindTimeout. Any
// other error (a bug, a canceled context) is returned unchanged so
// runPhase treats it as a programming-error class failure and aborts
// the whole phase instead of limping along.
func wrapLLMError(err error, filePath string) error {
	if err == nil {
		return nil
	}
	llmErr, ok := err.(*llm.Error)
	if !ok {
		return err
	}
	kind := KindRequest
	if llmErr.Exhausted() {
		kind = KindTimeout
	}
	return &PhaseError{
		Message:  "llm request failed",
		FilePath: filePath,
		Cause:    llmErr,
		Kind:     kind,
	}
}

// runPhase applies fn to every item in items with at most concurrency
// goroutines in flight at once, collecting the results of items that
// succeeded (in their original relative order) alongside any
// *PhaseError a failed item produced. A *PhaseError for one file never
// aborts the others: it is recorded and processing continues, and the
// failed item contributes no entry to the returned results — only
// successes flow downstream, so a failed file never shows up as a
// zero-value placeholder later in the pipeline. Any other error class
// is treated as a programming error — runPhase cancels the remaining
// work and returns it directly, with no partial results.
//
// The semaphore-plus-WaitGroup shape here is a generic item/result pair
// since every pipeline phase needs the identical concurrency shape over
// a different payload type.
func runPhase[T, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) (R, error)) ([]R, []*PhaseError, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]R, len(items))
	succeeded := make([]bool, len(items))
	phaseErrs := make([]*PhaseError, len(items))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error

	for i, item := range items {
		select {
		case <-runCtx.Done():
		default:
		}

		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				return
			}

			res, err := fn(runCtx, it)
			if err == nil {
				mu.Lock()
				results[idx] = res
				succeeded[idx] = true
				mu.Unlock()
				return
			}

			var phaseErr *PhaseError
			if pe, ok := err.(*PhaseError); ok {
				phaseErr = pe
			} else {
				mu.Lock()
				if fatal == nil {
					fatal = err
					cancel()
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			phaseErrs[idx] = phaseErr
			mu.Unlock()
		}(i, item)
	}

	wg.Wait()

	if fatal != nil {
		return nil, nil, fatal
	}

	ok := make([]R, 0, len(items))
	for i, wasOK := range succeeded {
		if wasOK {
			ok = append(ok, results[i])
		}
	}

	var errs []*PhaseError
	for _, pe := range phaseErrs {
		if pe != nil {
			errs = append(errs, pe)
		}
	}
	return ok, errs, nil
}
