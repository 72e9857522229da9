// Package batch orchestrates a conversion run: validate the request, expand
// inputs into a deterministic file list, fan tasks out, and collect one
// result per file. Only pre-dispatch validation can fail a run; per-file
// outcomes are data.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/gbmarques/dicomflow/internal/discover"
	"github.com/gbmarques/dicomflow/internal/domain"
	"github.com/gbmarques/dicomflow/internal/export"
	"github.com/gbmarques/dicomflow/internal/pipeline"
)

type Options struct {
	Inputs     []string
	TargetRoot string
	Format     string
	Anonymize  bool
	AnonPaths  map[string]string
	Sequential bool
	Workers    int
}

// Converter runs one file; satisfied by *pipeline.Processor.
type Converter interface {
	Convert(ctx context.Context, task pipeline.Task) domain.Result
}

// Discoverer expands input paths into the sorted dataset file list.
type Discoverer interface {
	Files(ctx context.Context, inputs []string) ([]string, error)
}

// LocalDiscoverer walks the local filesystem.
type LocalDiscoverer struct{}

func (LocalDiscoverer) Files(_ context.Context, inputs []string) ([]string, error) {
	return discover.Files(inputs)
}

type Runner struct {
	converter  Converter
	discoverer Discoverer
	logger     *log.Logger
}

func NewRunner(converter Converter, discoverer Discoverer, logger *log.Logger) (*Runner, error) {
	if converter == nil {
		return nil, errors.New("converter is required")
	}
	if discoverer == nil {
		discoverer = LocalDiscoverer{}
	}
	return &Runner{converter: converter, discoverer: discoverer, logger: logger}, nil
}

// Run executes the batch. The error return covers fatal validation only; a
// run whose every file skipped or failed is still a successful run, and the
// caller reads the per-file outcomes from the returned results.
func (r *Runner) Run(ctx context.Context, opts Options) ([]domain.Result, error) {
	format, err := domain.NormalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.Anonymize && len(opts.AnonPaths) == 0 {
		return nil, errors.New("anonymize requires a precomputed path mapping")
	}
	if len(opts.Inputs) == 0 {
		return nil, errors.New("at least one input path is required")
	}

	files, err := r.discoverer.Files(ctx, opts.Inputs)
	if err != nil {
		return nil, err
	}

	targetRoot := export.TargetRoot(opts.TargetRoot, opts.Inputs)

	task := func(source string) pipeline.Task {
		return pipeline.Task{
			Source:     source,
			TargetRoot: targetRoot,
			Format:     format,
			Anonymize:  opts.Anonymize,
			AnonPaths:  opts.AnonPaths,
		}
	}

	results := make([]domain.Result, len(files))

	if opts.Sequential {
		for i, source := range files {
			results[i] = r.convertOne(ctx, task(source))
			r.logResult(results[i])
		}
		return results, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, source := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t pipeline.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.convertOne(ctx, t)
			r.logResult(results[i])
		}(i, task(source))
	}
	wg.Wait()

	return results, nil
}

// convertOne isolates a task: a panic inside one conversion becomes that
// file's Failed result instead of taking down its siblings.
func (r *Runner) convertOne(ctx context.Context, task pipeline.Task) (result domain.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = domain.Failed(task.Source, fmt.Errorf("conversion panicked: %v", rec))
		}
	}()
	return r.converter.Convert(ctx, task)
}

func (r *Runner) logResult(result domain.Result) {
	if r.logger == nil {
		return
	}
	switch result.Status {
	case domain.StatusWritten:
		r.logger.Printf("converted source=%s path=%s", result.Source, result.Path)
	case domain.StatusSkipped:
		r.logger.Printf("skipped source=%s reason=%q", result.Source, result.Reason)
	default:
		r.logger.Printf("failed source=%s err=%q", result.Source, result.Error)
	}
}

// Summary aggregates per-file outcomes for reporting.
type Summary struct {
	Written int
	Skipped int
	Failed  int
	Pixels  int64
}

func Summarize(results []domain.Result) Summary {
	var s Summary
	for _, result := range results {
		switch result.Status {
		case domain.StatusWritten:
			s.Written++
			s.Pixels += result.Pixels
		case domain.StatusSkipped:
			s.Skipped++
		case domain.StatusFailed:
			s.Failed++
		}
	}
	return s
}
