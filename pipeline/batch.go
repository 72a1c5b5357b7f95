package pipeline

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Job is the engine output for one image.
type Job struct {
	Dimensions images.Dimensions
	Outputs    []postprocess.View
}

// RunBatch runs p over independent jobs in parallel.
//
// Arguments:
//   - ctx: Cancelling ctx stops jobs that have not started yet.
//   - p: The pipeline.
//   - jobs: Outputs for each image.
//   - maxConcurrency: Maximum number of jobs processed concurrently; values below 1 mean 1.
//
// Returns:
//   - []postprocess.DetectionSet: One set per job, in job order.
//   - error: The first failing job's error in job order, or ctx.Err().
//
// @example
// sets, err := pipeline.RunBatch(ctx, p, jobs, 4)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func RunBatch(ctx context.Context, p *Pipeline, jobs []Job, maxConcurrency int) ([]postprocess.DetectionSet, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]postprocess.DetectionSet, len(jobs))
	errs := make([]error, len(jobs))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(idx int, job Job) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}

			set, err := p.Run(job.Dimensions, job.Outputs...)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "job %d", idx)
				return
			}
			results[idx] = set
		}(i, job)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
