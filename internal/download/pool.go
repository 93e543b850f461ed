package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// Errors reported when a checked stream does not match its expectation.
var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrSizeMismatch     = errors.New("size mismatch")
)

// Opener opens a byte stream for a URL. *Client implements it.
type Opener interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Job is one URL to hash, with the digest it is expected to produce.
// Empty expectations are not checked.
type Job struct {
	Label        string
	URL          string
	ExpectedSHA1 string
	ExpectedSize uint64
}

// Result is the outcome of a Job.
type Result struct {
	Job     Job
	Success bool
	Error   error
	Digest  Digest
	index   int // Internal: used to maintain result order
}

// Pool hashes remote streams concurrently using a worker pool. Nothing is
// written to disk.
type Pool struct {
	client  Opener
	workers int
	logger  *slog.Logger
}

// NewPool creates a new pool with the specified number of worker goroutines.
func NewPool(client Opener, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		client:  client,
		workers: workers,
		logger:  logger,
	}
}

// Execute submits a batch of jobs to the pool and waits for all to complete.
// The returned results maintain the same order as the input jobs.
// If the context is cancelled, jobs not yet started are reported with the
// context error.
func (p *Pool) Execute(ctx context.Context, jobs []Job) []Result {
	if len(jobs) == 0 {
		return []Result{}
	}

	jobsChan := make(chan jobWithIndex, len(jobs))
	resultsChan := make(chan Result, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go p.worker(ctx, jobsChan, resultsChan, &wg)
	}

	for i, job := range jobs {
		jobsChan <- jobWithIndex{job: job, index: i}
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]Result, 0, len(jobs))
	for result := range resultsChan {
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].index < results[j].index
	})

	return results
}

// jobWithIndex pairs a Job with its original index for ordering results.
type jobWithIndex struct {
	job   Job
	index int
}

// worker processes jobs from the jobs channel and sends results to the results channel.
func (p *Pool) worker(ctx context.Context, jobsChan <-chan jobWithIndex, resultsChan chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for item := range jobsChan {
		result := Result{Job: item.job, index: item.index}

		if err := ctx.Err(); err != nil {
			result.Error = err
			resultsChan <- result
			continue
		}

		digest, err := p.check(ctx, item.job)
		result.Digest = digest
		if err != nil {
			result.Error = err
			p.logger.Warn("check failed", "label", item.job.Label, "url", item.job.URL, "error", err)
		} else {
			result.Success = true
			p.logger.Debug("check passed", "label", item.job.Label, "url", item.job.URL, "size", digest.Size)
		}

		resultsChan <- result
	}
}

// check hashes the stream behind job.URL and compares it to the
// expectations.
func (p *Pool) check(ctx context.Context, job Job) (Digest, error) {
	rc, err := p.client.Open(ctx, job.URL)
	if err != nil {
		return Digest{}, err
	}
	defer rc.Close()

	digest, err := HashCopy(nil, rc, nil)
	if err != nil {
		return Digest{}, err
	}
	if job.ExpectedSHA1 != "" && digest.SHA1 != job.ExpectedSHA1 {
		return digest, fmt.Errorf("%w: expected %s but got %s", ErrChecksumMismatch, job.ExpectedSHA1, digest.SHA1)
	}
	if job.ExpectedSize != 0 && digest.Size != job.ExpectedSize {
		return digest, fmt.Errorf("%w: expected %d but got %d bytes", ErrSizeMismatch, job.ExpectedSize, digest.Size)
	}
	return digest, nil
}
