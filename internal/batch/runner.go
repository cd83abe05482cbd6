// Package batch sends many prompts through a groq client with a bounded
// worker pool, recording progress in a checkpoint so interrupted runs resume.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lamim/groqkit/pkg/groq"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
)

// MaxConcurrency caps the number of workers
const MaxConcurrency = 64

// Completer sends one chat completion. *groq.Client implements it.
type Completer interface {
	Complete(ctx context.Context, model string, messages []groq.Message, opts ...groq.RequestOption) (*groq.ChatCompletionResponse, error)
}

// Options configures a Runner
type Options struct {
	Model          string
	System         string
	RequestOptions []groq.RequestOption
	Concurrency    int
	// Checkpoint is optional; completed jobs in it are skipped.
	Checkpoint *Checkpoint
	// Progress is optional and advanced once per job, skipped jobs included.
	Progress *progressbar.ProgressBar
}

// Result is the outcome of one job
type Result struct {
	Job          Job
	Messages     []groq.Message
	Content      string
	FinishReason string
	Usage        *groq.Usage
	Duration     time.Duration
	Err          error
}

// Stats summarizes a run
type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Runner processes jobs concurrently
type Runner struct {
	client Completer
	opts   Options
	logger *slog.Logger
}

// NewRunner validates opts and returns a runner
func NewRunner(client Completer, opts Options, logger *slog.Logger) (*Runner, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if opts.Concurrency < 1 || opts.Concurrency > MaxConcurrency {
		return nil, fmt.Errorf("concurrency must be between 1 and %d (got %d)", MaxConcurrency, opts.Concurrency)
	}
	return &Runner{client: client, opts: opts, logger: logger}, nil
}

// Run sends every pending job and calls handle for each result, from a single
// goroutine, in completion order. Failed jobs are not marked complete so a
// resumed run retries them. Run returns ctx.Err() when it was interrupted.
func (r *Runner) Run(ctx context.Context, jobs []Job, handle func(Result)) (Stats, error) {
	cp := r.opts.Checkpoint
	pending := lo.Filter(jobs, func(job Job, _ int) bool {
		return cp == nil || !cp.IsComplete(job.ID)
	})

	stats := Stats{Total: len(jobs), Skipped: len(jobs) - len(pending)}
	if stats.Skipped > 0 {
		r.logger.Info("Skipping completed jobs", "skipped", stats.Skipped, "pending", len(pending))
		if r.opts.Progress != nil {
			_ = r.opts.Progress.Add(stats.Skipped)
		}
	}

	jobCh := make(chan Job)
	results := make(chan Result)

	var wg sync.WaitGroup
	workers := min(r.opts.Concurrency, len(pending))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.worker(ctx, i, jobCh, results, &wg)
	}

	go func() {
		defer close(jobCh)
		for _, job := range pending {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.Err != nil {
			stats.Failed++
			r.logger.Warn("Job failed",
				"job_id", res.Job.ID,
				"kind", groq.KindOf(res.Err),
				"error", res.Err)
		} else {
			stats.Succeeded++
			if cp != nil {
				if err := cp.MarkJobComplete(res.Job.ID, stats); err != nil {
					r.logger.Warn("Failed to checkpoint job", "job_id", res.Job.ID, "error", err)
				}
			}
		}

		if handle != nil {
			handle(res)
		}
		if r.opts.Progress != nil {
			_ = r.opts.Progress.Add(1)
		}
	}

	if r.opts.Progress != nil {
		_ = r.opts.Progress.Finish()
	}
	if cp != nil {
		if err := cp.Save(stats); err != nil {
			return stats, err
		}
	}

	r.logger.Info("Batch finished",
		"total", stats.Total,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *Runner) worker(ctx context.Context, workerID int, jobs <-chan Job, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	workerLogger := r.logger.With("worker_id", workerID)
	workerLogger.Debug("Worker started")

	for job := range jobs {
		if ctx.Err() != nil {
			workerLogger.Debug("Worker cancelled")
			return
		}
		results <- r.processJob(ctx, job)
	}

	workerLogger.Debug("Worker finished")
}

func (r *Runner) processJob(ctx context.Context, job Job) Result {
	res := Result{Job: job, Messages: r.messages(job)}

	start := time.Now()
	resp, err := r.client.Complete(ctx, r.opts.Model, res.Messages, r.opts.RequestOptions...)
	res.Duration = time.Since(start)
	if err == nil {
		res.Content, err = resp.FirstContent()
	}
	if err != nil {
		res.Err = err
		return res
	}

	res.FinishReason = resp.Choices[0].FinishReason
	usage := resp.Usage
	res.Usage = &usage
	return res
}

func (r *Runner) messages(job Job) []groq.Message {
	if r.opts.System == "" {
		return []groq.Message{groq.UserMessage(job.Prompt)}
	}
	return []groq.Message{groq.SystemMessage(r.opts.System), groq.UserMessage(job.Prompt)}
}
