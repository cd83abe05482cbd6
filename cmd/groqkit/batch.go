package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lamim/groqkit/internal/batch"
	"github.com/lamim/groqkit/internal/writer"
	"github.com/spf13/cobra"
)

// batchOutput is one line of the batch command's JSONL output
type batchOutput struct {
	ID       int    `json:"id"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var (
		flags       requestFlags
		concurrency int
		resume      string
	)

	cmd := &cobra.Command{
		Use:   "batch <prompts-file>",
		Short: "Send every prompt in a file concurrently",
		Long: `Send each prompt in a file (one per line, or {"prompt": "..."} JSON lines)
with a pool of workers and print one JSON line per successful reply.

Progress is checkpointed in the session directory. Re-run with --resume to
retry only the prompts that have not succeeded yet.`,
		Example: `  groqkit batch prompts.txt --concurrency 8 > replies.jsonl
  groqkit batch prompts.txt --resume session_2025-10-30T14-30-00`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open prompts file: %w", err)
			}
			jobs, err := batch.LoadPrompts(f)
			_ = f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if len(jobs) == 0 {
				return fmt.Errorf("no prompts found in %s", args[0])
			}

			a, err := newApp(cmd, opts, "batch", resume)
			if err != nil {
				return err
			}
			defer a.Close()

			s := flags.resolve(cmd, a.cfg)

			runOpts := batch.Options{
				Model:          s.model,
				System:         s.system,
				RequestOptions: s.options,
				Concurrency:    concurrency,
			}
			if a.session != nil {
				runOpts.Checkpoint, err = batch.OpenCheckpoint(a.session.GetSessionDir(), batch.HashJobs(runOpts, jobs),
					batch.DefaultCheckpointInterval, a.logger)
				if err != nil {
					return err
				}
			}
			runOpts.Progress = newProgressBar(cmd.ErrOrStderr(), len(jobs), "Processing")

			runner, err := batch.NewRunner(a.client, runOpts, a.logger)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			stats, err := runner.Run(cmd.Context(), jobs, func(res batch.Result) {
				jobID := res.Job.ID
				ex := writer.Exchange{
					Command:      "batch",
					JobID:        &jobID,
					Model:        s.model,
					Messages:     res.Messages,
					Response:     res.Content,
					FinishReason: res.FinishReason,
					Usage:        res.Usage,
					DurationMs:   res.Duration.Milliseconds(),
				}
				s.splitReasoning(&ex)
				a.record(ex, res.Err)
				if res.Err != nil {
					return
				}

				rendered, rerr := s.render(res.Content)
				if rerr != nil {
					rendered = res.Content
				}
				if werr := enc.Encode(batchOutput{ID: jobID, Prompt: res.Job.Prompt, Response: rendered}); werr != nil {
					a.logger.Warn("Failed to write output", "job_id", jobID, "error", werr)
				}
			})

			fmt.Fprintf(cmd.ErrOrStderr(), "Batch finished: %d succeeded, %d failed, %d skipped of %d prompts\n",
				stats.Succeeded, stats.Failed, stats.Skipped, stats.Total)
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d of %d prompts failed", stats.Failed, stats.Total)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Number of concurrent requests")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume the batch checkpointed in this session")

	return cmd
}
