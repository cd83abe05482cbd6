package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lamim/groqkit/internal/writer"
	"github.com/lamim/groqkit/pkg/groq"
	"github.com/spf13/cobra"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		flags        requestFlags
		templatePath string
		vars         []string
		images       []string
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Send a single prompt and print the reply",
		Long: `Send one prompt as a user message and print the first choice.

The prompt is taken from the arguments, from stdin when it is "-", or from a
Go text/template file rendered with --var KEY=VALUE pairs.`,
		Example: `  groqkit generate "Explain goroutines in one sentence"
  groqkit generate --json "List three primes as {\"primes\": [...]}"
  groqkit generate --template prompts/summary.tmpl --var Topic=channels`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := resolvePrompt(cmd.InOrStdin(), args, templatePath, vars)
			if err != nil {
				return err
			}

			a, err := newApp(cmd, opts, "generate", "")
			if err != nil {
				return err
			}
			defer a.Close()

			s := flags.resolve(cmd, a.cfg)
			messages := s.conversation(groq.UserMessage(prompt, imageURLs(images)...))
			_, err = completeExchange(cmd.Context(), a, "generate", s, messages, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&templatePath, "template", "", "Render the prompt from this template file")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Template variable KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&images, "image", nil, "Image URL or data URL to attach (repeatable)")

	return cmd
}

// completeExchange sends messages without streaming, prints the rendered reply
// to out, records the exchange and returns the raw reply.
func completeExchange(ctx context.Context, a *app, command string, s requestSettings, messages []groq.Message, out, status io.Writer) (string, error) {
	ex := writer.Exchange{Command: command, Model: s.model, Messages: messages}

	start := time.Now()
	stopSpinner := startSpinner(status, "Waiting for "+s.model)
	resp, err := a.client.Complete(ctx, s.model, messages, s.options...)
	stopSpinner()
	ex.DurationMs = time.Since(start).Milliseconds()

	if err == nil {
		ex.Response, err = resp.FirstContent()
	}
	if err != nil {
		a.record(ex, err)
		return "", describeError(err)
	}

	ex.FinishReason = resp.Choices[0].FinishReason
	ex.Usage = &resp.Usage
	s.splitReasoning(&ex)
	a.record(ex, nil)

	a.logger.Debug("Completion finished",
		"command", command,
		"model", resp.Model,
		"finish_reason", ex.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", ex.DurationMs)

	rendered, err := s.render(ex.Response)
	if err != nil {
		a.logger.Warn("Printing raw reply", "error", err)
		rendered = ex.Response
	}
	fmt.Fprintln(out, rendered)
	return ex.Response, nil
}
