package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lamim/groqkit/internal/util"
	"github.com/lamim/groqkit/internal/writer"
	"github.com/lamim/groqkit/pkg/groq"
	"github.com/spf13/cobra"
)

func newStreamCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  requestFlags
		images []string
	)

	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: "Send a prompt and print the reply as it is generated",
		Long: `Send one prompt with streaming enabled and print each delta as it arrives.

Streaming requests are never retried; a failed stream reports the error after
whatever text was already printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := resolvePrompt(cmd.InOrStdin(), args, "", nil)
			if err != nil {
				return err
			}

			a, err := newApp(cmd, opts, "stream", "")
			if err != nil {
				return err
			}
			defer a.Close()

			s := flags.resolve(cmd, a.cfg)
			messages := s.conversation(groq.UserMessage(prompt, imageURLs(images)...))
			_, err = streamExchange(cmd.Context(), a, "stream", s, messages, cmd.OutOrStdout())
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringArrayVar(&images, "image", nil, "Image URL or data URL to attach (repeatable)")

	return cmd
}

// streamExchange streams one completion of messages to out, records it and
// returns the full (unfiltered) reply.
func streamExchange(ctx context.Context, a *app, command string, s requestSettings, messages []groq.Message, out io.Writer) (string, error) {
	req := groq.NewRequest(s.model, messages, s.options...)
	ex := writer.Exchange{Command: command, Model: s.model, Messages: messages}

	var filter util.ThinkFilter
	var full strings.Builder
	start := time.Now()
	summary, err := a.client.StreamChatCompletion(ctx, req, func(chunk groq.ChatCompletionChunk) error {
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta.Content
		full.WriteString(delta)
		if s.stripThink {
			delta = filter.Write(delta)
		}
		_, werr := io.WriteString(out, delta)
		return werr
	})
	if s.stripThink {
		_, _ = io.WriteString(out, filter.Flush())
	}
	if full.Len() > 0 {
		fmt.Fprintln(out)
	}

	ex.DurationMs = time.Since(start).Milliseconds()
	ex.Response = full.String()
	if summary != nil {
		ex.FinishReason = summary.FinishReason
		ex.Usage = summary.Usage
		a.metrics.AddStreamChunks(s.model, summary.Chunks)
	}
	s.splitReasoning(&ex)
	a.record(ex, err)
	if err != nil {
		return ex.Response, describeError(err)
	}

	a.logger.Debug("Stream complete",
		"model", s.model,
		"chunks", summary.Chunks,
		"finish_reason", summary.FinishReason,
		"duration_ms", ex.DurationMs)
	return ex.Response, nil
}
