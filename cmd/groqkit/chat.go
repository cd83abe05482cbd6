package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lamim/groqkit/internal/util"
	"github.com/lamim/groqkit/internal/writer"
	"github.com/lamim/groqkit/pkg/groq"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		flags      requestFlags
		stream     bool
		resume     string
		maxHistory int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat that keeps conversation history",
		Long: `Read messages from stdin, one per line, and send each with the conversation
so far. Type /reset to clear the history, /history to show its size and /exit
to quit. --resume continues the last chat recorded in an existing session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, "chat", resume)
			if err != nil {
				return err
			}
			defer a.Close()

			c := &chatSession{
				app:        a,
				settings:   flags.resolve(cmd, a.cfg),
				stream:     stream,
				maxHistory: maxHistory,
				out:        cmd.OutOrStdout(),
				status:     cmd.ErrOrStderr(),
			}
			if resume != "" {
				if err := c.restore(); err != nil {
					return err
				}
			}
			return c.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream replies as they are generated")
	cmd.Flags().StringVar(&resume, "resume", "", "Continue the chat recorded in this session (e.g. session_2025-10-30T14-30-00)")
	cmd.Flags().IntVar(&maxHistory, "max-history", 0, "Send at most this many previous messages (0 = all)")

	return cmd
}

type chatSession struct {
	app        *app
	settings   requestSettings
	stream     bool
	maxHistory int
	history    []groq.Message // user and assistant turns, without the system prompt
	out        io.Writer
	status     io.Writer
}

func (c *chatSession) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintf(c.status, "Chatting with %s. /reset clears history, /exit quits.\n", c.settings.model)
	for {
		fmt.Fprint(c.status, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			c.history = nil
			fmt.Fprintln(c.status, "History cleared.")
			continue
		case "/history":
			fmt.Fprintf(c.status, "%d messages in history.\n", len(c.history))
			continue
		}

		if err := c.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(c.status, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

// turn sends input with the trimmed history. A failed turn leaves the history unchanged.
func (c *chatSession) turn(ctx context.Context, input string) error {
	c.history = append(c.history, groq.UserMessage(input))
	messages := c.settings.conversation(trimHistory(c.history, c.maxHistory)...)

	var (
		reply string
		err   error
	)
	if c.stream {
		reply, err = streamExchange(ctx, c.app, "chat", c.settings, messages, c.out)
	} else {
		reply, err = completeExchange(ctx, c.app, "chat", c.settings, messages, c.out, c.status)
	}
	if err != nil {
		c.history = c.history[:len(c.history)-1]
		return err
	}

	if c.settings.stripThink {
		reply = util.StripThinkTags(reply)
	}
	c.history = append(c.history, groq.AssistantMessage(reply))
	return nil
}

// restore rebuilds the history from the last successful chat exchange in the session transcript
func (c *chatSession) restore() error {
	exchanges, err := writer.ReadTranscript(c.app.session.GetTranscriptPath())
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	last, _, found := lo.FindLastIndexOf(exchanges, func(ex writer.Exchange) bool {
		return ex.Command == "chat" && ex.Error == ""
	})
	if !found {
		return fmt.Errorf("no chat exchanges to resume in %s", c.app.session.GetSessionDir())
	}

	c.history = lo.Filter(last.Messages, func(m groq.Message, _ int) bool {
		return m.Role != groq.RoleSystem
	})
	reply := last.Response
	if c.settings.stripThink {
		reply = util.StripThinkTags(reply)
	}
	c.history = append(c.history, groq.AssistantMessage(reply))

	fmt.Fprintf(c.status, "Restored %d messages from %s.\n", len(c.history), c.app.session.GetSessionDir())
	return nil
}

// trimHistory keeps the last max messages, starting at a user turn. max <= 0 keeps everything.
func trimHistory(history []groq.Message, max int) []groq.Message {
	if max <= 0 || len(history) <= max {
		return history
	}
	recent := lo.Subset(history, -max, uint(max))
	return lo.DropWhile(recent, func(m groq.Message) bool {
		return m.Role != groq.RoleUser
	})
}
