package main

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/lamim/groqkit/internal/util"
	"github.com/lamim/groqkit/internal/writer"
	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
		Long:  "List session directories in the output folder and show their transcripts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadProfile(cmd, opts)
			if err != nil {
				return err
			}

			sessions, err := writer.ListSessions(cfg.Output.Dir)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No sessions found in %s\n", cfg.Output.Dir)
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tEXCHANGES\tPATH")
			for _, s := range sessions {
				exchanges := "-"
				if s.HasTranscript {
					exchanges = fmt.Sprint(s.Exchanges)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, exchanges, s.Path)
			}
			return tw.Flush()
		},
	}

	var full bool
	showCmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Show the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadProfile(cmd, opts)
			if err != nil {
				return err
			}

			name := args[0]
			if err := writer.ValidateSessionPath(cfg.Output.Dir, name); err != nil {
				return err
			}

			exchanges, err := writer.ReadTranscript(filepath.Join(cfg.Output.Dir, name, "transcript.jsonl"))
			if err != nil {
				return fmt.Errorf("failed to read transcript: %w", err)
			}
			printTranscript(cmd.OutOrStdout(), exchanges, full)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&full, "full", false, "Print complete messages instead of truncating them")

	sessionsCmd.AddCommand(listCmd)
	sessionsCmd.AddCommand(showCmd)
	return sessionsCmd
}

func printTranscript(w io.Writer, exchanges []writer.Exchange, full bool) {
	clip := func(s string, n int) string {
		if full {
			return s
		}
		return util.TruncateString(s, n)
	}

	for i, ex := range exchanges {
		tokens := "-"
		if ex.Usage != nil {
			tokens = fmt.Sprint(ex.Usage.TotalTokens)
		}
		fmt.Fprintf(w, "[%d] %s  %s  %s  %s  tokens=%s  id=%s\n",
			i+1,
			ex.Timestamp.Local().Format(time.DateTime),
			ex.Command,
			ex.Model,
			(time.Duration(ex.DurationMs) * time.Millisecond).String(),
			tokens,
			ex.ID)

		for _, m := range ex.Messages {
			fmt.Fprintf(w, "  %s: %s\n", m.Role, clip(m.Content, 120))
			for _, img := range m.Images {
				fmt.Fprintf(w, "    image: %s\n", clip(img.URL, 60))
			}
		}
		if ex.Reasoning != "" {
			fmt.Fprintf(w, "  reasoning: %s\n", clip(ex.Reasoning, 120))
		}
		if ex.Error != "" {
			fmt.Fprintf(w, "  error (%s): %s\n", ex.ErrorKind, ex.Error)
		} else {
			fmt.Fprintf(w, "  assistant: %s\n", clip(ex.Response, 200))
		}
		fmt.Fprintln(w)
	}
}
