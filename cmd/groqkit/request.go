package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lamim/groqkit/internal/config"
	"github.com/lamim/groqkit/internal/util"
	"github.com/lamim/groqkit/internal/writer"
	"github.com/lamim/groqkit/pkg/groq"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// requestFlags are the per-request flags shared by generate, chat and stream.
// Flags left unset fall back to the profile's [defaults].
type requestFlags struct {
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	stop        []string
	seed        int
	system      string
	jsonMode    bool
	stripThink  bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.model, "model", "m", "", "Model to use (default from profile)")
	fl.Float64VarP(&f.temperature, "temperature", "t", 0, "Sampling temperature (0-2)")
	fl.Float64Var(&f.topP, "top-p", 0, "Nucleus sampling probability (0-1)")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	fl.StringSliceVar(&f.stop, "stop", nil, "Stop sequence (repeatable, at most 4)")
	fl.IntVar(&f.seed, "seed", 0, "Sampling seed")
	fl.StringVarP(&f.system, "system", "s", "", "System prompt")
	fl.BoolVar(&f.jsonMode, "json", false, "Request a JSON object and pretty-print it")
	fl.BoolVar(&f.stripThink, "strip-think", false, "Remove <think> blocks from the printed reply")
}

// requestSettings is the outcome of merging flags over the profile
type requestSettings struct {
	model      string
	system     string
	options    []groq.RequestOption
	jsonMode   bool
	stripThink bool
}

func (f *requestFlags) resolve(cmd *cobra.Command, cfg *config.Config) requestSettings {
	s := requestSettings{
		model:      cfg.Defaults.Model,
		system:     cfg.Defaults.SystemPrompt,
		options:    cfg.RequestOptions(),
		jsonMode:   cfg.Defaults.JSONMode,
		stripThink: cfg.Defaults.StripThink,
	}

	// Options apply in order, so flag values override profile values
	changed := cmd.Flags().Changed
	if changed("model") {
		s.model = f.model
	}
	if changed("system") {
		s.system = f.system
	}
	if changed("temperature") {
		s.options = append(s.options, groq.WithTemperature(f.temperature))
	}
	if changed("top-p") {
		s.options = append(s.options, groq.WithTopP(f.topP))
	}
	if changed("max-tokens") {
		s.options = append(s.options, groq.WithMaxTokens(f.maxTokens))
	}
	if changed("stop") {
		s.options = append(s.options, groq.WithStop(lo.Compact(f.stop)...))
	}
	if changed("seed") {
		s.options = append(s.options, groq.WithSeed(f.seed))
	}
	if changed("json") {
		s.jsonMode = f.jsonMode
		if f.jsonMode {
			s.options = append(s.options, groq.WithJSONMode())
		} else {
			s.options = append(s.options, func(r *groq.ChatCompletionRequest) { r.ResponseFormat = nil })
		}
	}
	if changed("strip-think") {
		s.stripThink = f.stripThink
	}
	return s
}

// conversation returns the system prompt (when set) followed by messages
func (s requestSettings) conversation(messages ...groq.Message) []groq.Message {
	if strings.TrimSpace(s.system) == "" {
		return messages
	}
	return append([]groq.Message{groq.SystemMessage(s.system)}, messages...)
}

// render applies think stripping and JSON formatting to a complete reply
func (s requestSettings) render(content string) (string, error) {
	if s.stripThink {
		content = util.StripThinkTags(content)
	}
	if s.jsonMode {
		return util.FormatJSON(content)
	}
	return content, nil
}

// splitReasoning moves think blocks out of ex.Response into ex.Reasoning when stripping is on
func (s requestSettings) splitReasoning(ex *writer.Exchange) {
	if !s.stripThink || !util.ContainsThinkTags(ex.Response) {
		return
	}
	ex.Reasoning, ex.Response = util.SplitThinkAndAnswer(ex.Response)
}

// resolvePrompt builds the prompt from a template file, from "-" (stdin) or from args
func resolvePrompt(stdin io.Reader, args []string, templatePath string, vars []string) (string, error) {
	if templatePath != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("--template and a prompt argument are mutually exclusive")
		}
		tmpl, err := os.ReadFile(templatePath)
		if err != nil {
			return "", fmt.Errorf("failed to read template: %w", err)
		}
		data, err := util.ParseVars(vars)
		if err != nil {
			return "", err
		}
		return util.RenderTemplate(string(tmpl), data)
	}
	if len(vars) > 0 {
		return "", fmt.Errorf("--var requires --template")
	}

	prompt := strings.Join(args, " ")
	if prompt == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("a prompt is required (pass it as an argument, '-' for stdin, or --template)")
	}
	return prompt, nil
}

func imageURLs(urls []string) []groq.ImageURL {
	return lo.Map(lo.Compact(urls), func(u string, _ int) groq.ImageURL {
		return groq.ImageURL{URL: u}
	})
}
