package config

import "github.com/lamim/groqkit/pkg/groq"

// DefaultModel is used when neither the profile nor a flag names a model
const DefaultModel = "llama-3.3-70b-versatile"

// Default returns the built-in profile that loaded files are merged over.
// Pointer fields stay nil so that an explicit zero in a file survives the merge.
func Default() Config {
	return Config{
		Client: ClientConfig{
			BaseURL:   groq.DefaultBaseURL,
			TimeoutMs: int(groq.DefaultTimeout.Milliseconds()),
		},
		Defaults: DefaultsConfig{
			Model: DefaultModel,
		},
		Output: OutputConfig{
			Dir: "output",
		},
	}
}
