package groq

import (
	"fmt"
	"math"
	"strings"
)

// MaxStopSequences is the upper bound the API accepts for "stop"
const MaxStopSequences = 4

// Validate checks the request before any network call.
// Failures are *Error values of kind KindValidation naming the field.
func (r *ChatCompletionRequest) Validate() error {
	if r == nil {
		return newValidationError("request", "request is required")
	}
	if strings.TrimSpace(r.Model) == "" {
		return newValidationError("model", "model is required")
	}
	if len(r.Messages) == 0 {
		return newValidationError("messages", "messages must not be empty")
	}
	for i, msg := range r.Messages {
		if !msg.Role.Valid() {
			field := fmt.Sprintf("messages[%d].role", i)
			return newValidationError(field, fmt.Sprintf("%s must be one of system, user, assistant (got %q)", field, msg.Role))
		}
	}
	if r.Temperature != nil && !inRange(*r.Temperature, 0, 2) {
		return newValidationError("temperature", fmt.Sprintf("temperature must be between 0 and 2 (got %v)", *r.Temperature))
	}
	if r.TopP != nil && !inRange(*r.TopP, 0, 1) {
		return newValidationError("top_p", fmt.Sprintf("top_p must be between 0 and 1 (got %v)", *r.TopP))
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return newValidationError("max_tokens", fmt.Sprintf("max_tokens must be at least 1 (got %d)", *r.MaxTokens))
	}
	if r.FrequencyPenalty != nil && !inRange(*r.FrequencyPenalty, -2, 2) {
		return newValidationError("frequency_penalty", fmt.Sprintf("frequency_penalty must be between -2 and 2 (got %v)", *r.FrequencyPenalty))
	}
	if r.PresencePenalty != nil && !inRange(*r.PresencePenalty, -2, 2) {
		return newValidationError("presence_penalty", fmt.Sprintf("presence_penalty must be between -2 and 2 (got %v)", *r.PresencePenalty))
	}
	if r.N != nil && *r.N < 1 {
		return newValidationError("n", fmt.Sprintf("n must be at least 1 (got %d)", *r.N))
	}
	if len(r.Stop) > MaxStopSequences {
		return newValidationError("stop", fmt.Sprintf("stop must not exceed %d sequences (got %d)", MaxStopSequences, len(r.Stop)))
	}
	for i, s := range r.Stop {
		if s == "" {
			return newValidationError("stop", fmt.Sprintf("stop[%d] must not be empty", i))
		}
	}
	return nil
}

// inRange reports whether lo <= v <= hi. NaN is never in range.
func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// RequestOption sets a sampling parameter on a request built by the convenience methods
type RequestOption func(*ChatCompletionRequest)

// WithTemperature sets the sampling temperature, 0 to 2
func WithTemperature(t float64) RequestOption {
	return func(r *ChatCompletionRequest) { r.Temperature = Float64(t) }
}

// WithTopP sets nucleus sampling, 0 to 1
func WithTopP(p float64) RequestOption {
	return func(r *ChatCompletionRequest) { r.TopP = Float64(p) }
}

// WithMaxTokens caps the completion length
func WithMaxTokens(n int) RequestOption {
	return func(r *ChatCompletionRequest) { r.MaxTokens = Int(n) }
}

// WithStop sets up to MaxStopSequences stop sequences
func WithStop(stop ...string) RequestOption {
	return func(r *ChatCompletionRequest) { r.Stop = append([]string(nil), stop...) }
}

func WithFrequencyPenalty(p float64) RequestOption {
	return func(r *ChatCompletionRequest) { r.FrequencyPenalty = Float64(p) }
}

func WithPresencePenalty(p float64) RequestOption {
	return func(r *ChatCompletionRequest) { r.PresencePenalty = Float64(p) }
}

// WithN requests n completion choices
func WithN(n int) RequestOption {
	return func(r *ChatCompletionRequest) { r.N = Int(n) }
}

func WithSeed(seed int) RequestOption {
	return func(r *ChatCompletionRequest) { r.Seed = Int(seed) }
}

func WithUser(user string) RequestOption {
	return func(r *ChatCompletionRequest) { r.User = user }
}

// WithJSONMode asks the model for a JSON object response
func WithJSONMode() RequestOption {
	return func(r *ChatCompletionRequest) { r.ResponseFormat = &ResponseFormat{Type: "json_object"} }
}

// NewRequest builds a request from a model, messages and options
func NewRequest(model string, messages []Message, opts ...RequestOption) *ChatCompletionRequest {
	req := &ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}
