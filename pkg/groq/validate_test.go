package groq

import (
	"errors"
	"math"
	"testing"
)

func TestChatCompletionRequest_Validate(t *testing.T) {
	msgs := []Message{UserMessage("hi")}

	tests := []struct {
		name    string
		req     *ChatCompletionRequest
		field   string
		wantErr bool
	}{
		{name: "valid minimal", req: NewRequest("m", msgs)},
		{name: "valid bounds", req: NewRequest("m", msgs, WithTemperature(2), WithTopP(0), WithMaxTokens(1), WithFrequencyPenalty(-2), WithPresencePenalty(2))},
		{name: "nil request", req: nil, field: "request", wantErr: true},
		{name: "missing model", req: NewRequest(" ", msgs), field: "model", wantErr: true},
		{name: "no messages", req: NewRequest("m", []Message{}), field: "messages", wantErr: true},
		{name: "bad role", req: NewRequest("m", []Message{{Role: "tool", Content: "x"}}), field: "messages[0].role", wantErr: true},
		{name: "temperature", req: NewRequest("m", msgs, WithTemperature(2.01)), field: "temperature", wantErr: true},
		{name: "top_p", req: NewRequest("m", msgs, WithTopP(1.01)), field: "top_p", wantErr: true},
		{name: "max_tokens", req: NewRequest("m", msgs, WithMaxTokens(-3)), field: "max_tokens", wantErr: true},
		{name: "frequency_penalty", req: NewRequest("m", msgs, WithFrequencyPenalty(3)), field: "frequency_penalty", wantErr: true},
		{name: "presence_penalty", req: NewRequest("m", msgs, WithPresencePenalty(-2.5)), field: "presence_penalty", wantErr: true},
		{name: "temperature NaN", req: NewRequest("m", msgs, WithTemperature(math.NaN())), field: "temperature", wantErr: true},
		{name: "temperature +Inf", req: NewRequest("m", msgs, WithTemperature(math.Inf(1))), field: "temperature", wantErr: true},
		{name: "top_p NaN", req: NewRequest("m", msgs, WithTopP(math.NaN())), field: "top_p", wantErr: true},
		{name: "frequency_penalty NaN", req: NewRequest("m", msgs, WithFrequencyPenalty(math.NaN())), field: "frequency_penalty", wantErr: true},
		{name: "presence_penalty -Inf", req: NewRequest("m", msgs, WithPresencePenalty(math.Inf(-1))), field: "presence_penalty", wantErr: true},
		{name: "presence_penalty NaN", req: NewRequest("m", msgs, WithPresencePenalty(math.NaN())), field: "presence_penalty", wantErr: true},
		{name: "n", req: NewRequest("m", msgs, WithN(0)), field: "n", wantErr: true},
		{name: "too many stops", req: NewRequest("m", msgs, WithStop("a", "b", "c", "d", "e")), field: "stop", wantErr: true},
		{name: "empty stop", req: NewRequest("m", msgs, WithStop("a", "")), field: "stop", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var e *Error
			if !errors.As(err, &e) || e.Kind != KindValidation {
				t.Fatalf("Expected validation *Error, got %v", err)
			}
			if e.Field != tt.field {
				t.Errorf("Field = %q, want %q", e.Field, tt.field)
			}
		})
	}
}
