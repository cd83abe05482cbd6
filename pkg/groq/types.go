package groq

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ImageURL references an image attached to a message
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "auto", "low" or "high"
}

// Message represents a single message in the conversation.
// Messages with images are sent as an array of content parts.
type Message struct {
	Role    Role
	Content string
	Images  []ImageURL
}

// SystemMessage builds a system message
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user message with optional images
func UserMessage(content string, images ...ImageURL) Message {
	return Message{Role: RoleUser, Content: content, Images: images}
}

// AssistantMessage builds an assistant message
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type wireMessage struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Content
	if len(m.Images) > 0 {
		parts := make([]contentPart, 0, len(m.Images)+1)
		if m.Content != "" {
			parts = append(parts, contentPart{Type: "text", Text: m.Content})
		}
		for i := range m.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &m.Images[i]})
		}
		content = parts
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: raw})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return err
	}
	*m = Message{Role: wm.Role}

	if len(wm.Content) == 0 || string(wm.Content) == "null" {
		return nil
	}
	if wm.Content[0] == '"' {
		return json.Unmarshal(wm.Content, &m.Content)
	}

	var parts []contentPart
	if err := json.Unmarshal(wm.Content, &parts); err != nil {
		return fmt.Errorf("message content must be a string or an array of parts: %w", err)
	}
	for _, part := range parts {
		switch part.Type {
		case "text":
			m.Content += part.Text
		case "image_url":
			if part.ImageURL != nil {
				m.Images = append(m.Images, *part.ImageURL)
			}
		}
	}
	return nil
}

// ResponseFormat specifies the format of the model's output
type ResponseFormat struct {
	Type string `json:"type"` // "text" or "json_object"
}

// ChatCompletionRequest represents an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	N                *int            `json:"n,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	User             string          `json:"user,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
}

// ChatCompletionResponse represents an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// FirstContent returns the content of the first choice
func (r *ChatCompletionResponse) FirstContent() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", newParsingError("no choices returned in response", nil)
	}
	return r.Choices[0].Message.Content, nil
}

// Choice represents a single completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChunkDelta is the incremental content of a streamed choice
type ChunkDelta struct {
	Role    Role   `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice represents a choice in a streaming response chunk
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is one server-sent event of a streamed completion
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	// Usage is only present on the final chunk, under the provider extension "x_groq".
	XGroq *struct {
		Usage *Usage `json:"usage,omitempty"`
	} `json:"x_groq,omitempty"`
}
