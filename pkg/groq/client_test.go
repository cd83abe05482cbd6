package groq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const successBody = `{
	"id": "chatcmpl-123",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "llama-3.3-70b-versatile",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Test response"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

// recordingTimer fires immediately and remembers every requested delay.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (t *recordingTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time { return t.c }

func (t *recordingTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

func newTestClient(t *testing.T, baseURL string, retries int) (*Client, *recordingTimer) {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		RetryAttempts: Int(retries),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	timer := newRecordingTimer()
	client.retry.newTimer = func() backoff.Timer { return timer }
	t.Cleanup(func() { _ = client.Close() })
	return client, timer
}

func userMessages() []Message {
	return []Message{UserMessage("Test message")}
}

func TestCreateChatCompletion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/openai/v1/chat/completions" {
			t.Errorf("Expected path /openai/v1/chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header 'Bearer test-key', got '%s'", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type 'application/json', got '%s'", r.Header.Get("Content-Type"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body["model"] != "llama-3.3-70b-versatile" {
			t.Errorf("Expected model in body, got %v", body["model"])
		}
		if body["temperature"] != 0.5 {
			t.Errorf("Expected temperature 0.5, got %v", body["temperature"])
		}
		if _, ok := body["stream"]; ok {
			t.Errorf("Expected stream to be omitted, got %v", body["stream"])
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL+"/openai/v1/", 3)

	resp, err := client.Complete(context.Background(), "llama-3.3-70b-versatile", userMessages(), WithTemperature(0.5))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.ID != "chatcmpl-123" {
		t.Errorf("Expected id 'chatcmpl-123', got '%s'", resp.ID)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("Expected 1 choice, got %d", len(resp.Choices))
	}
	if resp.Choices[0].Message.Content != "Test response" {
		t.Errorf("Expected content 'Test response', got '%s'", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("Expected finish_reason 'stop', got '%s'", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestCreateChatCompletion_ValidationFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, 3)

	tests := []struct {
		name  string
		req   *ChatCompletionRequest
		field string
	}{
		{"empty messages", NewRequest("m", nil), "messages"},
		{"temperature too high", NewRequest("m", userMessages(), WithTemperature(2.1)), "temperature"},
		{"temperature negative", NewRequest("m", userMessages(), WithTemperature(-0.1)), "temperature"},
		{"top_p too high", NewRequest("m", userMessages(), WithTopP(1.5)), "top_p"},
		{"top_p negative", NewRequest("m", userMessages(), WithTopP(-1)), "top_p"},
		{"max_tokens zero", NewRequest("m", userMessages(), WithMaxTokens(0)), "max_tokens"},
		{"temperature NaN", NewRequest("m", userMessages(), WithTemperature(math.NaN())), "temperature"},
		{"presence_penalty NaN", NewRequest("m", userMessages(), WithPresencePenalty(math.NaN())), "presence_penalty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CreateChatCompletion(context.Background(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Field != tt.field {
				t.Errorf("Expected field %q, got %+v", tt.field, e)
			}
		})
	}

	if calls.Load() != 0 {
		t.Errorf("Expected no network calls, got %d", calls.Load())
	}
}

func TestCreateChatCompletion_AuthenticationNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid API Key", "type": "invalid_request_error", "code": "invalid_api_key"}}`))
	}))
	defer server.Close()

	client, timer := newTestClient(t, server.URL, 3)

	_, err := client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("Expected authentication error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly 1 call, got %d", calls.Load())
	}
	if len(timer.Delays()) != 0 {
		t.Errorf("Expected no backoff, got %v", timer.Delays())
	}
}

func TestCreateChatCompletion_RateLimitRetryAfter(t *testing.T) {
	const failures = 2
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.Header().Set("retry-after", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "tokens", "code": "rate_limit_exceeded"}}`))
			return
		}
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	client, timer := newTestClient(t, server.URL, 3)

	resp, err := client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if resp.Choices[0].Message.Content != "Test response" {
		t.Errorf("Expected 'Test response', got '%s'", resp.Choices[0].Message.Content)
	}
	if calls.Load() != failures+1 {
		t.Errorf("Expected %d attempts, got %d", failures+1, calls.Load())
	}

	delays := timer.Delays()
	if len(delays) != failures {
		t.Fatalf("Expected %d backoff sleeps, got %v", failures, delays)
	}
	if last := delays[len(delays)-1]; last < 5000*time.Millisecond {
		t.Errorf("Expected wait before final attempt >= 5s, got %s", last)
	}
}

func TestCreateChatCompletion_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, timer := newTestClient(t, server.URL, 3)

	_, err := client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("Expected rate limit error, got %v", err)
	}
	var e *Error
	if errors.As(err, &e) && e.RetryAfter != nil {
		t.Errorf("Expected no retry-after hint, got %s", *e.RetryAfter)
	}
	if calls.Load() != 4 {
		t.Errorf("Expected 4 total attempts, got %d", calls.Load())
	}

	// Linear schedule without a hint: 1s, 2s, 3s
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	got := timer.Delays()
	if len(got) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCreateChatCompletion_APIErrorNotRetried(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantCode    string
	}{
		{
			name:        "structured body",
			status:      http.StatusBadRequest,
			body:        `{"error": {"message": "model not found", "type": "invalid_request_error", "code": "model_not_found"}}`,
			wantMessage: "model not found",
			wantCode:    "model_not_found",
		},
		{
			name:        "raw body",
			status:      http.StatusInternalServerError,
			body:        "upstream exploded",
			wantMessage: "upstream exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := newTestClient(t, server.URL, 3)

			_, err := client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
			var e *Error
			if !errors.As(err, &e) || e.Kind != KindAPI {
				t.Fatalf("Expected api error, got %v", err)
			}
			if e.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, e.StatusCode)
			}
			if e.Message != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, e.Message)
			}
			if e.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %q", tt.wantCode, e.Code)
			}
			if calls.Load() != 1 {
				t.Errorf("Expected 1 call, got %d", calls.Load())
			}
		})
	}
}

func TestCreateChatCompletion_NetworkErrorRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close() // connection refused from here on

	client, timer := newTestClient(t, baseURL, 2)

	_, err := client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected network error, got %v", err)
	}
	if len(timer.Delays()) != 2 {
		t.Errorf("Expected 2 retries, got %v", timer.Delays())
	}
}

func TestCreateChatCompletion_TimeoutNotRetried(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(Options{APIKey: "k", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	_, err = client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected timeout error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestCreateChatCompletion_CancelStopsBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "k", BaseURL: server.URL, RetryAttempts: Int(3)})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.CreateChatCompletion(ctx, NewRequest("m", userMessages()))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("Expected backoff to be interrupted, took %s", elapsed)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", calls.Load())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected error to wrap context.DeadlineExceeded, got %v", err)
	}
}

func TestCreateChatCompletion_ParsingFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "x", "choices": "not-an-array"`))
	}))
	defer server.Close()

	client, timer := newTestClient(t, server.URL, 3)

	_, err := client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
	if !errors.Is(err, ErrParsing) {
		t.Fatalf("Expected parsing error, got %v", err)
	}
	if len(timer.Delays()) != 0 {
		t.Errorf("Expected parsing errors not to be retried, got %v", timer.Delays())
	}
}

func TestGenerateText(t *testing.T) {
	received := make(chan []Message, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		received <- req.Messages
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, 0)

	text, err := client.GenerateText(context.Background(), "m", "Hello", WithMaxTokens(16))
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if text != "Test response" {
		t.Errorf("Expected 'Test response', got %q", text)
	}
	gotMessages := <-received
	if len(gotMessages) != 1 || gotMessages[0].Role != RoleUser || gotMessages[0].Content != "Hello" {
		t.Errorf("Expected a single user message, got %+v", gotMessages)
	}
}

func TestGenerateText_MissingChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "usage": {}}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, 3)

	_, err := client.GenerateText(context.Background(), "m", "Hello")
	if !errors.Is(err, ErrParsing) {
		t.Fatalf("Expected parsing error, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient(Options{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	_, err = client.CreateChatCompletion(context.Background(), NewRequest("m", userMessages()))
	if !errors.Is(err, ErrClientClosed) {
		t.Errorf("Expected ErrClientClosed after Close, got %v", err)
	}
}

func TestClose_CallerOwnedHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	httpClient := server.Client()
	client, err := NewClient(Options{APIKey: "k", BaseURL: server.URL, HTTPClient: httpClient})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.transport != nil {
		t.Error("Expected no client-owned transport when HTTPClient is supplied")
	}
	if _, err := client.GenerateText(context.Background(), "m", "hi"); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	_ = client.Close()
	_ = client.Close()
}

type countingObserver struct {
	attempts atomic.Int32
	retries  atomic.Int32
	waits    atomic.Int32
}

func (o *countingObserver) ObserveAttempt(string, time.Duration, ErrorKind) { o.attempts.Add(1) }
func (o *countingObserver) ObserveRetry(string, ErrorKind, time.Duration)   { o.retries.Add(1) }
func (o *countingObserver) ObserveRateLimiterWait(string, time.Duration)    { o.waits.Add(1) }

func TestCreateChatCompletion_Observer(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	obs := &countingObserver{}
	client, err := NewClient(Options{
		APIKey:            "k",
		BaseURL:           server.URL,
		Observer:          obs,
		RequestsPerMinute: 6000,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	if _, err := client.GenerateText(context.Background(), "m", "hi"); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if obs.attempts.Load() != 2 {
		t.Errorf("Expected 2 observed attempts, got %d", obs.attempts.Load())
	}
	if obs.retries.Load() != 1 {
		t.Errorf("Expected 1 observed retry, got %d", obs.retries.Load())
	}
	if obs.waits.Load() != 2 {
		t.Errorf("Expected 2 limiter waits, got %d", obs.waits.Load())
	}
}

func TestCreateChatCompletion_NaNRejectedBeforeAttempt(t *testing.T) {
	obs := &countingObserver{}
	client, err := NewClient(Options{APIKey: "k", BaseURL: "http://127.0.0.1:1", Observer: obs})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	_, err = client.Complete(context.Background(), "m", userMessages(), WithTemperature(math.NaN()))
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindValidation || e.Field != "temperature" {
		t.Fatalf("Expected temperature validation error, got %v", err)
	}
	if obs.attempts.Load() != 0 {
		t.Errorf("Expected no observed attempts, got %d", obs.attempts.Load())
	}
}
