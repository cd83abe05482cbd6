package groq

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const maxStreamLineSize = 1024 * 1024

// StreamSummary aggregates a finished stream.
type StreamSummary struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Chunks       int
	// Usage is nil unless the server attached it to the final chunk.
	Usage *Usage
}

// ChunkHandler is invoked once per delta chunk, in arrival order.
// Returning an error aborts the stream and that error is returned unchanged.
type ChunkHandler func(chunk ChatCompletionChunk) error

// StreamChatCompletion sends req with streaming enabled and calls fn for
// each chunk as it arrives. A partially consumed stream cannot be replayed,
// so this path is never retried. Non-2xx handshakes are mapped by status code
// only; once chunks flow, read errors are network or timeout failures and
// undecodable events are parsing failures.
//
// The configured timeout bounds the limiter wait and then each silence on the
// connection: the handshake, and every gap between received lines. A stream
// that keeps producing events may run longer than the timeout; cancel ctx to
// bound its total duration.
func (c *Client) StreamChatCompletion(ctx context.Context, req *ChatCompletionRequest, fn ChunkHandler) (*StreamSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, newValidationError("handler", "chunk handler is required")
	}
	if c.closed.Load() {
		return nil, newNetworkError("cannot open stream", ErrClientClosed)
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, c.cfg.timeout)
	err := c.waitRateLimiter(waitCtx, req.Model)
	cancelWait()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	idle := newIdleTimer(c.cfg.timeout, cancel)
	defer idle.stop()

	wire := *req
	wire.Stream = true

	start := time.Now()
	summary, err := c.stream(ctx, &wire, fn, idle)
	if err != nil && idle.expired() {
		err = &Error{Kind: KindTimeout, Message: "stream idle timeout exceeded", Err: context.DeadlineExceeded}
	}
	c.observer.ObserveAttempt(req.Model, time.Since(start), KindOf(err))
	if err != nil {
		c.logger.Warn("Streaming chat completion failed",
			"model", req.Model,
			"kind", KindOf(err),
			"error", err)
		return summary, err
	}

	c.logger.Debug("Streaming chat completion finished",
		"model", summary.Model,
		"chunks", summary.Chunks,
		"content_length", len(summary.Content),
		"finish_reason", summary.FinishReason,
		"duration", time.Since(start))
	return summary, nil
}

func (c *Client) stream(ctx context.Context, req *ChatCompletionRequest, fn ChunkHandler, idle *idleTimer) (*StreamSummary, error) {
	httpResp, err := c.send(ctx, req, contentTypeEventStream)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close stream body", "error", err)
		}
	}()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64*1024))
		return nil, mapStreamHandshakeError(httpResp.StatusCode, httpResp.Header, body)
	}

	summary := &StreamSummary{}
	var content strings.Builder

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)
	for scanner.Scan() {
		idle.reset()
		line := strings.TrimSpace(scanner.Text())

		// SSE format: "data: {...}"; comments and other fields are ignored
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		if parsed := parseErrorBody([]byte(data)); parsed != nil {
			return summary, &Error{Kind: KindAPI, StatusCode: httpResp.StatusCode, Message: parsed.Message, Type: parsed.Type, Code: parsed.Code}
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return summary, newParsingError("failed to parse stream chunk", err)
		}

		if summary.ID == "" {
			summary.ID = chunk.ID
			summary.Model = chunk.Model
		}
		summary.Chunks++
		if len(chunk.Choices) > 0 {
			content.WriteString(chunk.Choices[0].Delta.Content)
			if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
				summary.FinishReason = *fr
			}
		}
		if chunk.XGroq != nil && chunk.XGroq.Usage != nil {
			usage := *chunk.XGroq.Usage
			summary.Usage = &usage
		}
		summary.Content = content.String()

		if err := fn(chunk); err != nil {
			return summary, err
		}
	}

	if err := scanner.Err(); err != nil {
		return summary, mapTransportError(err)
	}
	return summary, nil
}

// idleTimer cancels a stream once no data has arrived for d.
type idleTimer struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleTimer(d time.Duration, cancel context.CancelFunc) *idleTimer {
	t := &idleTimer{d: d}
	t.timer = time.AfterFunc(d, func() {
		t.fired.Store(true)
		cancel()
	})
	return t
}

func (t *idleTimer) reset() {
	if !t.fired.Load() {
		t.timer.Reset(t.d)
	}
}

func (t *idleTimer) stop() { t.timer.Stop() }

func (t *idleTimer) expired() bool { return t.fired.Load() }

// mapStreamHandshakeError maps a failed stream handshake by status code alone.
func mapStreamHandshakeError(statusCode int, header http.Header, body []byte) *Error {
	e := mapHTTPError(statusCode, header, nil)
	if e.Kind == KindAPI {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(statusCode)
		}
	}
	return e
}
