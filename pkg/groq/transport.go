package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeEventStream = "text/event-stream"
	chatCompletionsPath    = "/chat/completions"
)

// send issues one POST to the chat completions endpoint. The caller owns the response body.
func (c *Client) send(ctx context.Context, req *ChatCompletionRequest, accept string) (*http.Response, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := json.NewEncoder(buf).Encode(req); err != nil {
		return nil, &Error{Kind: KindValidation, Field: "request", Message: "failed to marshal request", Err: err}
	}

	endpoint := c.cfg.baseURL + chatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, newNetworkError("failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", c.cfg.userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.apiKey)

	c.logger.Debug("API request", "endpoint", endpoint, "model", req.Model, "stream", req.Stream, "bytes", buf.Len())

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	return httpResp, nil
}

// doRequest performs exactly one round trip and maps its outcome.
// The configured timeout covers connect, send and the full body read.
func (c *Client) doRequest(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.roundTrip(ctx, req)
	c.observer.ObserveAttempt(req.Model, time.Since(start), KindOf(err))
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	httpResp, err := c.send(ctx, req, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, mapTransportError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := mapHTTPError(httpResp.StatusCode, httpResp.Header, respBody)
		c.logger.Debug("API request failed",
			"status", httpResp.StatusCode,
			"kind", apiErr.Kind,
			"model", req.Model)
		return nil, apiErr
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, newParsingError(fmt.Sprintf("failed to parse response (status %d)", httpResp.StatusCode), err)
	}
	return &resp, nil
}
