package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind is the category of a failed call.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindAPI            ErrorKind = "api"
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindParsing        ErrorKind = "parsing"
)

// Sentinels for errors.Is. Each matches any *Error of the same kind.
var (
	ErrValidation     = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrAuthentication = &Error{Kind: KindAuthentication, Message: "authentication failed"}
	ErrRateLimit      = &Error{Kind: KindRateLimit, Message: "rate limit exceeded"}
	ErrAPI            = &Error{Kind: KindAPI, Message: "api error"}
	ErrNetwork        = &Error{Kind: KindNetwork, Message: "network error"}
	ErrTimeout        = &Error{Kind: KindTimeout, Message: "request timed out"}
	ErrParsing        = &Error{Kind: KindParsing, Message: "failed to parse response"}

	// ErrClientClosed is wrapped by the network error returned from a closed client.
	ErrClientClosed = errors.New("client is closed")
)

// Error is the single failure type returned by the client.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Type       string
	Code       string
	// Field names the offending setting or request field for validation failures.
	Field string
	// RetryAfter is the server hint from a 429 response, nil when absent.
	RetryAfter *time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " [code=%s]", e.Code)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind so errors.Is(err, ErrRateLimit) works for any rate limit failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t == sentinelFor(e.Kind)
}

// Retryable reports whether the retry controller re-attempts this failure.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindNetwork
}

func sentinelFor(kind ErrorKind) *Error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindAuthentication:
		return ErrAuthentication
	case KindRateLimit:
		return ErrRateLimit
	case KindAPI:
		return ErrAPI
	case KindNetwork:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindParsing:
		return ErrParsing
	}
	return nil
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a failure the retry controller re-attempts.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

func newValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func newNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: cause}
}

func newParsingError(message string, cause error) *Error {
	return &Error{Kind: KindParsing, Message: message, Err: cause}
}

// errorResponse is the non-2xx body shape.
type errorResponse struct {
	Error *struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// mapHTTPError converts a non-2xx response into a typed failure.
func mapHTTPError(statusCode int, header http.Header, body []byte) *Error {
	switch statusCode {
	case http.StatusUnauthorized:
		msg := "invalid or missing API key"
		if parsed := parseErrorBody(body); parsed != nil && parsed.Message != "" {
			msg = parsed.Message
		}
		return &Error{Kind: KindAuthentication, StatusCode: statusCode, Message: msg}
	case http.StatusTooManyRequests:
		msg := "rate limit exceeded"
		e := &Error{Kind: KindRateLimit, StatusCode: statusCode, RetryAfter: parseRetryAfter(header.Get("Retry-After"), time.Now())}
		if parsed := parseErrorBody(body); parsed != nil && parsed.Message != "" {
			msg = parsed.Message
			e.Type = parsed.Type
			e.Code = parsed.Code
		}
		e.Message = msg
		return e
	}

	if parsed := parseErrorBody(body); parsed != nil {
		return &Error{
			Kind:       KindAPI,
			StatusCode: statusCode,
			Message:    parsed.Message,
			Type:       parsed.Type,
			Code:       parsed.Code,
		}
	}
	return &Error{Kind: KindAPI, StatusCode: statusCode, Message: string(body)}
}

type parsedErrorBody struct {
	Message string
	Type    string
	Code    string
}

func parseErrorBody(body []byte) *parsedErrorBody {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		return nil
	}
	return &parsedErrorBody{
		Message: resp.Error.Message,
		Type:    resp.Error.Type,
		Code:    rawCode(resp.Error.Code),
	}
}

// rawCode flattens a string, numeric or null "code" field.
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// parseRetryAfter accepts delay-seconds (integer or decimal) or an HTTP-date.
func parseRetryAfter(value string, now time.Time) *time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return nil
		}
		d := time.Duration(seconds * float64(time.Second))
		return &d
	}
	if when, err := http.ParseTime(value); err == nil {
		d := when.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// mapTransportError classifies an error from http.Client.Do or a body read.
func mapTransportError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request deadline exceeded", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return newNetworkError("request canceled", err)
	}
	return newNetworkError("request failed", err)
}
