package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lamim/groqkit/pkg/groq"
)

// Exchange is one request/response pair recorded in a transcript
type Exchange struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Command      string         `json:"command"`
	JobID        *int           `json:"job_id,omitempty"` // batch prompt index
	Model        string         `json:"model"`
	Messages     []groq.Message `json:"messages"`
	Response     string         `json:"response,omitempty"`
	Reasoning    string         `json:"reasoning,omitempty"` // think blocks split off the response
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        *groq.Usage    `json:"usage,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	ErrorKind    groq.ErrorKind `json:"error_kind,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// SetError records err and its failure kind on the exchange
func (e *Exchange) SetError(err error) {
	if err == nil {
		return
	}
	e.Error = err.Error()
	e.ErrorKind = groq.KindOf(err)
}

// TranscriptWriter appends exchanges to a session transcript, one JSON object per line
type TranscriptWriter struct {
	file   *os.File
	mu     sync.Mutex
	logger *slog.Logger
	count  int
}

// NewTranscriptWriter opens the session transcript for appending
func NewTranscriptWriter(sessionMgr *SessionManager, logger *slog.Logger) (*TranscriptWriter, error) {
	path := sessionMgr.GetTranscriptPath()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}

	logger.Debug("Opened transcript file", "path", path)

	return &TranscriptWriter{
		file:   file,
		logger: logger,
	}, nil
}

// WriteExchange appends an exchange, assigning an ID and timestamp when missing.
// It returns the exchange ID.
func (tw *TranscriptWriter) WriteExchange(ex Exchange) (string, error) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ex)
	if err != nil {
		return "", fmt.Errorf("failed to marshal exchange: %w", err)
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, err := tw.file.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("failed to write exchange: %w", err)
	}
	tw.count++

	return ex.ID, nil
}

// Count returns the number of exchanges written by this writer
func (tw *TranscriptWriter) Count() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.count
}

// Close syncs and closes the transcript file
func (tw *TranscriptWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.file.Sync(); err != nil {
		tw.logger.Warn("Failed to sync transcript file", "error", err)
	}

	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close transcript file: %w", err)
	}

	tw.logger.Debug("Closed transcript file", "exchanges", tw.count)
	return nil
}

// ReadTranscript loads every exchange from a transcript file
func ReadTranscript(path string) ([]Exchange, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var exchanges []Exchange
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ex Exchange
		if err := json.Unmarshal(scanner.Bytes(), &ex); err != nil {
			return nil, fmt.Errorf("%s:%d: failed to parse exchange: %w", path, lineNo, err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	return exchanges, nil
}
