package batch

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lamim/groqkit/pkg/groq"
)

const (
	// CheckpointFilename is the checkpoint file inside a session directory
	CheckpointFilename = "checkpoint.json"

	// DefaultCheckpointInterval saves the checkpoint every N completed jobs
	DefaultCheckpointInterval = 10
)

// checkpointState is the on-disk checkpoint
type checkpointState struct {
	BatchID         string       `json:"batch_id"`
	CreatedAt       time.Time    `json:"created_at"`
	LastSavedAt     time.Time    `json:"last_saved_at"`
	InputHash       string       `json:"input_hash"`
	CompletedJobIDs map[int]bool `json:"completed_job_ids"`
	Stats           Stats        `json:"stats"`
}

// Checkpoint tracks completed jobs of a batch so an interrupted run can resume
type Checkpoint struct {
	path     string
	logger   *slog.Logger
	interval int

	mu        sync.Mutex
	state     checkpointState
	sinceSave int
}

// OpenCheckpoint loads the checkpoint in sessionDir, or starts a new one when
// none exists. A checkpoint written for different input is rejected.
func OpenCheckpoint(sessionDir, inputHash string, interval int, logger *slog.Logger) (*Checkpoint, error) {
	if interval < 1 {
		interval = DefaultCheckpointInterval
	}
	c := &Checkpoint{
		path:     filepath.Join(sessionDir, CheckpointFilename),
		logger:   logger,
		interval: interval,
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.state = checkpointState{
			BatchID:         uuid.NewString(),
			CreatedAt:       time.Now().UTC(),
			InputHash:       inputHash,
			CompletedJobIDs: make(map[int]bool),
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	if err := json.Unmarshal(data, &c.state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if c.state.InputHash != inputHash {
		return nil, fmt.Errorf("checkpoint mismatch: %s was written for different prompts, model or sampling options (hash: %s vs %s)",
			c.path, c.state.InputHash, inputHash)
	}
	if c.state.CompletedJobIDs == nil {
		c.state.CompletedJobIDs = make(map[int]bool)
	}

	logger.Info("Checkpoint loaded",
		"batch_id", c.state.BatchID,
		"completed_jobs", len(c.state.CompletedJobIDs))
	return c, nil
}

// IsComplete reports whether job id finished in an earlier or the current run
func (c *Checkpoint) IsComplete(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CompletedJobIDs[id]
}

// Completed returns the number of completed jobs
func (c *Checkpoint) Completed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state.CompletedJobIDs)
}

// MarkJobComplete records job id and saves every interval completions
func (c *Checkpoint) MarkJobComplete(id int, stats Stats) error {
	c.mu.Lock()
	c.state.CompletedJobIDs[id] = true
	c.state.Stats = stats
	c.sinceSave++
	shouldSave := c.sinceSave >= c.interval
	c.mu.Unlock()

	if shouldSave {
		return c.Save(stats)
	}
	return nil
}

// Save writes the checkpoint atomically (temp file, then rename)
func (c *Checkpoint) Save(stats Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Stats = stats
	c.state.LastSavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(c.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, c.path); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	c.sinceSave = 0
	c.logger.Debug("Checkpoint saved", "path", c.path, "completed_jobs", len(c.state.CompletedJobIDs))
	return nil
}

// HashJobs fingerprints the inputs that decide what a job sends: model,
// system prompt, sampling options and the prompts themselves
func HashJobs(opts Options, jobs []Job) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", opts.System)
	// Messages stay nil so only model and sampling parameters are encoded
	params, _ := json.Marshal(groq.NewRequest(opts.Model, nil, opts.RequestOptions...))
	h.Write(params)
	for _, job := range jobs {
		fmt.Fprintf(h, "\x00%d\x00%s", job.ID, job.Prompt)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}
