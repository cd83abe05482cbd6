package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// sessionTimeFormat names session directories: session_2025-10-30T14-30-00
const sessionTimeFormat = "2006-01-02T15-04-05"

// SessionManager manages session directories and files
type SessionManager struct {
	sessionDir string
	logger     *slog.Logger
}

// NewSessionManager creates a timestamped session under outputDir, or reopens
// resumeFromSession when it is non-empty.
func NewSessionManager(logger *slog.Logger, outputDir, resumeFromSession string) (*SessionManager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var sessionDir string
	if resumeFromSession != "" {
		if err := ValidateSessionPath(outputDir, resumeFromSession); err != nil {
			return nil, err
		}
		sessionDir = filepath.Join(outputDir, resumeFromSession)
		if _, err := os.Stat(sessionDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("session directory not found: %s", sessionDir)
		}
		logger.Info("Resuming from existing session", "path", sessionDir)
	} else {
		sessionDir = filepath.Join(outputDir, "session_"+time.Now().Format(sessionTimeFormat))

		if err := os.MkdirAll(sessionDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}

		logger.Info("Created new session directory", "path", sessionDir)
	}

	return &SessionManager{
		sessionDir: sessionDir,
		logger:     logger,
	}, nil
}

// GetSessionDir returns the session directory path
func (sm *SessionManager) GetSessionDir() string {
	return sm.sessionDir
}

// GetTranscriptPath returns the full path to the transcript file
func (sm *SessionManager) GetTranscriptPath() string {
	return filepath.Join(sm.sessionDir, "transcript.jsonl")
}

// GetLogPath returns the full path to the session log file
func (sm *SessionManager) GetLogPath() string {
	return filepath.Join(sm.sessionDir, "session.log")
}

// GetConfigBackupPath returns the full path to the profile backup
func (sm *SessionManager) GetConfigBackupPath(configPath string) string {
	return filepath.Join(sm.sessionDir, "profile"+filepath.Ext(configPath)+".bak")
}

// BackupConfig copies the profile file to the session directory
func (sm *SessionManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := sm.GetConfigBackupPath(configPath)
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	sm.logger.Debug("Backed up config file", "path", backupPath)
	return nil
}

// SessionInfo describes a session directory found under the output directory
type SessionInfo struct {
	Name          string
	Path          string
	HasTranscript bool
	Exchanges     int
}

// ListSessions returns the valid session directories under outputDir, newest first.
// A missing outputDir yields no sessions.
func ListSessions(outputDir string) ([]SessionInfo, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var sessions []SessionInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "session_") {
			continue
		}
		if ValidateSessionPath(outputDir, entry.Name()) != nil {
			continue
		}

		info := SessionInfo{
			Name: entry.Name(),
			Path: filepath.Join(outputDir, entry.Name()),
		}
		if exchanges, err := ReadTranscript(filepath.Join(info.Path, "transcript.jsonl")); err == nil {
			info.HasTranscript = true
			info.Exchanges = len(exchanges)
		}
		sessions = append(sessions, info)
	}

	// Timestamped names sort chronologically
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name > sessions[j].Name
	})
	return sessions, nil
}
