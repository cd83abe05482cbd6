package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxPromptLineSize = 1024 * 1024

// Job is one prompt of a batch. IDs number prompts from 0 in file order.
type Job struct {
	ID     int    `json:"id"`
	Prompt string `json:"prompt"`
}

// LoadPrompts reads one prompt per line. Lines starting with '{' are decoded
// as {"prompt": "..."} so prompts can span lines; blank lines and lines
// starting with '#' are skipped.
func LoadPrompts(r io.Reader) ([]Job, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPromptLineSize)

	var jobs []Job
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		prompt := line
		if strings.HasPrefix(line, "{") {
			var entry struct {
				Prompt string `json:"prompt"`
			}
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			if strings.TrimSpace(entry.Prompt) == "" {
				return nil, fmt.Errorf("line %d: prompt is empty", lineNum)
			}
			prompt = entry.Prompt
		}

		jobs = append(jobs, Job{ID: len(jobs), Prompt: prompt})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	return jobs, nil
}
