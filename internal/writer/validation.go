package writer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const sessionPrefix = "session_"

// SessionNameError reports a session name that cannot be used as a directory under the output dir
type SessionNameError struct {
	Name   string
	Reason string
}

func (e *SessionNameError) Error() string {
	if e.Name == "" {
		return "session name " + e.Reason
	}
	return fmt.Sprintf("invalid session name %q: %s", e.Name, e.Reason)
}

// ValidateSessionPath checks a user-supplied session name before it is joined
// onto outputDir. The name must be a bare session_<timestamp> directory name
// that resolves inside outputDir.
func ValidateSessionPath(outputDir, sessionName string) error {
	fail := func(reason string) error {
		return &SessionNameError{Name: sessionName, Reason: reason}
	}

	switch {
	case sessionName == "":
		return fail("cannot be empty")
	case strings.Contains(sessionName, ".."):
		return fail("contains '..' (path traversal attempt)")
	case filepath.IsAbs(sessionName):
		return fail("must be relative path")
	case strings.ContainsAny(sessionName, `/\`):
		return fail("must be a directory name without path separators")
	}

	stamp, ok := strings.CutPrefix(sessionName, sessionPrefix)
	if !ok {
		return fail("invalid session name format, expected session_YYYY-MM-DDTHH-MM-SS")
	}
	if _, err := time.Parse(sessionTimeFormat, stamp); err != nil {
		return fail("invalid session name format, expected session_YYYY-MM-DDTHH-MM-SS")
	}

	root, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	rel, err := filepath.Rel(root, filepath.Join(root, sessionName))
	if err != nil || !filepath.IsLocal(rel) {
		return fail("escapes the output directory")
	}
	return nil
}
