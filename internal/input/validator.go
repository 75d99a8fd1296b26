// Package input validates the recording path and the required settings
// before a translation session is configured.
package input

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when the recording path does not name an existing
// regular file.
var ErrNotFound = errors.New("recording not found")

// Setting is a named required value, usually read from the environment.
type Setting struct {
	Name  string
	Value string
}

// ConfigError reports required settings that are absent or empty.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required setting(s): %s; set them in the environment", strings.Join(e.Missing, ", "))
}

// Validate checks the required settings first and then the recording path.
// Settings are checked without touching the file system.
func Validate(path string, required ...Setting) error {
	var missing []string
	for _, s := range required {
		if strings.TrimSpace(s.Value) == "" {
			missing = append(missing, s.Name)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}

	if path == "" {
		return fmt.Errorf("%w: empty path", ErrNotFound)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("stat recording %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}
	return nil
}
