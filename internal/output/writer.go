// Package output writes collected translations to disk.
package output

import (
	"fmt"
	"os"
	"strings"
)

// WriteText writes lines joined by "\n" (no trailing newline) to path as
// UTF-8, truncating any existing file in place. Symlinks are followed and an
// existing file keeps its permissions. An empty path is a no-op.
func WriteText(path string, lines []string) error {
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.WriteString(strings.Join(lines, "\n")); err != nil {
		f.Close()
		return fmt.Errorf("writing translation: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing translation: %w", err)
	}
	return nil
}
