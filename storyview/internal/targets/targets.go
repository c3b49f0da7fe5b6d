// Package targets reads the list of story owners to visit.
package targets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parse reads one identifier per line. Surrounding whitespace and a
// leading "@" are stripped; blank lines and "#" comments are skipped.
// Order is preserved and duplicates are kept.
func Parse(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "@")
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("targets: read: %w", err)
	}
	return ids, nil
}

// Load reads identifiers from the file at path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
