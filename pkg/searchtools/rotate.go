package searchtools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// expandPath resolves a registered path (which may be a glob) into the files
// to scan. With allLogs every match is followed by its logrotate history
// (<file>.1, <file>.2.gz, ...) up to depth entries.
func expandPath(path string, allLogs bool, depth int) ([]string, error) {
	matches, err := filepath.Glob(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if len(matches) == 0 {
		return nil, os.ErrNotExist
	}
	sort.Strings(matches)

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
		if !allLogs {
			continue
		}
		files = append(files, rotatedHistory(m, depth)...)
	}
	if len(files) == 0 {
		return nil, os.ErrNotExist
	}
	return files, nil
}

func rotatedHistory(path string, depth int) []string {
	var history []string
	for i := 1; i <= depth; i++ {
		for _, candidate := range []string{
			fmt.Sprintf("%s.%d", path, i),
			fmt.Sprintf("%s.%d.gz", path, i),
		} {
			if _, err := os.Stat(candidate); err == nil {
				history = append(history, candidate)
				break
			}
		}
	}
	return history
}
