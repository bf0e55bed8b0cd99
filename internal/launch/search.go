package launch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// findLauncher searches root breadth-first for the first launcher name.
// Within one directory names are tried in priority order before any
// subdirectory is visited.
func (p *Planner) findLauncher(id, root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty install path", ErrLauncherNotFound)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w in %s", ErrLauncherNotFound, root)
	}

	readDir := p.readDir
	if readDir == nil {
		readDir = os.ReadDir
	}

	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := readDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				p.logger.Debug("Skipping inaccessible directory", "server_id", id, "dir", dir)
				continue
			}
			p.warn(id, fmt.Errorf("error searching %s: %w", dir, err))
			// ReadDir may return the entries read before the error.
		}

		if found := matchLauncher(dir, entries, p.LauncherNames); found != "" {
			return found, nil
		}

		for _, e := range entries {
			if e.IsDir() {
				queue = append(queue, filepath.Join(dir, e.Name()))
			}
		}
	}

	return "", fmt.Errorf("%w in %s", ErrLauncherNotFound, root)
}

func matchLauncher(dir string, entries []os.DirEntry, names []string) string {
	for _, name := range names {
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(e.Name(), name) {
				return filepath.Join(dir, e.Name())
			}
		}
	}
	return ""
}
