package launch

import (
	"os"
	"path/filepath"
	"strings"
)

// resolveConfigDir returns the directory holding serverName's config set.
// Lookup order: <install>/Server, <install>/Zomboid/Server, then the per-user
// ~/Zomboid/Server; when no ini exists anywhere <install>/Server is used.
func (p *Planner) resolveConfigDir(installPath, serverName string) string {
	ini := serverName + ".ini"
	candidates := []string{
		filepath.Join(installPath, "Server"),
		filepath.Join(installPath, "Zomboid", "Server"),
	}
	if userDir := p.userConfigDir(); userDir != "" {
		candidates = append(candidates, userDir)
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, ini)); err == nil {
			return dir
		}
	}
	return candidates[0]
}

// userConfigDir is the platform-default per-user config location.
func (p *Planner) userConfigDir() string {
	home := p.HomeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, "Zomboid", "Server")
}

// isUserProfileDir reports whether dir is inside the per-user location.
// The comparison ignores case, as the server does on Windows.
func (p *Planner) isUserProfileDir(dir string) bool {
	userDir := p.userConfigDir()
	if userDir == "" {
		return false
	}
	dir = filepath.Clean(dir)
	userDir = filepath.Clean(userDir)
	if strings.EqualFold(dir, userDir) {
		return true
	}
	prefix := userDir + string(filepath.Separator)
	return len(dir) > len(prefix) && strings.EqualFold(dir[:len(prefix)], prefix)
}
