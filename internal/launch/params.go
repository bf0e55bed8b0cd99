package launch

import "strings"

// Default heap sizes used when a profile does not set them.
const (
	DefaultMinMemory = "2G"
	DefaultMaxMemory = "4G"
)

// Params are the runtime parameters for one launch.
type Params struct {
	InstallPath   string
	AdminPassword string
	MinMemory     string
	MaxMemory     string
	ExtraFlags    []string
	ServerName    string
}

// withDefaults returns a copy with empty fields filled in.
func (p Params) withDefaults(id string) Params {
	if strings.TrimSpace(p.MinMemory) == "" {
		p.MinMemory = DefaultMinMemory
	}
	if strings.TrimSpace(p.MaxMemory) == "" {
		p.MaxMemory = DefaultMaxMemory
	}
	if p.ServerName == "" {
		p.ServerName = id
	}
	p.ExtraFlags = append([]string(nil), p.ExtraFlags...)
	return p
}

// hasFlag reports whether any flag starts with prefix, ignoring case.
func hasFlag(flags []string, prefix string) bool {
	for _, f := range flags {
		if len(f) >= len(prefix) && strings.EqualFold(f[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

// heapFlags returns the computed -Xmx/-Xms flags the caller did not set.
func heapFlags(p Params) []string {
	var flags []string
	if !hasFlag(p.ExtraFlags, "-Xmx") {
		flags = append(flags, "-Xmx"+p.MaxMemory)
	}
	if !hasFlag(p.ExtraFlags, "-Xms") {
		flags = append(flags, "-Xms"+p.MinMemory)
	}
	return flags
}
