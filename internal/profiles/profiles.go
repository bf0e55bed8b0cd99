// Package profiles loads the per-server launch profiles from servers.toml.
//
// Example file:
//
//	version = 1
//
//	[servers.main]
//	install_path = "/srv/pzserver"
//	admin_password = "changeme"
//	min_memory = "2G"
//	max_memory = "6G"
//	jvm_flags = "-Dzomboid.debug=0 -Duser.home=\"/srv/pz home\""
//	autostart = true
package profiles

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/pzmanager/internal/launch"
)

// ErrNotFound is returned for unknown server ids.
var ErrNotFound = errors.New("profile not found")

var (
	validID     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	validMemory = regexp.MustCompile(`^[0-9]+[kKmMgG]?$`)
)

// Profile is one configured server.
type Profile struct {
	ID            string `toml:"-" json:"id"`
	InstallPath   string `toml:"install_path" json:"install_path"`
	AdminPassword string `toml:"admin_password" json:"-"`
	MinMemory     string `toml:"min_memory,omitempty" json:"min_memory,omitempty"`
	MaxMemory     string `toml:"max_memory,omitempty" json:"max_memory,omitempty"`
	JVMFlags      string `toml:"jvm_flags,omitempty" json:"jvm_flags,omitempty"`
	ServerName    string `toml:"server_name,omitempty" json:"server_name,omitempty"`
	Autostart     bool   `toml:"autostart" json:"autostart"`
}

// Params converts the profile into launch parameters.
func (p Profile) Params() (launch.Params, error) {
	flags, err := launch.SplitFlags(p.JVMFlags)
	if err != nil {
		return launch.Params{}, fmt.Errorf("invalid jvm_flags for %s: %w", p.ID, err)
	}
	return launch.Params{
		InstallPath:   p.InstallPath,
		AdminPassword: p.AdminPassword,
		MinMemory:     p.MinMemory,
		MaxMemory:     p.MaxMemory,
		ExtraFlags:    flags,
		ServerName:    p.ServerName,
	}, nil
}

// Validate checks the fields that would otherwise fail only at launch.
func (p Profile) Validate() error {
	if !validID.MatchString(p.ID) {
		return fmt.Errorf("invalid server id %q", p.ID)
	}
	if strings.TrimSpace(p.InstallPath) == "" {
		return fmt.Errorf("server %s: install_path is required", p.ID)
	}
	for name, v := range map[string]string{"min_memory": p.MinMemory, "max_memory": p.MaxMemory} {
		if v != "" && !validMemory.MatchString(v) {
			return fmt.Errorf("server %s: invalid %s %q", p.ID, name, v)
		}
	}
	if _, err := launch.SplitFlags(p.JVMFlags); err != nil {
		return fmt.Errorf("server %s: invalid jvm_flags: %w", p.ID, err)
	}
	return nil
}

// file is the on-disk layout.
type file struct {
	Version int                `toml:"version"`
	Servers map[string]Profile `toml:"servers"`
}

// Set is an immutable snapshot of all profiles.
type Set struct {
	profiles map[string]Profile
}

// Load reads and validates path. A missing file yields an empty set.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Set{profiles: map[string]Profile{}}, nil
		}
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	return Parse(data)
}

// Parse decodes a servers.toml document.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	set := &Set{profiles: make(map[string]Profile, len(f.Servers))}
	for id, p := range f.Servers {
		p.ID = id
		if err := p.Validate(); err != nil {
			return nil, err
		}
		set.profiles[id] = p
	}
	return set, nil
}

// Get returns the profile for id.
func (s *Set) Get(id string) (Profile, bool) {
	p, ok := s.profiles[id]
	return p, ok
}

// IDs returns all server ids in sorted order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Autostart returns the sorted ids flagged for autostart.
func (s *Set) Autostart() []string {
	var ids []string
	for _, id := range s.IDs() {
		if s.profiles[id].Autostart {
			ids = append(ids, id)
		}
	}
	return ids
}

// Store holds the current Set and is swapped on reload.
type Store struct {
	mu  sync.RWMutex
	set *Set
}

// NewStore creates a store holding set.
func NewStore(set *Set) *Store {
	if set == nil {
		set = &Set{profiles: map[string]Profile{}}
	}
	return &Store{set: set}
}

// Replace swaps in a freshly loaded set.
func (s *Store) Replace(set *Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
}

// Current returns the active set.
func (s *Store) Current() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Get returns the profile for id or ErrNotFound.
func (s *Store) Get(id string) (Profile, error) {
	p, ok := s.Current().Get(id)
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}
