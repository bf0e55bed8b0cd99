package profiles

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const sample = `
version = 1

[servers.main]
install_path = "/srv/pz"
admin_password = "secret"
max_memory = "6G"
jvm_flags = "-Dzomboid.debug=0 -Duser.home=\"/srv/pz home\""
autostart = true

[servers.test]
install_path = "/srv/pz-test"
server_name = "Testing"
`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := set.IDs(); !slices.Equal(got, []string{"main", "test"}) {
		t.Errorf("IDs = %v", got)
	}
	if got := set.Autostart(); !slices.Equal(got, []string{"main"}) {
		t.Errorf("Autostart = %v", got)
	}

	p, ok := set.Get("main")
	if !ok {
		t.Fatal("main profile missing")
	}
	if p.ID != "main" || p.AdminPassword != "secret" {
		t.Errorf("unexpected profile %+v", p)
	}

	params, err := p.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if params.InstallPath != "/srv/pz" || params.MaxMemory != "6G" || params.MinMemory != "" {
		t.Errorf("unexpected params %+v", params)
	}
	if !slices.Equal(params.ExtraFlags, []string{"-Dzomboid.debug=0", "-Duser.home=/srv/pz home"}) {
		t.Errorf("ExtraFlags = %q", params.ExtraFlags)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing install path", "[servers.a]\nadmin_password = \"x\"\n", "install_path"},
		{"bad memory", "[servers.a]\ninstall_path = \"/x\"\nmax_memory = \"lots\"\n", "max_memory"},
		{"bad flags", "[servers.a]\ninstall_path = \"/x\"\njvm_flags = \"-Da='open\"\n", "jvm_flags"},
		{"bad id", "[servers.\"../etc\"]\ninstall_path = \"/x\"\n", "invalid server id"},
		{"bad toml", "[servers\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "servers.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(set.IDs()) != 0 {
		t.Errorf("expected empty set, got %v", set.IDs())
	}
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	store := NewStore(set)

	if _, err := store.Get("main"); err != nil {
		t.Errorf("Get(main) failed: %v", err)
	}
	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	replacement, err := Parse([]byte("[servers.other]\ninstall_path = \"/o\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	store.Replace(replacement)

	if _, err := store.Get("main"); !errors.Is(err, ErrNotFound) {
		t.Error("expected main to be gone after replace")
	}
	if got := store.Current().IDs(); !slices.Equal(got, []string{"other"}) {
		t.Errorf("IDs after replace = %v", got)
	}
}
