package launch

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"io/fs"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"testing"
)

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	p := NewPlanner(slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.HomeDir = t.TempDir()
	return p
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func indexOf(args []string, s string) int {
	return slices.Index(args, s)
}

func TestPlanDirectExecutable(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	exe := filepath.Join(root, "ProjectZomboid64.exe")
	touch(t, exe)

	spec, err := p.Plan("alpha", Params{InstallPath: root, AdminPassword: "pw"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Mode != ModeDirect {
		t.Errorf("expected direct mode, got %s", spec.Mode)
	}
	if spec.Path != exe {
		t.Errorf("expected path %s, got %s", exe, spec.Path)
	}
	if spec.Dir != root {
		t.Errorf("expected dir %s, got %s", root, spec.Dir)
	}

	want := []string{"-servername", "alpha", "-adminpassword", "pw", "-cachedir=" + root}
	if !slices.Equal(spec.Args, want) {
		t.Errorf("args = %v, want %v", spec.Args, want)
	}
	if _, err := os.Stat(filepath.Join(root, "mods")); err != nil {
		t.Errorf("expected mods directory to be created: %v", err)
	}
}

func TestPlanRuntimeBypass(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "StartServer64.bat"))
	java := filepath.Join(root, p.RuntimeCandidates[0])
	touch(t, java)

	spec, err := p.Plan("s1", Params{
		InstallPath:   root,
		AdminPassword: "secret",
		MinMemory:     "1G",
		MaxMemory:     "3G",
		ExtraFlags:    []string{"-Dfoo=bar"},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Mode != ModeRuntime {
		t.Fatalf("expected runtime mode, got %s", spec.Mode)
	}
	if spec.Path != java {
		t.Errorf("expected runtime %s, got %s", java, spec.Path)
	}

	args := spec.Args
	if args[0] != "-Xmx3G" || args[1] != "-Xms1G" || args[2] != "-Dfoo=bar" {
		t.Errorf("unexpected leading args: %v", args[:3])
	}

	entry := indexOf(args, p.EntryPoint)
	if entry < 0 {
		t.Fatalf("entry point missing from %v", args)
	}
	if indexOf(args, "-Dzomboid.steam=1") > entry {
		t.Error("runtime flags must precede the entry point")
	}
	tail := args[entry+1:]
	want := []string{"-servername", "s1", "-adminpassword", "secret", "-cachedir=" + root}
	if !slices.Equal(tail, want) {
		t.Errorf("app args = %v, want %v", tail, want)
	}
}

func TestPlanSecondRuntimeCandidate(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "StartServer64.bat"))
	java := filepath.Join(root, p.RuntimeCandidates[1])
	touch(t, java)

	spec, err := p.Plan("s1", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Path != java {
		t.Errorf("expected fallback runtime %s, got %s", java, spec.Path)
	}
}

func TestPlanShellFallback(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	script := filepath.Join(root, "start-server.sh")
	touch(t, script)

	spec, err := p.Plan("s1", Params{InstallPath: root, AdminPassword: "pw"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Mode != ModeShell {
		t.Fatalf("expected shell mode, got %s", spec.Mode)
	}
	if spec.Path != p.Shell[0] {
		t.Errorf("expected shell %s, got %s", p.Shell[0], spec.Path)
	}
	if indexOf(spec.Args, script) < 0 {
		t.Errorf("script missing from args %v", spec.Args)
	}
	if indexOf(spec.Args, "-Xmx4G") >= 0 {
		t.Error("shell fallback must not carry heap flags")
	}
	if indexOf(spec.Args, "-servername") < 0 {
		t.Error("shell fallback must carry app args")
	}
}

func TestPlanHeapFlagOverride(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "StartServer64.bat"))
	touch(t, filepath.Join(root, p.RuntimeCandidates[0]))

	spec, err := p.Plan("s1", Params{
		InstallPath: root,
		ExtraFlags:  []string{"-xmx8G"},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	var xmx, xms int
	for _, a := range spec.Args {
		if strings.HasPrefix(strings.ToLower(a), "-xmx") {
			xmx++
		}
		if strings.HasPrefix(a, "-Xms") {
			xms++
		}
	}
	if xmx != 1 {
		t.Errorf("expected exactly one -Xmx flag, got %d in %v", xmx, spec.Args)
	}
	if indexOf(spec.Args, "-xmx8G") < 0 {
		t.Error("caller heap flag must win")
	}
	if xms != 1 || indexOf(spec.Args, "-Xms2G") < 0 {
		t.Errorf("expected default -Xms2G, got %v", spec.Args)
	}
}

func TestPlanLauncherPriority(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "StartServer64.exe"))
	touch(t, filepath.Join(root, "projectzomboid64.EXE"))

	spec, err := p.Plan("s1", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if filepath.Base(spec.Launcher) != "projectzomboid64.EXE" {
		t.Errorf("expected case-insensitive higher priority match, got %s", spec.Launcher)
	}
}

func TestPlanBreadthFirst(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "StartServer64.bat")
	shallow := filepath.Join(root, "z", "StartServer64.exe")
	touch(t, deep)
	touch(t, shallow)

	spec, err := p.Plan("s1", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Launcher != shallow {
		t.Errorf("expected shallower launcher %s, got %s", shallow, spec.Launcher)
	}
}

func TestPlanLauncherNotFound(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "readme.txt"))

	_, err := p.Plan("s1", Params{InstallPath: root})
	if !errors.Is(err, ErrLauncherNotFound) {
		t.Fatalf("expected ErrLauncherNotFound, got %v", err)
	}

	_, err = p.Plan("s1", Params{InstallPath: filepath.Join(root, "missing")})
	if !errors.Is(err, ErrLauncherNotFound) {
		t.Fatalf("expected ErrLauncherNotFound for missing path, got %v", err)
	}
}

func TestPlanSkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	p := testPlanner(t)
	var warned []error
	p.Warn = func(_ string, err error) { warned = append(warned, err) }

	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	if err := os.Mkdir(locked, 0o000); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })
	exe := filepath.Join(root, "sub", "StartServer64.exe")
	touch(t, exe)

	spec, err := p.Plan("s1", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Launcher != exe {
		t.Errorf("expected %s, got %s", exe, spec.Launcher)
	}
	if len(warned) != 0 {
		t.Errorf("permission errors must be silent, got %v", warned)
	}
}

func TestPlanSkipsPermissionDeniedSilently(t *testing.T) {
	p := testPlanner(t)
	var warned []error
	p.Warn = func(_ string, err error) { warned = append(warned, err) }

	root := t.TempDir()
	locked := filepath.Join(root, "a-locked")
	touch(t, filepath.Join(locked, "StartServer64.bat"))
	exe := filepath.Join(root, "b", "StartServer64.exe")
	touch(t, exe)

	p.readDir = func(dir string) ([]os.DirEntry, error) {
		if dir == locked {
			return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrPermission}
		}
		return os.ReadDir(dir)
	}

	spec, err := p.Plan("s1", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Launcher != exe {
		t.Errorf("expected %s, got %s", exe, spec.Launcher)
	}
	if len(warned) != 0 {
		t.Errorf("permission errors must be silent, got %v", warned)
	}
}

func TestPlanWarnsOnReadErrorAndKeepsPartialEntries(t *testing.T) {
	p := testPlanner(t)
	var warned []error
	p.Warn = func(_ string, err error) { warned = append(warned, err) }

	root := t.TempDir()
	flaky := filepath.Join(root, "flaky")
	exe := filepath.Join(flaky, "server", "StartServer64.exe")
	touch(t, exe)
	touch(t, filepath.Join(flaky, "zz", "readme.txt"))

	ioErr := errors.New("input/output error")
	p.readDir = func(dir string) ([]os.DirEntry, error) {
		entries, err := os.ReadDir(dir)
		if dir == flaky && err == nil {
			// Entries read before the failure are still returned.
			return entries[:1], &fs.PathError{Op: "readdirent", Path: dir, Err: ioErr}
		}
		return entries, err
	}

	spec, err := p.Plan("s1", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Launcher != exe {
		t.Errorf("expected %s, got %s", exe, spec.Launcher)
	}
	if len(warned) != 1 || !errors.Is(warned[0], ioErr) {
		t.Errorf("expected one warning wrapping the read error, got %v", warned)
	}
}

func TestPlanWarnsOnNameTooLong(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on Linux PATH_MAX")
	}

	p := testPlanner(t)
	var warned []error
	p.Warn = func(_ string, err error) { warned = append(warned, err) }

	root := t.TempDir()
	t.Chdir(root)

	// Absolute paths below a certain depth exceed PATH_MAX, so ReadDir on
	// them fails with ENAMETOOLONG. Relative Mkdir/Chdir can still build them.
	long := strings.Repeat("d", 250)
	if err := os.Mkdir("a", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir("a"); err != nil {
		t.Fatal(err)
	}
	for range 20 {
		if err := os.Mkdir(long, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(long); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	deep := filepath.Join(root, "z")
	for range 21 {
		deep = filepath.Join(deep, "n")
	}
	exe := filepath.Join(deep, "StartServer64.exe")
	touch(t, exe)

	spec, err := p.Plan("s1", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Launcher != exe {
		t.Errorf("expected %s, got %s", exe, spec.Launcher)
	}
	if len(warned) != 1 || !errors.Is(warned[0], syscall.ENAMETOOLONG) {
		t.Errorf("expected one ENAMETOOLONG warning, got %v", warned)
	}
}

func TestPlanCacheDirOmittedForUserProfile(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "StartServer64.exe"))
	userDir := filepath.Join(p.HomeDir, "Zomboid", "Server")
	touch(t, filepath.Join(userDir, "alpha.ini"))

	spec, err := p.Plan("alpha", Params{InstallPath: root})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.ConfigDir != userDir {
		t.Errorf("expected config dir %s, got %s", userDir, spec.ConfigDir)
	}
	for _, a := range spec.Args {
		if strings.HasPrefix(a, "-cachedir") {
			t.Errorf("unexpected %s for per-user config", a)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "mods")); !os.IsNotExist(err) {
		t.Error("mods directory must not be created without -cachedir")
	}
}

func TestResolveConfigDirOrder(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()

	if got := p.resolveConfigDir(root, "x"); got != filepath.Join(root, "Server") {
		t.Errorf("default = %s", got)
	}

	nested := filepath.Join(root, "Zomboid", "Server")
	touch(t, filepath.Join(nested, "x.ini"))
	if got := p.resolveConfigDir(root, "x"); got != nested {
		t.Errorf("expected nested dir, got %s", got)
	}

	direct := filepath.Join(root, "Server")
	touch(t, filepath.Join(direct, "x.ini"))
	if got := p.resolveConfigDir(root, "x"); got != direct {
		t.Errorf("expected install Server dir to win, got %s", got)
	}
}

func TestServerNameDefaultsToID(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "StartServer64.exe"))

	spec, err := p.Plan("myid", Params{InstallPath: root, ServerName: ""})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Args[1] != "myid" {
		t.Errorf("expected server name myid, got %s", spec.Args[1])
	}

	spec, err = p.Plan("myid", Params{InstallPath: root, ServerName: "Custom"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if spec.Args[1] != "Custom" {
		t.Errorf("expected server name Custom, got %s", spec.Args[1])
	}
}

func TestPlanDoesNotMutateParams(t *testing.T) {
	p := testPlanner(t)
	root := t.TempDir()
	touch(t, filepath.Join(root, "StartServer64.exe"))

	flags := []string{"-Da=1"}
	params := Params{InstallPath: root, ExtraFlags: flags}
	if _, err := p.Plan("s", params); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if params.MinMemory != "" || params.ServerName != "" {
		t.Error("Plan must not modify caller params")
	}
}

func TestSplitFlags(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"simple", "-Da=1  -Db=2", []string{"-Da=1", "-Db=2"}, false},
		{"quoted", `-Dpath="C:\Program Files\x" -Dq='a b'`, []string{`-Dpath=C:\Program Files\x`, "-Dq=a b"}, false},
		{"tabs", "-Da=1\t-Db=2", []string{"-Da=1", "-Db=2"}, false},
		{"escaped space", `-Dname=a\ b`, []string{"-Dname=a b"}, false},
		{"unclosed", `-Da="oops`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitFlags(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitFlags(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("SplitFlags(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
