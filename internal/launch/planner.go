package launch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrLauncherNotFound is returned when no known launcher exists under the
// install path.
var ErrLauncherNotFound = errors.New("launcher not found")

// Mode describes how the resolved command starts the server.
type Mode string

// Launch modes.
const (
	// ModeDirect runs the found executable with application arguments only.
	ModeDirect Mode = "direct"
	// ModeRuntime bypasses a script launcher and runs the bundled runtime.
	ModeRuntime Mode = "runtime"
	// ModeShell runs the script launcher through the system shell.
	ModeShell Mode = "shell"
)

// CommandSpec is a fully resolved command line.
type CommandSpec struct {
	Path     string
	Args     []string
	Dir      string
	Mode     Mode
	Launcher string
	// ConfigDir is the directory holding the server's config set.
	ConfigDir string
	// CacheDir is the -cachedir override, empty when it was omitted.
	CacheDir string
}

// String renders the command for logs and the plan command.
func (c *CommandSpec) String() string {
	return JoinArgs(append([]string{c.Path}, c.Args...))
}

// WarnFunc receives non-fatal problems found while planning.
type WarnFunc func(id string, err error)

// Planner resolves launch commands. The zero value is not usable; create
// one with NewPlanner.
type Planner struct {
	// LauncherNames are searched for in priority order.
	LauncherNames []string
	// RuntimeCandidates are runtime binaries relative to the launcher's
	// directory, tried in order.
	RuntimeCandidates []string
	// RuntimeFlags are passed to the runtime after heap and extra flags.
	RuntimeFlags []string
	// EntryPoint is the main class given to the runtime.
	EntryPoint string
	// Shell runs a script launcher when no runtime is found.
	Shell []string
	// HomeDir overrides the user's home directory.
	HomeDir string
	// Warn receives non-fatal search problems. May be nil.
	Warn WarnFunc

	logger  *slog.Logger
	readDir func(dir string) ([]os.DirEntry, error)
}

// NewPlanner creates a planner with the defaults for the current platform.
func NewPlanner(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Planner{
		LauncherNames: []string{
			"StartServer64.bat",
			"ProjectZomboid64.exe",
			"StartServer64.exe",
			"start-server.sh",
			"ProjectZomboid64",
		},
		EntryPoint: "zombie.network.GameServer",
		logger:     logger,
		readDir:    os.ReadDir,
	}

	common := []string{
		"-Djava.awt.headless=true",
		"-Dzomboid.steam=1",
		"-Dzomboid.znetlog=1",
		"-XX:+UseZGC",
		"-XX:-CreateCoredumpOnCrash",
		"-XX:-OmitStackTraceInFastThrow",
	}

	if runtime.GOOS == "windows" {
		p.RuntimeCandidates = []string{
			filepath.Join("jre64", "bin", "java.exe"),
			filepath.Join("jre", "bin", "java.exe"),
		}
		p.RuntimeFlags = append(common,
			"-Djava.library.path=natives/;natives/win64/;.",
			"-cp", "java/;java/projectzomboid.jar",
		)
		p.Shell = []string{"cmd.exe", "/c"}
	} else {
		p.RuntimeCandidates = []string{
			filepath.Join("jre64", "bin", "java"),
			filepath.Join("jre", "bin", "java"),
		}
		p.RuntimeFlags = append(common,
			"-Djava.library.path=linux64/:natives/",
			"-cp", "java/:java/projectzomboid.jar",
		)
		p.Shell = []string{"/bin/sh"}
	}

	return p
}

// Plan resolves the command that starts server id.
func (p *Planner) Plan(id string, params Params) (*CommandSpec, error) {
	params = params.withDefaults(id)

	launcher, err := p.findLauncher(id, params.InstallPath)
	if err != nil {
		return nil, err
	}

	spec := &CommandSpec{
		Dir:      filepath.Dir(launcher),
		Launcher: launcher,
	}

	appArgs := p.appArgs(id, params, spec)

	if !isScript(launcher) {
		spec.Mode = ModeDirect
		spec.Path = launcher
		spec.Args = appArgs
		p.logger.Debug("Planned direct launch", "server_id", id, "launcher", launcher)
		return spec, nil
	}

	if java := p.findRuntime(spec.Dir); java != "" {
		args := heapFlags(params)
		args = append(args, params.ExtraFlags...)
		args = append(args, p.RuntimeFlags...)
		args = append(args, p.EntryPoint)
		args = append(args, appArgs...)

		spec.Mode = ModeRuntime
		spec.Path = java
		spec.Args = args
		p.logger.Debug("Planned runtime launch", "server_id", id, "runtime", java)
		return spec, nil
	}

	p.logger.Warn("Bundled runtime not found, falling back to shell", "server_id", id, "launcher", launcher)
	spec.Mode = ModeShell
	spec.Path = p.Shell[0]
	spec.Args = append(append(append([]string{}, p.Shell[1:]...), launcher), appArgs...)
	return spec, nil
}

// appArgs builds the application arguments and records the config
// decisions on spec.
func (p *Planner) appArgs(id string, params Params, spec *CommandSpec) []string {
	args := []string{
		"-servername", params.ServerName,
		"-adminpassword", params.AdminPassword,
	}

	spec.ConfigDir = p.resolveConfigDir(params.InstallPath, params.ServerName)
	if p.isUserProfileDir(spec.ConfigDir) {
		return args
	}

	spec.CacheDir = params.InstallPath
	args = append(args, "-cachedir="+params.InstallPath)

	modsDir := filepath.Join(params.InstallPath, "mods")
	if err := os.MkdirAll(modsDir, 0o755); err != nil {
		p.warn(id, fmt.Errorf("failed to create mods directory %s: %w", modsDir, err))
	}
	return args
}

// findRuntime returns the first runtime candidate that exists.
func (p *Planner) findRuntime(dir string) string {
	for _, rel := range p.RuntimeCandidates {
		candidate := filepath.Join(dir, rel)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate
		}
	}
	return ""
}

func (p *Planner) warn(id string, err error) {
	p.logger.Warn("Launch planning problem", "server_id", id, "error", err)
	if p.Warn != nil {
		p.Warn(id, err)
	}
}

// isScript reports whether the launcher is a script wrapper.
func isScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bat", ".cmd", ".sh":
		return true
	default:
		return false
	}
}
