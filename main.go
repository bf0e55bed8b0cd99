package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/pzmanager/cmd"
	"github.com/smazurov/pzmanager/internal/api"
	"github.com/smazurov/pzmanager/internal/config"
	"github.com/smazurov/pzmanager/internal/console"
	"github.com/smazurov/pzmanager/internal/events"
	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/logging"
	"github.com/smazurov/pzmanager/internal/metrics"
	"github.com/smazurov/pzmanager/internal/metrics/exporters"
	natsbus "github.com/smazurov/pzmanager/internal/nats"
	"github.com/smazurov/pzmanager/internal/process"
	"github.com/smazurov/pzmanager/internal/profiles"
	"github.com/smazurov/pzmanager/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Server profiles
	ServersConfigFile string `help:"Server profiles file" default:"servers.toml" toml:"servers.config_file" env:"SERVERS_CONFIG_FILE"`

	// Supervisor settings
	SupervisorStopCommand      string `help:"Console command that shuts a server down" default:"quit" toml:"supervisor.stop_command" env:"SUPERVISOR_STOP_COMMAND"`
	SupervisorForceKillTimeout string `help:"Kill a server this long after stop (0 waits forever)" default:"0s" toml:"supervisor.force_kill_timeout" env:"SUPERVISOR_FORCE_KILL_TIMEOUT"`
	SupervisorRosterTimeout    string `help:"Complete an unterminated player list after this long (0 disables)" default:"0s" toml:"supervisor.roster_timeout" env:"SUPERVISOR_ROSTER_TIMEOUT"`
	SupervisorShutdownTimeout  string `help:"How long shutdown waits for servers to save and exit" default:"2m" toml:"supervisor.shutdown_timeout" env:"SUPERVISOR_SHUTDOWN_TIMEOUT"`

	// Console markers
	ConsoleReady        string `help:"Line fragment that marks a server as running" default:"Server started" toml:"console.ready" env:"CONSOLE_READY"`
	ConsoleRosterHeader string `help:"Line fragment that starts a player list" default:"Players connected (" toml:"console.roster_header" env:"CONSOLE_ROSTER_HEADER"`
	ConsoleEmptyRoster  string `help:"Header fragment of an empty player list" default:"(0)" toml:"console.empty_roster" env:"CONSOLE_EMPTY_ROSTER"`
	ConsoleRosterEntry  string `help:"Prefix of a player line" default:"- " toml:"console.roster_entry" env:"CONSOLE_ROSTER_ENTRY"`

	// API settings
	APIRosterWait string `help:"How long the players endpoint waits for a roster" default:"5s" toml:"api.roster_wait" env:"API_ROSTER_WAIT"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// NATS settings
	NATSEnabled  bool   `help:"Mirror server events to NATS and accept control requests" default:"false" toml:"nats.enabled" env:"NATS_ENABLED"`
	NATSEmbedded bool   `help:"Run an embedded NATS server" default:"true" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSHost     string `help:"Embedded NATS server host" default:"127.0.0.1" toml:"nats.host" env:"NATS_HOST"`
	NATSPort     int    `help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	NATSURL      string `help:"External NATS URL, used when embedded is off" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingConsole    string `help:"Server console logging level" default:"info" toml:"logging.console" env:"LOGGING_CONSOLE"`
	LoggingLaunch     string `help:"Launch planner logging level" default:"info" toml:"logging.launch" env:"LOGGING_LAUNCH"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingNATS       string `help:"NATS bridge logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"console":    opts.LoggingConsole,
				"launch":     opts.LoggingLaunch,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
				"nats":       opts.LoggingNATS,
			},
		})
		logger := logging.GetLogger("main")
		logger.Info("Starting pzmanager", "version", version.String())

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		profileSet, err := profiles.Load(opts.ServersConfigFile)
		if err != nil {
			logger.Error("Failed to load server profiles", "file", opts.ServersConfigFile, "error", err)
		}
		profileStore := profiles.NewStore(profileSet)
		logger.Info("Loaded server profiles", "file", opts.ServersConfigFile, "count", len(profileStore.Current().IDs()))

		planner := launch.NewPlanner(logging.GetLogger("launch"))
		supervisor := process.NewSupervisor(&process.SupervisorOptions{
			Planner:   planner,
			Publisher: eventBus,
			Markers: console.Markers{
				Ready:        opts.ConsoleReady,
				RosterHeader: opts.ConsoleRosterHeader,
				EmptyRoster:  opts.ConsoleEmptyRoster,
				RosterEntry:  opts.ConsoleRosterEntry,
			},
			StopCommand:      opts.SupervisorStopCommand,
			ForceKillTimeout: parseDuration(logger, "supervisor.force_kill_timeout", opts.SupervisorForceKillTimeout, 0),
			RosterTimeout:    parseDuration(logger, "supervisor.roster_timeout", opts.SupervisorRosterTimeout, 0),
			Logger:           logging.GetLogger("supervisor"),
			ConsoleLogger:    logging.GetLogger("console"),
		})
		planner.Warn = supervisor.Warn

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			CORSOrigin:   opts.CORSOrigin,
			Supervisor:   supervisor,
			Profiles:     profileStore,
			EventBus:     eventBus,
			RosterWait:   parseDuration(logger, "api.roster_wait", opts.APIRosterWait, 0),
		}

		var untrack func()
		if opts.MetricsEnabled {
			untrack = metrics.Track(eventBus)
			apiOpts.PrometheusHandler = exporters.HTTPHandler(logging.GetLogger("metrics"))
		}

		server := api.NewServer(apiOpts)

		// Profile edits apply to the next start; running servers keep their parameters.
		watcher := config.NewConfigWatcher(
			opts.ServersConfigFile,
			profiles.Load,
			logging.GetLogger("config"),
			config.WithErrorHandler[*profiles.Set](func(err error) {
				logger.Warn("Keeping previous server profiles", "error", err)
			}),
		)
		watcher.OnReload(func(set *profiles.Set) {
			profileStore.Replace(set)
			logger.Info("Server profiles reloaded", "count", len(set.IDs()))
		})

		start := func(id string) error {
			return startProfile(supervisor, profileStore, id)
		}

		var natsServer *natsbus.Server
		var bridge *natsbus.Bridge

		hooks.OnStart(func() {
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to start profile watcher, hot-reload disabled", "error", startErr)
			}

			if opts.NATSEnabled {
				natsServer, bridge = startNATS(opts, eventBus, supervisor, start)
			}

			autostart(logger, profileStore, start)

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("Failed to notify systemd", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			shutdown := parseDuration(logger, "supervisor.shutdown_timeout", opts.SupervisorShutdownTimeout, 2*time.Minute)
			ctx, cancel := context.WithTimeout(context.Background(), shutdown)
			defer cancel()

			// Stop accepting requests first, then give servers time to save.
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := supervisor.StopAll(ctx); stopErr != nil {
				logger.Error("Servers did not stop in time", "error", stopErr)
			}

			if bridge != nil {
				bridge.Stop()
			}
			if natsServer != nil {
				natsServer.Stop()
			}

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping profile watcher", "error", stopErr)
			}
			if untrack != nil {
				untrack()
			}
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateRunCmd())
	cli.Root().AddCommand(cmd.CreatePlanCmd())

	cli.Run()
}

// startProfile starts id with the parameters of its current profile.
func startProfile(supervisor *process.Supervisor, store *profiles.Store, id string) error {
	profile, err := store.Get(id)
	if err != nil {
		return err
	}
	params, err := profile.Params()
	if err != nil {
		return err
	}
	return supervisor.Start(id, profile.InstallPath, params)
}

// autostart starts every profile flagged autostart. Failures are logged and
// the remaining servers still start.
func autostart(logger *slog.Logger, store *profiles.Store, start func(id string) error) {
	for _, id := range store.Current().Autostart() {
		logger.Info("Autostarting server", "server_id", id)
		if err := start(id); err != nil {
			logger.Error("Autostart failed", "server_id", id, "error", err)
		}
	}
}

// startNATS runs the embedded server when configured and connects the
// bridge. Failures leave NATS disabled; the HTTP API keeps working.
func startNATS(opts *Options, bus *events.Bus, supervisor *process.Supervisor, start func(string) error) (*natsbus.Server, *natsbus.Bridge) {
	logger := logging.GetLogger("nats")

	url := opts.NATSURL
	var srv *natsbus.Server
	if opts.NATSEmbedded {
		srv = natsbus.NewServer(natsbus.ServerOptions{
			Host:   opts.NATSHost,
			Port:   opts.NATSPort,
			Logger: logger,
		})
		if err := srv.Start(); err != nil {
			logger.Error("Failed to start embedded NATS server", "error", err)
			return nil, nil
		}
		url = srv.ClientURL()
	}

	bridge := natsbus.NewBridge(natsbus.BridgeOptions{
		URL:       url,
		Bus:       bus,
		Target:    supervisor,
		StartFunc: start,
		Logger:    logger,
	})
	if err := bridge.Start(); err != nil {
		logger.Error("Failed to start NATS bridge", "error", err)
		return srv, nil
	}
	return srv, bridge
}

// parseDuration parses a duration option, falling back to def on error.
func parseDuration(logger *slog.Logger, name, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid duration, using default", "option", name, "value", value, "default", def)
		return def
	}
	return d
}
