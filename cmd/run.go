package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/pzmanager/internal/config"
	"github.com/smazurov/pzmanager/internal/events"
	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/logging"
	"github.com/smazurov/pzmanager/internal/process"
	"github.com/spf13/cobra"
)

// runOptions configures a foreground server session.
type runOptions struct {
	ServersFile      string
	ForceKillTimeout time.Duration
	RosterTimeout    time.Duration
}

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var opts runOptions
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "run [server-id]",
		Short: "Run one server in the foreground",
		Long: `Launches the given server profile and relays its console to the terminal. ` +
			`Lines typed on stdin are sent as console commands. The first interrupt asks ` +
			`the server to quit; a second one kills it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			configFile, _ := c.Flags().GetString("config")
			loggingConfig := config.LoadLoggingConfig(configFile)
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)

			signals := make(chan os.Signal, 2)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(signals)

			return runServer(args[0], opts, c.InOrStdin(), c.OutOrStdout(), signals)
		},
	}

	cmd.Flags().StringVar(&opts.ServersFile, "servers", "servers.toml", "Path to server profiles file")
	cmd.Flags().DurationVar(&opts.ForceKillTimeout, "force-kill-timeout", 0,
		"Kill the server this long after it was asked to quit (0 waits forever)")
	cmd.Flags().DurationVar(&opts.RosterTimeout, "roster-timeout", 0,
		"Complete an unterminated player list after this long (0 disables)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

// runServer supervises id until its process exits. Console lines go to out;
// lines from in are sent as commands. The first value on signals stops the
// server, the second kills it.
func runServer(id string, opts runOptions, in io.Reader, out io.Writer, signals <-chan os.Signal) error {
	logger := logging.ServerLogger("run", id)

	profile, params, err := loadProfile(opts.ServersFile, id)
	if err != nil {
		return err
	}

	bus := events.New()
	exited := make(chan struct{})
	var once sync.Once

	var outMu sync.Mutex
	unsubscribe := bus.SubscribeOrdered(func(ev events.ServerEvent) {
		switch e := ev.(type) {
		case events.LogReceivedEvent:
			outMu.Lock()
			fmt.Fprintln(out, e.Message)
			outMu.Unlock()
		case events.RosterReceivedEvent:
			logger.Info("Players connected", "count", len(e.Players), "players", e.Players)
		case events.StatusChangedEvent:
			logger.Info("Server state changed", "state", e.State, "run_id", e.RunID)
			if e.State == process.StateStopped.String() {
				once.Do(func() { close(exited) })
			}
		}
	})
	defer unsubscribe()

	planner := launch.NewPlanner(logging.GetLogger("launch"))
	supervisor := process.NewSupervisor(&process.SupervisorOptions{
		Planner:          planner,
		Publisher:        bus,
		ForceKillTimeout: opts.ForceKillTimeout,
		RosterTimeout:    opts.RosterTimeout,
		Logger:           logging.GetLogger("supervisor"),
		ConsoleLogger:    slog.New(slog.DiscardHandler),
	})
	planner.Warn = supervisor.Warn

	if err := supervisor.Start(id, profile.InstallPath, params); err != nil {
		return err
	}

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if err := supervisor.SendCommand(id, scanner.Text()); err != nil {
				logger.Warn("Failed to send command", "error", err)
			}
		}
	}()

	interrupts := 0
	for {
		select {
		case <-exited:
			logger.Info("Server exited")
			return nil
		case <-signals:
			interrupts++
			if interrupts == 1 {
				logger.Info("Stopping server, interrupt again to kill")
				if err := supervisor.Stop(id); err != nil {
					logger.Warn("Failed to stop server", "error", err)
				}
				continue
			}
			logger.Warn("Killing server")
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = supervisor.StopAll(ctx)
		}
	}
}
