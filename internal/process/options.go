package process

import (
	"log/slog"
	"time"

	"github.com/smazurov/pzmanager/internal/console"
	"github.com/smazurov/pzmanager/internal/events"
	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/logging"
)

// Planner resolves the command line for a server.
// *launch.Planner satisfies this interface.
type Planner interface {
	Plan(id string, params launch.Params) (*launch.CommandSpec, error)
}

// Publisher receives server events. Publish is called while the server's
// entry is locked and must not call back into the Supervisor.
// *events.Bus satisfies this interface.
type Publisher interface {
	Publish(ev events.Event)
}

// SupervisorOptions configures a new Supervisor.
type SupervisorOptions struct {
	// Planner resolves launch commands (required).
	Planner Planner

	// Publisher receives log, status and roster events (optional).
	Publisher Publisher

	// Markers override the console markers. Empty fields use defaults.
	Markers console.Markers

	// StopCommand is written to stdin by Stop. Defaults to "quit".
	StopCommand string

	// ForceKillTimeout kills a server that has not exited this long after
	// Stop. Zero waits forever.
	ForceKillTimeout time.Duration

	// RosterTimeout completes a roster that never saw a terminating line.
	// Zero disables the timeout.
	RosterTimeout time.Duration

	// Logger for supervisor operations. If nil, uses slog.Default().
	Logger *slog.Logger

	// ConsoleLogger receives every console line. If nil, uses Logger.
	ConsoleLogger logging.Logger
}
