package process

import "time"

// State is the lifecycle state of a managed server.
type State string

// Lifecycle states.
const (
	StateStopped  State = "stopped"  // No process
	StateStarting State = "starting" // Spawned, ready marker not seen yet
	StateRunning  State = "running"  // Ready marker seen
	StateStopping State = "stopping" // Stop command sent, waiting for exit
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Info contains information about a managed server.
type Info struct {
	ID        string
	State     State
	RunID     string
	PID       int
	StartedAt time.Time
	Mode      string
	Command   string
}
