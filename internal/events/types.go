package events

// Event type constants for kelindar/event.
const (
	TypeLogReceived uint32 = iota + 1
	TypeStatusChanged
	TypeRosterReceived
	TypeEnvelope
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ServerEvent is an event that belongs to one managed game server.
type ServerEvent interface {
	Event
	Server() string
}

// Sources of a LogReceivedEvent.
const (
	SourceStdout  = "stdout"
	SourceStderr  = "stderr"
	SourceManager = "manager"
)

// LogReceivedEvent carries one raw console line from a game server, or a
// message the manager reports about it.
type LogReceivedEvent struct {
	ServerID  string `json:"server_id" example:"pz-main" doc:"Server identifier"`
	Message   string `json:"message" example:"LOG  : General     > Server started" doc:"Console line"`
	IsError   bool   `json:"is_error" example:"false" doc:"True when the line came from stderr or from the manager itself"`
	Source    string `json:"source" example:"stdout" enum:"stdout,stderr,manager" doc:"Origin of the line"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Time the line was read"`
}

// Type returns the event type identifier for LogReceivedEvent.
func (e LogReceivedEvent) Type() uint32 { return TypeLogReceived }

// Server returns the server the line belongs to.
func (e LogReceivedEvent) Server() string { return e.ServerID }

// Stream returns Source, falling back to stdout or stderr by IsError when
// Source is unset.
func (e LogReceivedEvent) Stream() string {
	switch {
	case e.Source != "":
		return e.Source
	case e.IsError:
		return SourceStderr
	default:
		return SourceStdout
	}
}

// StatusChangedEvent is published on every lifecycle transition.
type StatusChangedEvent struct {
	ServerID  string `json:"server_id" example:"pz-main" doc:"Server identifier"`
	State     string `json:"state" example:"running" enum:"stopped,starting,running,stopping" doc:"New lifecycle state"`
	RunID     string `json:"run_id,omitempty" doc:"Identifier of the process lifetime"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Transition time"`
}

// Type returns the event type identifier for StatusChangedEvent.
func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// Server returns the server whose state changed.
func (e StatusChangedEvent) Server() string { return e.ServerID }

// RosterReceivedEvent carries a parsed player list.
type RosterReceivedEvent struct {
	ServerID  string   `json:"server_id" example:"pz-main" doc:"Server identifier"`
	Players   []string `json:"players" doc:"Connected players in the order the server listed them"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Time the roster completed"`
}

// Type returns the event type identifier for RosterReceivedEvent.
func (e RosterReceivedEvent) Type() uint32 { return TypeRosterReceived }

// Server returns the server that reported the roster.
func (e RosterReceivedEvent) Server() string { return e.ServerID }

// Envelope wraps every ServerEvent so that one subscriber can consume all
// three kinds from a single queue in publish order.
type Envelope struct {
	Event ServerEvent
}

// Type returns the event type identifier for Envelope.
func (e Envelope) Type() uint32 { return TypeEnvelope }

// LogEntryEvent represents an application log entry for SSE streaming.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
