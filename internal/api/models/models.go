package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Server models
type ServerData struct {
	ID           string    `json:"id" example:"pz-main" doc:"Server identifier"`
	State        string    `json:"state" example:"running" enum:"stopped,starting,running,stopping" doc:"Lifecycle state"`
	Configured   bool      `json:"configured" doc:"Whether a profile exists for this server"`
	ServerName   string    `json:"server_name,omitempty" example:"servertest" doc:"Name passed to -servername"`
	InstallPath  string    `json:"install_path,omitempty" example:"/opt/pzserver" doc:"Installation directory"`
	Autostart    bool      `json:"autostart" doc:"Started when the manager starts"`
	RunID        string    `json:"run_id,omitempty" doc:"Identifier of the current process lifetime"`
	PID          int       `json:"pid,omitempty" example:"4242" doc:"Process id"`
	StartedAt    time.Time `json:"started_at,omitzero" doc:"When the process was spawned"`
	Mode         string    `json:"mode,omitempty" example:"runtime" enum:"direct,runtime,shell" doc:"How the launcher is run"`
	Command      string    `json:"command,omitempty" doc:"Resolved command line"`
	Players      int       `json:"players" example:"3" doc:"Size of the last reported roster"`
	StdoutLines  float64   `json:"stdout_lines" doc:"Console lines read from stdout"`
	StderrLines  float64   `json:"stderr_lines" doc:"Console lines read from stderr"`
	ManagerLines float64   `json:"manager_lines" doc:"Messages the manager reported about this server"`
}

type ServerListData struct {
	Servers []ServerData `json:"servers" doc:"Configured and running servers"`
	Count   int          `json:"count" example:"2" doc:"Number of servers"`
}

type ServerListResponse struct {
	Body ServerListData
}

type ServerResponse struct {
	Body ServerData
}

type ServerIDInput struct {
	ID string `path:"id" example:"pz-main" doc:"Server identifier"`
}

// Command models
type CommandRequestData struct {
	Command string `json:"command" minLength:"1" example:"save" doc:"Console command, written as one line"`
}

type CommandRequest struct {
	ID   string `path:"id" example:"pz-main" doc:"Server identifier"`
	Body CommandRequestData
}

type CommandData struct {
	ServerID string `json:"server_id" example:"pz-main" doc:"Server identifier"`
	Command  string `json:"command" example:"save" doc:"Command sent to the server"`
}

type CommandResponse struct {
	Body CommandData
}

type BroadcastRequestData struct {
	Message string `json:"message" minLength:"1" example:"Restart in 5 minutes" doc:"Message shown to every player"`
}

type BroadcastRequest struct {
	ID   string `path:"id" example:"pz-main" doc:"Server identifier"`
	Body BroadcastRequestData
}

// Player models
type PlayerListData struct {
	ServerID  string   `json:"server_id" example:"pz-main" doc:"Server identifier"`
	Players   []string `json:"players" doc:"Connected players in the order the server listed them"`
	Count     int      `json:"count" example:"2" doc:"Number of connected players"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Time the roster completed"`
}

type PlayerListResponse struct {
	Body PlayerListData
}

type PlayerActionRequestData struct {
	Reason string `json:"reason,omitempty" example:"Griefing" doc:"Reason shown to the player"`
}

// PlayerInput addresses one player on one server.
type PlayerInput struct {
	ID   string `path:"id" example:"pz-main" doc:"Server identifier"`
	Name string `path:"name" example:"alice" doc:"Player name"`
}

type PlayerActionRequest struct {
	ID   string `path:"id" example:"pz-main" doc:"Server identifier"`
	Name string `path:"name" example:"alice" doc:"Player name"`
	Body *PlayerActionRequestData `required:"false"`
}

// Event stream models
type EventStreamInput struct {
	Server string `query:"server" example:"pz-main" doc:"Only stream events of this server"`
}

// Reason returns the optional reason, empty when no body was sent.
func (r *PlayerActionRequest) Reason() string {
	if r.Body == nil {
		return ""
	}
	return r.Body.Reason
}

// LogStreamInput limits the history replayed on /api/logs/stream.
type LogStreamInput struct {
	Tail int `query:"tail" minimum:"0" doc:"Replay at most this many buffered entries, 0 replays all" example:"100"`
}
