package nats

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Subject prefixes.
const (
	SubjectServersPrefix = "pzmanager.servers"
	SubjectControlPrefix = "pzmanager.control"
)

// Control actions, the last token of a control subject.
const (
	ActionCommand = "command"
	ActionStart   = "start"
	ActionStop    = "stop"
)

// SubjectLog is where console lines of serverID are published.
func SubjectLog(serverID string) string {
	return fmt.Sprintf("%s.%s.log", SubjectServersPrefix, serverID)
}

// SubjectState is where lifecycle transitions of serverID are published.
func SubjectState(serverID string) string {
	return fmt.Sprintf("%s.%s.state", SubjectServersPrefix, serverID)
}

// SubjectRoster is where player lists of serverID are published.
func SubjectRoster(serverID string) string {
	return fmt.Sprintf("%s.%s.roster", SubjectServersPrefix, serverID)
}

// SubjectControl is the subject for action on serverID.
func SubjectControl(serverID, action string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectControlPrefix, serverID, action)
}

// parseControlSubject splits pzmanager.control.{id}.{action}.
func parseControlSubject(subject string) (serverID, action string, ok bool) {
	rest, found := strings.CutPrefix(subject, SubjectControlPrefix+".")
	if !found {
		return "", "", false
	}
	serverID, action, found = strings.Cut(rest, ".")
	if !found || serverID == "" || strings.Contains(action, ".") {
		return "", "", false
	}
	return serverID, action, true
}

// LogMessage is one console line.
type LogMessage struct {
	ServerID  string `json:"server_id"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Source    string `json:"source"` // stdout, stderr, manager
}

// StateMessage is one lifecycle transition.
type StateMessage struct {
	ServerID  string `json:"server_id"`
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
	RunID     string `json:"run_id,omitempty"`
}

// RosterMessage is a completed player list.
type RosterMessage struct {
	ServerID  string   `json:"server_id"`
	Timestamp string   `json:"timestamp"`
	Players   []string `json:"players"`
}

// ControlRequest is the payload of a control subject. Command is only
// used by the command action.
type ControlRequest struct {
	Command string `json:"command,omitempty"`
}

// ControlReply answers a control request sent with a reply subject.
type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// UnmarshalControl decodes a control payload. An empty payload is a valid
// request with no fields.
func UnmarshalControl(data []byte) (ControlRequest, error) {
	var req ControlRequest
	if len(data) == 0 {
		return req, nil
	}
	err := json.Unmarshal(data, &req)
	return req, err
}
