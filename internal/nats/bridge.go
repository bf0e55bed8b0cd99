package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/pzmanager/internal/events"
)

// Target executes control requests. *process.Supervisor satisfies it.
type Target interface {
	SendCommand(id, text string) error
	Stop(id string) error
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	URL    string
	Bus    *events.Bus
	Target Target
	// StartFunc starts the profile of a server. Start requests are
	// rejected when nil.
	StartFunc func(id string) error
	Logger    *slog.Logger
}

// Bridge publishes bus events to NATS and serves control subjects.
type Bridge struct {
	opts   BridgeOptions
	logger *slog.Logger

	mu          sync.Mutex
	conn        *nats.Conn
	unsubscribe func()
}

// NewBridge creates a bridge. Call Start to connect.
func NewBridge(opts BridgeOptions) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{opts: opts, logger: logger.With("component", "nats-bridge")}
}

// Start connects, subscribes to control subjects and begins forwarding
// server events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.opts.URL,
		nats.Name("pzmanager"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			b.logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS %s: %w", b.opts.URL, err)
	}

	if _, err := conn.Subscribe(SubjectControlPrefix+".*.*", b.handleControl); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to control subjects: %w", err)
	}

	b.conn = conn
	if b.opts.Bus != nil {
		b.unsubscribe = b.opts.Bus.SubscribeOrdered(b.forward)
	}
	b.logger.Info("NATS bridge connected", "url", b.opts.URL)
	return nil
}

// Stop detaches from the bus and drains the connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	conn, unsubscribe := b.conn, b.unsubscribe
	b.conn, b.unsubscribe = nil, nil
	b.mu.Unlock()

	// forward takes mu, so the bus subscription is dropped unlocked.
	if unsubscribe != nil {
		unsubscribe()
	}
	if conn == nil {
		return
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
	}
	b.logger.Info("NATS bridge stopped")
}

// IsConnected reports whether the bridge has a live connection.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}

// forward publishes one server event. Delivery is best effort.
func (b *Bridge) forward(ev events.ServerEvent) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}

	var subject string
	var msg any
	switch e := ev.(type) {
	case events.LogReceivedEvent:
		subject = SubjectLog(e.ServerID)
		msg = LogMessage{ServerID: e.ServerID, Timestamp: e.Timestamp, Message: e.Message, Source: e.Stream()}
	case events.StatusChangedEvent:
		subject = SubjectState(e.ServerID)
		msg = StateMessage{ServerID: e.ServerID, Timestamp: e.Timestamp, State: e.State, RunID: e.RunID}
	case events.RosterReceivedEvent:
		subject = SubjectRoster(e.ServerID)
		msg = RosterMessage{ServerID: e.ServerID, Timestamp: e.Timestamp, Players: e.Players}
	default:
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Warn("Failed to encode event", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		b.logger.Debug("Failed to publish event", "subject", subject, "error", err)
	}
}

func (b *Bridge) handleControl(msg *nats.Msg) {
	err := b.control(msg)
	if err != nil {
		b.logger.Warn("Control request failed", "subject", msg.Subject, "error", err)
	}
	if msg.Reply == "" {
		return
	}

	reply := ControlReply{OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
	}
	data, _ := json.Marshal(reply)
	if respondErr := msg.Respond(data); respondErr != nil {
		b.logger.Debug("Failed to answer control request", "subject", msg.Subject, "error", respondErr)
	}
}

func (b *Bridge) control(msg *nats.Msg) error {
	id, action, ok := parseControlSubject(msg.Subject)
	if !ok {
		return errors.New("malformed control subject")
	}
	req, err := UnmarshalControl(msg.Data)
	if err != nil {
		return fmt.Errorf("decode control request: %w", err)
	}

	b.logger.Info("Control request", "server_id", id, "action", action)
	switch action {
	case ActionCommand:
		if req.Command == "" {
			return errors.New("command is required")
		}
		return b.opts.Target.SendCommand(id, req.Command)
	case ActionStop:
		return b.opts.Target.Stop(id)
	case ActionStart:
		if b.opts.StartFunc == nil {
			return errors.New("start is not supported")
		}
		return b.opts.StartFunc(id)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}
