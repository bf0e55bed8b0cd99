package process

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/pzmanager/internal/console"
	"github.com/smazurov/pzmanager/internal/events"
	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/logging"
)

// stopAllKillWait bounds how long StopAll waits for killed processes.
const stopAllKillWait = 5 * time.Second

// Supervisor launches game servers, relays their console and tracks their
// lifecycle. All methods are safe for concurrent use.
type Supervisor struct {
	opts     SupervisorOptions
	registry *registry
	logger   *slog.Logger
	console  logging.Logger
	wg       sync.WaitGroup
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts *SupervisorOptions) *Supervisor {
	if opts == nil || opts.Planner == nil {
		panic("SupervisorOptions with Planner is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		opts:     *opts,
		registry: newRegistry(),
		logger:   logger,
		console:  opts.ConsoleLogger,
	}
	if s.console == nil {
		s.console = logger
	}
	if strings.TrimSpace(s.opts.StopCommand) == "" {
		s.opts.StopCommand = console.CommandQuit
	}
	return s
}

// Start launches server id from installPath. It is a no-op while id is
// registered. A planning failure is reported as an error log event and
// leaves the state unchanged; a spawn failure is reported as an error log
// event followed by Stopped. Both are also returned.
func (s *Supervisor) Start(id, installPath string, params launch.Params) error {
	e, claimed := s.registry.claim(id)
	if !claimed {
		s.logger.Debug("Server already running, ignoring start", "server_id", id)
		return nil
	}
	defer e.mu.Unlock()

	params.InstallPath = installPath

	spec, err := s.opts.Planner.Plan(id, params)
	if err != nil {
		s.logger.Error("Failed to plan launch", "server_id", id, "install_path", installPath, "error", err)
		s.emitLog(id, fmt.Sprintf("Failed to resolve launch command: %v", err), events.SourceManager)
		s.registry.remove(id, e)
		return fmt.Errorf("failed to plan launch for %s: %w", id, err)
	}

	e.parser = console.NewParser(s.opts.Markers)
	e.spec = spec

	h, err := Spawn(id, spec, func(stream Stream, line string) {
		s.handleLine(e, stream, line)
	}, s.logger)
	if err != nil {
		s.logger.Error("Failed to start server", "server_id", id, "error", err)
		s.emitLog(id, fmt.Sprintf("Failed to start server: %v", err), events.SourceManager)
		s.emitStatus(e)
		s.registry.remove(id, e)
		return err
	}

	e.handle = h
	e.runID = uuid.NewString()
	e.startedAt = h.StartedAt()
	e.state = StateStarting
	s.emitStatus(e)

	s.logger.Info("Server starting", "server_id", id, "run_id", e.runID, "mode", spec.Mode, "dir", spec.Dir)

	s.wg.Add(1)
	go s.watch(e)

	return nil
}

// Stop writes the stop command to server id and moves it to Stopping. The
// Stopped state arrives once the process exits. It is a no-op when id is
// not running or already stopping.
func (s *Supervisor) Stop(id string) error {
	e := s.registry.get(id)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running() || e.state == StateStopping {
		return nil
	}

	s.logger.Info("Stopping server", "server_id", id, "command", s.opts.StopCommand)

	writeErr := e.handle.WriteLine(s.opts.StopCommand)
	if writeErr != nil {
		s.logger.Warn("Failed to send stop command", "server_id", id, "error", writeErr)
		s.emitLog(id, fmt.Sprintf("Failed to send stop command: %v", writeErr), events.SourceManager)
	}

	e.state = StateStopping
	s.emitStatus(e)

	if s.opts.ForceKillTimeout > 0 {
		h := e.handle
		e.killTimer = time.AfterFunc(s.opts.ForceKillTimeout, func() {
			s.forceKill(e, h)
		})
	}

	return writeErr
}

// SendCommand writes text as one line to server id. It is a no-op when id
// is not running.
func (s *Supervisor) SendCommand(id, text string) error {
	e := s.registry.get(id)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running() {
		return nil
	}

	text = strings.TrimRight(text, "\r\n")
	e.parser.Expect(text)

	s.logger.Debug("Sending command", "server_id", id, "command", text)
	return e.handle.WriteLine(text)
}

// IsRunning reports whether id has a registered process that has not exited.
func (s *Supervisor) IsRunning(id string) bool {
	e := s.registry.get(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running()
}

// Status returns the current info for id. Unknown ids are Stopped.
func (s *Supervisor) Status(id string) Info {
	e := s.registry.get(id)
	if e == nil {
		return Info{ID: id, State: StateStopped}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info()
}

// List returns info for every registered server ordered by id.
func (s *Supervisor) List() []Info {
	entries := s.registry.snapshot()
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.info())
		e.mu.Unlock()
	}
	return out
}

// Warn reports a non-fatal problem for id as an error log event. It does
// not take the entry lock, so planners may call it from within Start.
func (s *Supervisor) Warn(id string, err error) {
	s.emitLog(id, err.Error(), events.SourceManager)
}

// StopAll stops every server and waits for them to exit. When ctx ends
// first, the remaining processes are killed and ctx's error is returned.
func (s *Supervisor) StopAll(ctx context.Context) error {
	entries := s.registry.snapshot()
	s.logger.Info("Stopping all servers", "count", len(entries))

	for _, e := range entries {
		if err := s.Stop(e.id); err != nil {
			s.logger.Warn("Failed to stop server", "server_id", e.id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All servers stopped")
		return nil
	case <-ctx.Done():
	}

	s.logger.Warn("Shutdown deadline reached, killing remaining servers")
	for _, e := range s.registry.snapshot() {
		e.mu.Lock()
		h := e.handle
		e.mu.Unlock()
		if h != nil {
			if err := h.Kill(); err != nil {
				s.logger.Error("Failed to kill server", "server_id", e.id, "error", err)
			}
		}
	}

	select {
	case <-done:
	case <-time.After(stopAllKillWait):
		s.logger.Error("Servers did not exit after kill")
	}
	return ctx.Err()
}

// handleLine relays one console line and applies the parser's outcome.
func (s *Supervisor) handleLine(e *entry, stream Stream, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	isErr := stream == StreamStderr
	if isErr {
		s.console.Warn(line, "server_id", e.id, "source", string(stream))
	} else {
		s.console.Info(line, "server_id", e.id)
	}
	s.emitLog(e.id, line, string(stream))

	out := e.parser.Feed(line)

	if out.RosterDone {
		if e.rosterTimer != nil {
			e.rosterTimer.Stop()
			e.rosterTimer = nil
		}
		s.emitRoster(e.id, out.Roster)
	}

	if out.RosterStarted && s.opts.RosterTimeout > 0 {
		if e.rosterTimer != nil {
			e.rosterTimer.Stop()
		}
		capture := e.parser.Capture()
		e.rosterTimer = time.AfterFunc(s.opts.RosterTimeout, func() {
			s.flushRoster(e, capture)
		})
	}

	if out.Ready && e.state != StateStopping {
		e.state = StateRunning
		s.emitStatus(e)
		s.logger.Info("Server ready", "server_id", e.id, "run_id", e.runID)
	}
}

// flushRoster completes capture if it is still open.
func (s *Supervisor) flushRoster(e *entry, capture uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running() || e.parser.Capture() != capture {
		return
	}
	if roster, ok := e.parser.Flush(); ok {
		s.logger.Debug("Roster timed out", "server_id", e.id, "players", len(roster))
		e.rosterTimer = nil
		s.emitRoster(e.id, roster)
	}
}

// forceKill kills h if it is still e's process after the stop grace period.
func (s *Supervisor) forceKill(e *entry, h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != h || h.Exited() {
		return
	}
	e.killTimer = nil

	s.emitLog(e.id, fmt.Sprintf("Server did not stop within %s, killing it", s.opts.ForceKillTimeout), events.SourceManager)
	if err := h.Kill(); err != nil {
		s.logger.Error("Failed to kill server", "server_id", e.id, "error", err)
	}
}

// watch runs the exit path once the process has exited.
func (s *Supervisor) watch(e *entry) {
	defer s.wg.Done()

	<-e.handle.Done()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimers()
	e.state = StateStopped
	s.registry.remove(e.id, e)

	s.logger.Info("Server stopped", "server_id", e.id, "run_id", e.runID, "exit_code", e.handle.ExitCode())
	s.emitStatus(e)
}

func (s *Supervisor) emitLog(id, message, source string) {
	s.publish(events.LogReceivedEvent{
		ServerID:  id,
		Message:   message,
		IsError:   source != events.SourceStdout,
		Source:    source,
		Timestamp: timestamp(),
	})
}

func (s *Supervisor) emitStatus(e *entry) {
	s.publish(events.StatusChangedEvent{
		ServerID:  e.id,
		State:     string(e.state),
		RunID:     e.runID,
		Timestamp: timestamp(),
	})
}

func (s *Supervisor) emitRoster(id string, players []string) {
	s.publish(events.RosterReceivedEvent{
		ServerID:  id,
		Players:   players,
		Timestamp: timestamp(),
	})
}

func (s *Supervisor) publish(ev events.Event) {
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
