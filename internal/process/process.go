package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/logging"
)

// ErrSpawn is returned when the operating system refuses to start the
// resolved command.
var ErrSpawn = errors.New("failed to spawn process")

// ErrStdinClosed is returned by WriteLine after the process has exited.
var ErrStdinClosed = errors.New("process input closed")

// maxLineSize bounds a single console line.
const maxLineSize = 1024 * 1024

// outputDrainTimeout bounds how long output is read after the process
// exited. Descendants that inherited the output pipes can keep them open
// long after the server itself is gone.
const outputDrainTimeout = 500 * time.Millisecond

// Stream identifies the output stream a line was read from.
type Stream string

// Output streams.
const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LineHandler receives output lines from the subprocess. It is called
// concurrently from the stdout and stderr readers.
type LineHandler func(stream Stream, line string)

// Handle is a running child process with its input stream and readers.
type Handle struct {
	id        string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdinMu   sync.Mutex
	closed    bool
	onLine    LineHandler
	logger    logging.Logger
	startedAt time.Time
	done      chan struct{}
	exitCode  int
	exitErr   error
}

// Spawn starts spec and begins reading both output streams. Lines are
// delivered to onLine until EOF. Done is closed once the process was reaped
// and its output drained, or outputDrainTimeout after the exit if
// something else still holds the pipes open.
func Spawn(id string, spec *launch.CommandSpec, onLine LineHandler, logger logging.Logger) (*Handle, error) {
	if spec == nil || spec.Path == "" {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrSpawn, err)
	}
	// Plain OS pipes instead of StdoutPipe so Wait returns when the process
	// exits, not when every holder of the write end has closed it.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdout, stdoutW)
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	closeAll(stdoutW, stderrW)
	if err != nil {
		closeAll(stdout, stderr)
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, spec.Path, err)
	}

	h := &Handle{
		id:        id,
		cmd:       cmd,
		stdin:     stdin,
		onLine:    onLine,
		logger:    logger,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	logger.Info("Process started", "server_id", id, "pid", cmd.Process.Pid, "command", spec.String())

	outputDone := make(chan struct{}, 2)
	go func() {
		h.streamOutput(stdout, StreamStdout)
		outputDone <- struct{}{}
	}()
	go func() {
		h.streamOutput(stderr, StreamStderr)
		outputDone <- struct{}{}
	}()

	go h.wait(outputDone, stdout, stderr)

	return h, nil
}

// PID returns the operating system process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// StartedAt returns the time the process was spawned.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Done is closed once the process has exited and its output is drained or
// the drain timed out.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether Done has been closed.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code. Only meaningful after Done.
func (h *Handle) ExitCode() int {
	return h.exitCode
}

// ExitErr returns the error reported by Wait. Only meaningful after Done.
func (h *Handle) ExitErr() error {
	return h.exitErr
}

// WriteLine writes text followed by a newline to the process input.
func (h *Handle) WriteLine(text string) error {
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()

	if h.closed {
		return ErrStdinClosed
	}
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		return fmt.Errorf("failed to write to process %s: %w", h.id, err)
	}
	return nil
}

// Kill forcibly terminates the process and its process group.
func (h *Handle) Kill() error {
	if h.Exited() {
		return nil
	}
	h.logger.Warn("Killing process", "server_id", h.id, "pid", h.cmd.Process.Pid)
	if err := killProcess(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %s: %w", h.id, err)
	}
	return nil
}

// wait reaps the process, then drains its output before closing done.
func (h *Handle) wait(outputDone <-chan struct{}, readers ...*os.File) {
	err := h.cmd.Wait()
	h.exitErr = err
	h.exitCode = exitCodeFromError(err)

	h.stdinMu.Lock()
	h.closed = true
	_ = h.stdin.Close()
	h.stdinMu.Unlock()

	pending := len(readers)
	pending -= drainOutput(outputDone, pending, outputDrainTimeout)
	if pending > 0 {
		h.logger.Debug("Output still open after exit, closing it", "server_id", h.id, "streams", pending)
		closeAll(readers...)
		drainOutput(outputDone, pending, outputDrainTimeout)
	} else {
		closeAll(readers...)
	}

	if err != nil && h.exitCode == 1 {
		h.logger.Debug("Process exited with error", "server_id", h.id, "error", err)
	}
	h.logger.Info("Process exited", "server_id", h.id, "exit_code", h.exitCode)

	close(h.done)
}

// drainOutput waits for up to n readers to finish and returns how many did.
func drainOutput(outputDone <-chan struct{}, n int, timeout time.Duration) int {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	finished := 0
	for finished < n {
		select {
		case <-outputDone:
			finished++
		case <-timer.C:
			return finished
		}
	}
	return finished
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput delivers lines until EOF. A read error ends line delivery
// but the stream is still drained so the child never blocks on a full pipe.
func (h *Handle) streamOutput(reader io.Reader, stream Stream) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if h.onLine != nil {
			h.onLine(stream, line)
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return
		}
		h.logger.Warn("Error reading output", "server_id", h.id, "source", string(stream), "error", err)
		_, _ = io.Copy(io.Discard, reader)
	}
}
