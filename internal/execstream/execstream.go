// Package execstream runs one external build tool at a time and streams its
// combined output line by line to the UI. The child's lines are delivered in
// order over a channel; a final event carrying the exit code is always the
// last element, after which the channel is closed.
package execstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// State of the runner's single build slot.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

// ErrBusy is returned when a start is attempted while a child is running.
// At most one build/install operation may be active at a time.
var ErrBusy = errors.New("EXE_BUSY: an external operation is already running")

// Event is one element of a session's stream. Non-final events carry one
// output line; the final event carries the exit code.
type Event struct {
	Line     string
	Final    bool
	ExitCode int
}

// Session is one child process run: its display command string and the
// ordered event stream.
type Session struct {
	Command string
	Events  <-chan Event
}

// Runner owns the single running-child slot.
type Runner struct {
	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	lastCmd string
}

// New returns an idle runner.
func New() *Runner { return &Runner{} }

// State returns the current slot state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastCommand returns the display string of the most recent start attempt.
func (r *Runner) LastCommand() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCmd
}

// Start launches name with args, streaming combined stdout/stderr. A second
// start while a child is running returns ErrBusy. A spawn failure does not
// return an error: per the runner contract the session's stream carries an
// error line followed by a final event with a synthetic exit code 1.
func (r *Runner) Start(ctx context.Context, name string, args ...string) (*Session, error) {
	r.mu.Lock()
	if r.state == StateRunning {
		r.mu.Unlock()
		return nil, ErrBusy
	}

	display := displayCommand(name, args)
	r.lastCmd = display

	events := make(chan Event, 256)
	session := &Session{Command: display, Events: events}

	cmd := exec.CommandContext(ctx, name, args...)
	pr, pw, err := os.Pipe()
	if err != nil {
		r.state = StateFailed
		r.mu.Unlock()
		failSession(events, err)
		return session, nil
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		r.state = StateFailed
		r.mu.Unlock()
		failSession(events, err)
		return session, nil
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()
	r.cmd = cmd
	r.state = StateRunning
	r.mu.Unlock()

	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			events <- Event{Line: scanner.Text()}
		}
		scanErr := scanner.Err()
		if scanErr != nil {
			events <- Event{Line: fmt.Sprintf("FATAL ERROR: output truncated: %v", scanErr)}
		}
		// Closing the read end unblocks a child still writing after a
		// scan failure, so Wait cannot hang.
		_ = pr.Close()

		code := 0
		if err := cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				events <- Event{Line: fmt.Sprintf("FATAL ERROR: %v", err)}
				code = 1
			}
		}

		r.mu.Lock()
		r.cmd = nil
		if code == 0 {
			r.state = StateCompleted
		} else {
			r.state = StateFailed
		}
		r.mu.Unlock()

		events <- Event{Final: true, ExitCode: code}
		close(events)
	}()

	return session, nil
}

// Terminate kills any running child. Best-effort: failures are logged, the
// caller is shutting down anyway.
func (r *Runner) Terminate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning || r.cmd == nil || r.cmd.Process == nil {
		return
	}
	if err := r.cmd.Process.Kill(); err != nil {
		log.Warn().Err(err).Msg("could not terminate running process")
	}
}

func failSession(events chan Event, err error) {
	events <- Event{Line: fmt.Sprintf("FATAL ERROR: %v", err)}
	events <- Event{Final: true, ExitCode: 1}
	close(events)
}

func displayCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, arg := range append([]string{name}, args...) {
		if strings.Contains(arg, " ") {
			parts = append(parts, `"`+arg+`"`)
		} else {
			parts = append(parts, arg)
		}
	}
	return strings.Join(parts, " ")
}
