//go:build !windows

package ucisession

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// signalProcess sends sig to a process, returning nil if the process has
// already exited (os.ErrProcessDone).
func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// process owns one external engine process: spawn, write command lines to
// its stdin, expose stdout as a line channel, and terminate. Stderr is
// relayed to the logger only — it is never parsed as protocol.
type process struct {
	cmd   *exec.Cmd
	log   zerolog.Logger
	grace time.Duration

	lines    chan string
	stopRead chan struct{} // closed by Kill to unblock a stuck channel send

	mu    sync.Mutex
	stdin io.WriteCloser

	killOnce   sync.Once
	finishOnce sync.Once
	done       chan struct{} // closed exactly once by finish()
	termErr    error         // set by finish(), read after done closes
}

// startProcess spawns the engine binary and begins pumping its output.
// Failure to launch wraps ErrSpawn.
func startProcess(path string, scannerBuffer int, grace time.Duration, log zerolog.Logger) (*process, error) {
	cmd := exec.Command(path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, path, err)
	}

	p := &process{
		cmd:      cmd,
		log:      log,
		grace:    grace,
		lines:    make(chan string),
		stopRead: make(chan struct{}),
		stdin:    stdin,
		done:     make(chan struct{}),
	}
	go p.readLoop(stdout, scannerBuffer)
	go p.stderrLoop(stderr)
	return p, nil
}

// Lines returns the channel of engine output lines. Closed when the
// process ends; call Err afterwards to distinguish clean exit from failure.
func (p *process) Lines() <-chan string { return p.lines }

// Done returns a channel closed when the process has ended.
func (p *process) Done() <-chan struct{} { return p.done }

// WriteLine appends a line terminator and sends text to the engine's stdin.
func (p *process) WriteLine(text string) error {
	select {
	case <-p.done:
		return ErrNotRunning
	default:
	}

	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return ErrNotRunning
	}
	if _, err := stdin.Write([]byte(text + "\n")); err != nil {
		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	}
	return nil
}

// Kill terminates the process and releases resources. Idempotent.
// SIGTERM first, SIGKILL after the grace period. Blocks until the read
// loop has finished.
func (p *process) Kill() {
	p.killOnce.Do(func() {
		p.mu.Lock()
		if p.stdin != nil {
			_ = p.stdin.Close() // Best-effort: pipe may already be closed.
			p.stdin = nil
		}
		p.mu.Unlock()

		// Unblock readLoop if stuck on a channel send.
		close(p.stopRead)

		_ = signalProcess(p.cmd.Process, syscall.SIGTERM)

		select {
		case <-p.done:
		case <-time.After(p.grace):
			_ = signalProcess(p.cmd.Process, os.Kill)
			<-p.done
		}
	})
	<-p.done
}

// Err returns the terminal error, or nil while still running or after a
// clean exit.
func (p *process) Err() error {
	select {
	case <-p.done:
		return p.termErr
	default:
		return nil
	}
}

// finish sets the terminal error and closes done+lines exactly once.
// done closes first so that Err is meaningful the moment a consumer
// observes the line channel close.
func (p *process) finish(err error) {
	p.finishOnce.Do(func() {
		p.termErr = err
		close(p.done)
		close(p.lines)
	})
}

// readLoop pumps stdout lines until EOF, then reaps the process.
func (p *process) readLoop(stdout io.ReadCloser, scannerBuffer int) {
	var scanErr error

	defer func() {
		waitErr := p.cmd.Wait()
		switch {
		case scanErr != nil:
			waitErr = fmt.Errorf("ucisession: scanner: %w", scanErr)
		default:
			waitErr = wrapExitError(waitErr)
		}
		p.finish(waitErr)
	}()

	scanner := bufio.NewScanner(stdout)
	initCap := min(4096, scannerBuffer)
	scanner.Buffer(make([]byte, 0, initCap), scannerBuffer)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-p.stopRead:
			return
		}
	}
	scanErr = scanner.Err()
}

// stderrLoop relays engine stderr to the logger. Informational only.
func (p *process) stderrLoop(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.log.Debug().Str("stream", "stderr").Msg(scanner.Text())
	}
}

// wrapExitError converts a non-zero *exec.ExitError to *ExitError.
// nil → nil, non-ExitError → passthrough, code 0 → nil (clean exit).
// Preserves the error chain via ExitError.Unwrap.
func wrapExitError(err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return err
	}
	code := ee.ExitCode()
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}
