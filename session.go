//go:build !windows

package ucisession

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/enginekit/ucisession/protocol"
)

// Session is the public handle for one engine session. It composes the
// process handle, the protocol parser, the analysis state machine, and the
// progress aggregator, and exposes the operation set plus an event stream.
//
// All operations observe a strict total order: the machine decides what
// protocol text to emit under a single mutex, and writes happen in that
// order, so the engine never sees two searches outstanding at once.
type Session struct {
	opts   Options
	log    zerolog.Logger
	events chan Event
	agg    *aggregator

	mu       sync.Mutex
	m        machine
	proc     *process
	identity protocol.Identity
	readyW   chan error // pending readyok waiter (NewGame); nil if none
}

// NewSession creates a session in the unloaded state. Use Option functions
// to customize timeouts, buffering, and logging.
func NewSession(opts ...Option) *Session {
	o := resolveOptions(opts...)
	s := &Session{
		opts:   o,
		log:    o.Logger,
		events: make(chan Event, o.EventBuffer),
	}
	s.agg = newAggregator(o.FlushInterval, s.emitProgress)
	return s
}

// Events returns the session's event stream: state changes, batched search
// progress, and process exit. The channel is never closed; a consumer that
// stops draining loses events rather than wedging the session.
func (s *Session) Events() <-chan Event { return s.events }

// State returns the analysis state machine's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.state
}

// Identity returns the engine's self-description. Valid after a successful
// Start; immutable until the next Start.
func (s *Session) Identity() protocol.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Start launches the engine binary and performs the UCI handshake:
// uci → uciok (collecting identity and option descriptors), then
// isready → readyok. Fails with ErrSpawn if the binary cannot be launched
// and ErrHandshakeTimeout if either exchange exceeds the handshake timeout.
func (s *Session) Start(ctx context.Context, path string) (protocol.Identity, error) {
	s.mu.Lock()
	if s.m.state != StateUnloaded {
		s.mu.Unlock()
		return protocol.Identity{}, fmt.Errorf("%w: session already started", ErrInvalidTransition)
	}
	p, err := startProcess(path, s.opts.ScannerBuffer, s.opts.GracePeriod, s.log)
	if err != nil {
		s.mu.Unlock()
		return protocol.Identity{}, err
	}
	s.proc = p
	s.mu.Unlock()

	id, err := s.handshake(ctx, p)
	if err != nil {
		p.Kill()
		s.mu.Lock()
		s.proc = nil
		s.mu.Unlock()
		return protocol.Identity{}, err
	}

	s.mu.Lock()
	s.identity = id
	s.execute(s.m.onStarted())
	s.mu.Unlock()

	go s.readLoop(p)
	return id, nil
}

// handshake drives the uci/uciok and isready/readyok exchanges inline,
// before the session's reader goroutine exists. A single timeout bounds
// the whole exchange.
func (s *Session) handshake(ctx context.Context, p *process) (protocol.Identity, error) {
	timer := time.NewTimer(s.opts.HandshakeTimeout)
	defer timer.Stop()

	if err := p.WriteLine("uci"); err != nil {
		return protocol.Identity{}, err
	}

	var id protocol.Identity
	awaiting := "uciok"
	for {
		select {
		case line, ok := <-p.Lines():
			if !ok {
				return protocol.Identity{}, fmt.Errorf("%w during handshake: %w", ErrEngineExited, p.Err())
			}
			line = strings.TrimSpace(line)
			switch {
			case line == awaiting && awaiting == "uciok":
				if err := p.WriteLine("isready"); err != nil {
					return protocol.Identity{}, err
				}
				awaiting = "readyok"
			case line == awaiting && awaiting == "readyok":
				return id, nil
			case strings.HasPrefix(line, "id "):
				if field, value, ok := protocol.ParseID(line); ok {
					switch field {
					case "name":
						id.Name = value
					case "author":
						id.Author = value
					}
				}
			case strings.HasPrefix(line, "option "):
				opt, ok := protocol.ParseOption(line)
				if !ok {
					// Option discovery degrades gracefully; one bad line
					// must not abort the handshake.
					s.log.Warn().Str("line", line).Msg("malformed option line dropped")
					continue
				}
				id.Options = append(id.Options, opt)
			}

		case <-timer.C:
			return protocol.Identity{}, fmt.Errorf("%w: no %s within %s", ErrHandshakeTimeout, awaiting, s.opts.HandshakeTimeout)

		case <-ctx.Done():
			return protocol.Identity{}, ctx.Err()
		}
	}
}

// Kill terminates the engine process and releases resources. Idempotent.
// The session returns to the unloaded state via the reader goroutine once
// the process has ended.
func (s *Session) Kill() {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p != nil {
		p.Kill()
	}
}

// Go requests a search. A positive depth bounds the search and the returned
// channel resolves with the eventual best move; depth <= 0 requests an
// open-ended search and resolves immediately, since no deterministic answer
// is expected soon. Issued while a search already runs, Go is a no-op.
func (s *Session) Go(depth int) <-chan SearchResult {
	w := newWaiter()
	s.mu.Lock()
	s.execute(s.m.onGo(depth, w))
	s.mu.Unlock()
	return w
}

// Stop cancels the search in flight. The returned channel resolves once the
// engine acknowledges with a bestmove; while idle it resolves immediately
// with no protocol write. Idempotent: stopping twice sends one stop line.
func (s *Session) Stop() <-chan SearchResult {
	w := newWaiter()
	s.mu.Lock()
	s.execute(s.m.onStop(w))
	s.mu.Unlock()
	return w
}

// Position sets the position for the next search. fen may be empty or
// "startpos" for the standard initial position; moves are appended in
// order. While a search runs the position is stored as pending — last
// write wins — and the search restarts on the latest intent once the
// engine acknowledges the stop. The returned channel resolves once a
// bestmove is received, or immediately while idle.
func (s *Session) Position(fen string, moves ...string) <-chan SearchResult {
	w := newWaiter()
	line := protocol.PositionCommand(fen, moves)
	s.mu.Lock()
	s.execute(s.m.onPosition(line, w))
	s.mu.Unlock()
	return w
}

// SetOption sends a setoption command. Valid only while idle; in any other
// state it fails with ErrInvalidTransition and writes nothing.
func (s *Session) SetOption(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fx, err := s.m.onSetOption(name, value)
	if err != nil {
		return err
	}
	s.execute(fx)
	return nil
}

// NewGame tells the engine to discard search state carried over from the
// previous game. If a search is in flight it is stopped and its bestmove
// awaited first; a coalesced restart queued behind a stop is abandoned, since
// the position it carries belongs to the game being discarded. Then
// ucinewgame and isready are sent and the readyok awaited under the
// handshake timeout.
func (s *Session) NewGame(ctx context.Context) error {
	w := newWaiter()
	s.mu.Lock()
	if s.m.state == StateUnloaded {
		s.mu.Unlock()
		return fmt.Errorf("%w: no engine loaded", ErrInvalidTransition)
	}
	s.execute(s.m.onNewGame(w))
	s.mu.Unlock()

	if res := <-w; res.Err != nil {
		return res.Err
	}

	ready := make(chan error, 1)
	s.mu.Lock()
	if s.m.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: session busy", ErrInvalidTransition)
	}
	if s.readyW != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: newgame already in progress", ErrInvalidTransition)
	}
	s.readyW = ready
	s.writeLine("ucinewgame")
	s.writeLine("isready")
	s.mu.Unlock()

	timer := time.NewTimer(s.opts.HandshakeTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		return err
	case <-timer.C:
		s.clearReady(ready)
		return fmt.Errorf("%w: no readyok within %s", ErrHandshakeTimeout, s.opts.HandshakeTimeout)
	case <-ctx.Done():
		s.clearReady(ready)
		return ctx.Err()
	}
}

// clearReady unregisters a readyok waiter that stopped waiting.
func (s *Session) clearReady(ready chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readyW == ready {
		s.readyW = nil
	}
}

// execute carries out a transition's effects: protocol writes in the exact
// order the machine decided, aggregator directives, waiter resolutions, and
// notifications. Must be called with s.mu held.
func (s *Session) execute(fx effects) {
	if fx.warn != "" {
		s.log.Warn().Str("state", s.m.state.String()).Msg(fx.warn)
	}
	if fx.resetBuffer {
		s.agg.reset()
	}
	for _, line := range fx.send {
		s.writeLine(line)
	}
	if fx.searchEnded {
		s.agg.finish()
	}
	if fx.searchStarted {
		s.agg.start()
	}
	for _, c := range fx.complete {
		c.w <- c.res
	}
	if fx.stateChanged {
		s.emit(Event{Type: EventStateChanged, From: fx.prev, To: s.m.state})
	}
}

// writeLine sends one protocol line to the engine. A failed write is
// logged, not propagated: the process is going down and the reader
// goroutine rejects everything outstanding when it does.
func (s *Session) writeLine(line string) {
	if s.proc == nil {
		s.log.Error().Str("line", line).Msg("protocol write with no engine process")
		return
	}
	s.log.Debug().Str("line", line).Msg("engine <-")
	if err := s.proc.WriteLine(line); err != nil {
		s.log.Error().Err(err).Str("line", line).Msg("protocol write failed")
	}
}

// readLoop is the session's single reader: it consumes parsed engine lines
// for the life of the process, then performs exit bookkeeping.
func (s *Session) readLoop(p *process) {
	for line := range p.Lines() {
		s.handleLine(line)
	}

	termErr := p.Err()
	exitErr := ErrEngineExited
	if termErr != nil {
		exitErr = fmt.Errorf("%w: %w", ErrEngineExited, termErr)
	}

	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	if s.readyW != nil {
		s.readyW <- exitErr
		s.readyW = nil
	}
	s.execute(s.m.onExit(exitErr))
	s.mu.Unlock()

	s.emit(Event{Type: EventExited, Err: termErr})
}

// handleLine routes one engine output line. Progress lines feed the
// aggregator; bestmove drives the state machine; readyok completes a
// pending NewGame. Anything else is protocol noise after the handshake.
func (s *Session) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	switch {
	case strings.HasPrefix(line, "info"):
		sp, err := protocol.ParseInfo(line)
		if err != nil {
			// Progress lines are not load-bearing; tolerate and move on.
			s.log.Warn().Err(err).Str("line", line).Msg("unparsable progress line dropped")
			return
		}
		s.agg.add(sp)

	case strings.HasPrefix(line, "bestmove"):
		bm, err := protocol.ParseBestMove(line)
		s.mu.Lock()
		if err != nil {
			violation := fmt.Errorf("%w: %w", ErrProtocol, err)
			s.log.Error().Err(err).Str("line", line).Msg("unparsable bestmove line")
			s.execute(s.m.onProtocolViolation(violation))
			s.mu.Unlock()
			s.emit(Event{Type: EventError, Err: violation})
			return
		}
		s.execute(s.m.onBestMove(bm))
		s.mu.Unlock()

	case line == "readyok":
		s.mu.Lock()
		if s.readyW != nil {
			s.readyW <- nil
			s.readyW = nil
		}
		s.mu.Unlock()

	default:
		s.log.Debug().Str("line", line).Msg("engine ->")
	}
}

// emitProgress is the aggregator's flush sink.
func (s *Session) emitProgress(batch []protocol.SearchProgress) {
	s.emit(Event{Type: EventProgress, Progress: batch})
}

// emit delivers an event without ever blocking the session. A consumer
// that has fallen behind loses the event; the warn log says so.
func (s *Session) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("type", string(ev.Type)).Msg("event dropped: consumer not draining")
	}
}
