package ucisession

import (
	"github.com/enginekit/ucisession/protocol"
)

// State is the analysis state machine's current state. Exactly one engine
// process and one logical search may be active per session.
type State int

const (
	// StateUnloaded means no engine process is attached.
	StateUnloaded State = iota

	// StateIdle means the engine is handshaken and accepting commands.
	StateIdle

	// StateRunning means a search is in flight.
	StateRunning

	// StateStoppingToIdle means a stop was issued and the session returns
	// to idle once the engine acknowledges with a bestmove.
	StateStoppingToIdle

	// StateStoppingToRun means a stop was issued and a newer position or
	// depth is queued; the search restarts on the latest intent once the
	// engine acknowledges with a bestmove.
	StateStoppingToRun
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStoppingToIdle:
		return "stopping_to_idle"
	case StateStoppingToRun:
		return "stopping_to_run"
	default:
		return "unknown"
	}
}

// waiter is a one-shot resolution channel for a suspending operation.
// Buffered so the machine never blocks on a caller that has not yet
// started receiving.
type waiter chan SearchResult

func newWaiter() waiter { return make(waiter, 1) }

// pendingIntent holds the position/depth requested while the engine cannot
// yet accept it. Coalesced, last write wins — never queued.
type pendingIntent struct {
	position string // rendered position command; empty = none
	depth    int
	hasDepth bool // depth is only meaningful while stopping-to-run
}

// completion pairs a waiter with the result it resolves to.
type completion struct {
	w   waiter
	res SearchResult
}

// effects is everything a transition decided, returned as data and executed
// by the Session: protocol writes in order, waiter resolutions, aggregator
// directives, and notifications. The machine itself performs no I/O.
type effects struct {
	send     []string
	complete []completion

	searchStarted bool // aggregator: begin interval flushing
	searchEnded   bool // aggregator: final flush, cancel the timer
	resetBuffer   bool // aggregator: drop stale in-flight records

	stateChanged bool
	prev         State

	warn string // diagnostic only, never an error
}

// machine is the session's control core. It owns the session state and
// pending intent exclusively; no other component mutates them. All methods
// must be called under the session mutex.
//
// Waiters come in two classes. Stop waiters (from Stop and Position) await
// the end of the current search cycle and resolve on the very next
// bestmove, even one belonging to a superseded search. Result waiters
// (from a bounded Go) await the answer to their own search and are carried
// through coalesced restarts, resolving only with a bestmove that actually
// terminates a search.
type machine struct {
	state       State
	pending     pendingIntent
	stopSent    bool // stop written and not yet acknowledged by a bestmove
	searchDepth int  // depth of the search in flight; 0 = open-ended

	stopWaiters   []waiter
	resultWaiters []waiter
}

// moveTo records a transition into the effect set.
func (m *machine) moveTo(next State, fx *effects) {
	if m.state == next {
		return
	}
	fx.prev = m.state
	fx.stateChanged = true
	m.state = next
}

// completeAll drains both waiter tables into the effect set.
func (m *machine) completeAll(res SearchResult, fx *effects) {
	for _, w := range m.stopWaiters {
		fx.complete = append(fx.complete, completion{w: w, res: res})
	}
	for _, w := range m.resultWaiters {
		fx.complete = append(fx.complete, completion{w: w, res: res})
	}
	m.stopWaiters = nil
	m.resultWaiters = nil
}

// requestStop writes stop unless one is already confirmed in flight.
// Tracking the write explicitly (rather than inferring it from state)
// keeps a session recoverable if an earlier transition never got its
// stop onto the wire.
func (m *machine) requestStop(fx *effects) {
	if m.stopSent {
		return
	}
	fx.send = append(fx.send, "stop")
	m.stopSent = true
}

// onStarted marks the handshake complete.
func (m *machine) onStarted() effects {
	var fx effects
	m.moveTo(StateIdle, &fx)
	return fx
}

// onGo handles a search request. depth <= 0 requests an open-ended search,
// which resolves w immediately: no deterministic best move is expected soon.
func (m *machine) onGo(depth int, w waiter) effects {
	var fx effects
	switch m.state {
	case StateUnloaded:
		fx.complete = append(fx.complete, completion{w: w, res: SearchResult{Err: ErrInvalidTransition}})

	case StateIdle:
		if m.pending.position != "" {
			fx.send = append(fx.send, m.pending.position)
			m.pending.position = ""
		}
		fx.send = append(fx.send, protocol.GoCommand(depth))
		fx.searchStarted = true
		m.searchDepth = max(depth, 0)
		m.enrollOrResolve(depth, w, &fx)
		m.moveTo(StateRunning, &fx)

	case StateRunning:
		fx.warn = "go ignored: search already running"
		fx.complete = append(fx.complete, completion{w: w})

	case StateStoppingToIdle:
		// No new position came with this go; the table keeps the state
		// unchanged and the request rides on the stop already in flight.
		m.enrollOrResolve(depth, w, &fx)

	case StateStoppingToRun:
		m.pending.depth = depth
		m.pending.hasDepth = true
		m.enrollOrResolve(depth, w, &fx)
	}
	return fx
}

func (m *machine) enrollOrResolve(depth int, w waiter, fx *effects) {
	if depth > 0 {
		m.resultWaiters = append(m.resultWaiters, w)
		return
	}
	fx.complete = append(fx.complete, completion{w: w})
}

// onStop handles a cancellation request. Idempotent: a second stop while
// already stopping performs no additional protocol write.
func (m *machine) onStop(w waiter) effects {
	var fx effects
	switch m.state {
	case StateUnloaded:
		fx.complete = append(fx.complete, completion{w: w, res: SearchResult{Err: ErrInvalidTransition}})

	case StateIdle:
		fx.complete = append(fx.complete, completion{w: w})

	case StateRunning:
		m.requestStop(&fx)
		m.stopWaiters = append(m.stopWaiters, w)
		m.moveTo(StateStoppingToIdle, &fx)

	case StateStoppingToIdle, StateStoppingToRun:
		m.requestStop(&fx)
		m.stopWaiters = append(m.stopWaiters, w)
	}
	return fx
}

// onPosition handles a position change. position is the rendered protocol
// command. While the engine is busy the position is stored as pending —
// last write wins — and the search is stopped so it can restart on the
// latest intent.
func (m *machine) onPosition(position string, w waiter) effects {
	var fx effects
	switch m.state {
	case StateUnloaded:
		fx.complete = append(fx.complete, completion{w: w, res: SearchResult{Err: ErrInvalidTransition}})
		return fx

	case StateIdle:
		// Not sent yet; flushed when the next go is issued.
		m.pending.position = position
		fx.complete = append(fx.complete, completion{w: w})

	case StateRunning:
		// The interrupted search's depth carries over, so the coalesced
		// restart repeats the caller's original request on the new position.
		m.pending.position = position
		m.pending.depth = m.searchDepth
		m.pending.hasDepth = m.searchDepth > 0
		m.requestStop(&fx)
		m.stopWaiters = append(m.stopWaiters, w)
		m.moveTo(StateStoppingToRun, &fx)

	case StateStoppingToIdle:
		m.pending.position = position
		m.requestStop(&fx)
		m.stopWaiters = append(m.stopWaiters, w)
		m.moveTo(StateStoppingToRun, &fx)

	case StateStoppingToRun:
		m.pending.position = position
		m.stopWaiters = append(m.stopWaiters, w)
	}
	fx.resetBuffer = true
	return fx
}

// onSetOption handles an engine option change. Valid only while idle; the
// protocol forbids reconfiguring a searching engine.
func (m *machine) onSetOption(name, value string) (effects, error) {
	var fx effects
	if m.state != StateIdle {
		return fx, ErrInvalidTransition
	}
	fx.send = append(fx.send, protocol.SetOptionCommand(name, value))
	return fx, nil
}

// onNewGame prepares the machine for a game reset. Any search in flight is
// stopped, and a coalesced restart queued behind a stop is abandoned: the
// pending intent refers to the game being discarded. w resolves once the
// engine has acknowledged and the machine is idle again.
func (m *machine) onNewGame(w waiter) effects {
	var fx effects
	switch m.state {
	case StateUnloaded:
		fx.complete = append(fx.complete, completion{w: w, res: SearchResult{Err: ErrInvalidTransition}})

	case StateIdle:
		m.pending = pendingIntent{}
		fx.complete = append(fx.complete, completion{w: w})

	case StateRunning, StateStoppingToIdle, StateStoppingToRun:
		m.pending = pendingIntent{}
		m.requestStop(&fx)
		m.stopWaiters = append(m.stopWaiters, w)
		m.moveTo(StateStoppingToIdle, &fx)
	}
	return fx
}

// onBestMove handles the engine's search-terminating answer.
//
// In StateStoppingToRun the answer belongs to a superseded search: the
// pending position and go are sent instead of surfacing it as the answer
// for the new position. Stop waiters resolve now — the search cycle they
// were waiting out has ended and the new position is on the wire — while
// result waiters stay enrolled until the restarted search produces its
// own bestmove.
func (m *machine) onBestMove(bm protocol.BestMove) effects {
	var fx effects
	switch m.state {
	case StateRunning, StateStoppingToIdle:
		m.completeAll(SearchResult{Best: bm}, &fx)
		m.pending = pendingIntent{}
		m.stopSent = false
		m.searchDepth = 0
		fx.searchEnded = true
		m.moveTo(StateIdle, &fx)

	case StateStoppingToRun:
		if m.pending.position != "" {
			fx.send = append(fx.send, m.pending.position)
		}
		depth := 0
		if m.pending.hasDepth {
			depth = m.pending.depth
		}
		fx.send = append(fx.send, protocol.GoCommand(depth))
		m.searchDepth = max(depth, 0)
		for _, w := range m.stopWaiters {
			fx.complete = append(fx.complete, completion{w: w, res: SearchResult{Best: bm}})
		}
		m.stopWaiters = nil
		m.pending = pendingIntent{}
		m.stopSent = false
		fx.searchEnded = true
		fx.searchStarted = true
		m.moveTo(StateRunning, &fx)

	default:
		fx.warn = "bestmove ignored: no search in flight"
	}
	return fx
}

// onProtocolViolation handles an unparsable bestmove line. The session
// cannot know whether the search finished, so outstanding waiters are
// rejected and the machine returns to idle rather than waiting forever.
func (m *machine) onProtocolViolation(err error) effects {
	var fx effects
	m.completeAll(SearchResult{Err: err}, &fx)
	m.pending = pendingIntent{}
	m.stopSent = false
	fx.searchEnded = true
	m.moveTo(StateIdle, &fx)
	return fx
}

// onExit handles the engine process ending. Outstanding waiters are
// rejected, never left pending forever. The session does not restart the
// process.
func (m *machine) onExit(err error) effects {
	var fx effects
	m.completeAll(SearchResult{Err: err}, &fx)
	m.pending = pendingIntent{}
	m.stopSent = false
	fx.searchEnded = true
	m.moveTo(StateUnloaded, &fx)
	return fx
}
