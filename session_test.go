//go:build !windows

package ucisession

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeEngineScript is a minimal UCI engine as a shell script. It answers the
// handshake, replies to bounded searches immediately, keeps open-ended
// searches running until stopped, and appends every command it receives to
// a log file so tests can assert on the exact wire traffic.
const fakeEngineScript = `CMDLOG="%LOG%"
while read line; do
  echo "$line" >> "$CMDLOG"
  case "$line" in
    uci)
      echo "id name FakeFish 1.0"
      echo "id author the fakefish developers"
      echo "option name Hash type spin default 16 min 1 max 1024"
      echo "option name malformed without keyword"
      echo "uciok"
      ;;
    isready)
      echo "readyok"
      ;;
    "go depth"*)
      echo "info depth 12 seldepth 18 multipv 1 score cp 34 nodes 500000 nps 2500000 pv e2e4 e7e5"
      echo "bestmove e2e4 ponder e7e5"
      ;;
    "go infinite")
      echo "info depth 1 multipv 1 score cp 10 nodes 50 pv d2d4 d7d5"
      ;;
    stop)
      sleep 0.2
      echo "bestmove e2e4 ponder e7e5"
      ;;
  esac
done
`

// fakeEngine writes the scripted engine and returns its path plus the
// command log path.
func fakeEngine(t *testing.T) (enginePath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "cmds.log")
	body := strings.ReplaceAll(fakeEngineScript, "%LOG%", logPath)
	enginePath = filepath.Join(dir, "fakefish.sh")
	if err := os.WriteFile(enginePath, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return enginePath, logPath
}

func startedSession(t *testing.T, opts ...Option) (*Session, string) {
	t.Helper()
	enginePath, logPath := fakeEngine(t)
	s := NewSession(opts...)
	if _, err := s.Start(testCtx(t), enginePath); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Kill)
	return s, logPath
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// awaitResult receives one SearchResult with a timeout.
func awaitResult(t *testing.T, ch <-chan SearchResult) SearchResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("operation did not resolve within 10s")
		return SearchResult{}
	}
}

// awaitEvent drains the event stream until an event of the given type
// arrives.
func awaitEvent(t *testing.T, s *Session, typ EventType) Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event within 10s", typ)
		}
	}
}

// engineLog reads the commands the fake engine has received so far.
func engineLog(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read command log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestSession_StartHandshake(t *testing.T) {
	s, _ := startedSession(t)

	id := s.Identity()
	if id.Name != "FakeFish 1.0" {
		t.Errorf("Name = %q", id.Name)
	}
	if id.Author != "the fakefish developers" {
		t.Errorf("Author = %q", id.Author)
	}
	// One well-formed option; the malformed line is dropped, not fatal.
	if len(id.Options) != 1 || id.Options[0].Name != "Hash" {
		t.Errorf("Options = %+v, want exactly [Hash]", id.Options)
	}
	if st := s.State(); st != StateIdle {
		t.Errorf("State = %v, want idle", st)
	}

	ev := awaitEvent(t, s, EventStateChanged)
	if ev.From != StateUnloaded || ev.To != StateIdle {
		t.Errorf("transition %v -> %v, want unloaded -> idle", ev.From, ev.To)
	}
}

func TestSession_StartBadPath(t *testing.T) {
	s := NewSession()
	_, err := s.Start(testCtx(t), filepath.Join(t.TempDir(), "missing-engine"))
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("err = %v, want ErrSpawn", err)
	}
	if st := s.State(); st != StateUnloaded {
		t.Errorf("State = %v, want unloaded after failed start", st)
	}
}

func TestSession_StartTwice(t *testing.T) {
	s, _ := startedSession(t)
	if _, err := s.Start(testCtx(t), "/nonexistent"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestSession_HandshakeTimeout(t *testing.T) {
	// An engine that never answers the handshake.
	path := filepath.Join(t.TempDir(), "mute.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nwhile read line; do :; done\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := NewSession(WithHandshakeTimeout(100 * time.Millisecond))
	_, err := s.Start(testCtx(t), path)
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Errorf("err = %v, want ErrHandshakeTimeout", err)
	}
	if st := s.State(); st != StateUnloaded {
		t.Errorf("State = %v, want unloaded", st)
	}
}

func TestSession_BoundedSearch(t *testing.T) {
	s, _ := startedSession(t, WithFlushInterval(10*time.Millisecond))

	if res := awaitResult(t, s.Position("", "e2e4")); res.Err != nil {
		t.Fatalf("Position: %v", res.Err)
	}
	res := awaitResult(t, s.Go(20))
	if res.Err != nil {
		t.Fatalf("Go: %v", res.Err)
	}
	if res.Best.Move != "e2e4" || res.Best.Ponder != "e7e5" {
		t.Errorf("Best = %+v", res.Best)
	}
	if st := s.State(); st != StateIdle {
		t.Errorf("State = %v, want idle after bestmove", st)
	}

	// The final flush must carry the search's progress.
	ev := awaitEvent(t, s, EventProgress)
	if len(ev.Progress) != 1 {
		t.Fatalf("Progress = %+v, want one candidate", ev.Progress)
	}
	sp := ev.Progress[0]
	if sp.Depth != 12 || sp.Score == nil || sp.Score.Value != 34 {
		t.Errorf("progress record = %+v", sp)
	}
}

func TestSession_SetOptionStates(t *testing.T) {
	s, logPath := startedSession(t)

	if err := s.SetOption("Hash", "256"); err != nil {
		t.Fatalf("SetOption while idle: %v", err)
	}

	<-s.Go(0) // open-ended search resolves immediately, state is now running
	if st := s.State(); st != StateRunning {
		t.Fatalf("State = %v, want running", st)
	}
	if err := s.SetOption("Hash", "512"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}

	if res := awaitResult(t, s.Stop()); res.Err != nil {
		t.Fatalf("Stop: %v", res.Err)
	}

	// The rejected setoption must never have reached the engine.
	for _, line := range engineLog(t, logPath) {
		if line == "setoption name Hash value 512" {
			t.Error("setoption reached the engine despite invalid state")
		}
	}
}

func TestSession_StopWhileIdle(t *testing.T) {
	s, logPath := startedSession(t)

	res := awaitResult(t, s.Stop())
	if res.Err != nil || res.Best.Move != "" {
		t.Errorf("res = %+v, want immediate zero resolution", res)
	}
	if st := s.State(); st != StateIdle {
		t.Errorf("State = %v, want idle", st)
	}
	for _, line := range engineLog(t, logPath) {
		if line == "stop" {
			t.Error("stop reached the engine while idle")
		}
	}
}

func TestSession_CoalescedPositionChanges(t *testing.T) {
	s, logPath := startedSession(t)

	<-s.Go(0)
	p1 := s.Position("4k3/8/8/8/8/8/8/4K3 w - - 0 1")
	p2 := s.Position("4k3/8/8/8/8/8/8/3QK3 w - - 0 1")

	// Both position futures resolve once the coalescing stop is answered
	// and the latest position is on the wire.
	for _, ch := range []<-chan SearchResult{p1, p2} {
		if res := awaitResult(t, ch); res.Err != nil {
			t.Errorf("res = %+v, want clean resolution", res)
		}
	}
	// The search restarted on the latest intent.
	if st := s.State(); st != StateRunning {
		t.Fatalf("State = %v, want running after coalesced restart", st)
	}
	if res := awaitResult(t, s.Stop()); res.Err != nil || res.Best.Move != "e2e4" {
		t.Errorf("stop res = %+v, want e2e4", res)
	}

	var stops, goes int
	sawP1, sawP2 := false, false
	for _, line := range engineLog(t, logPath) {
		switch {
		case line == "stop":
			stops++
		case strings.HasPrefix(line, "go"):
			goes++
		case strings.Contains(line, "3QK3"):
			sawP2 = true
		case strings.HasPrefix(line, "position fen 4k3"):
			sawP1 = true
		}
	}
	// One go to start, exactly one stop for two rapid position changes,
	// one go for the coalesced restart, one final stop — and only the
	// latest position ever on the wire.
	if stops != 2 {
		t.Errorf("stops = %d, want 2", stops)
	}
	if goes != 2 {
		t.Errorf("go commands = %d, want 2", goes)
	}
	if sawP1 {
		t.Error("superseded position reached the engine")
	}
	if !sawP2 {
		t.Error("latest position never reached the engine")
	}
}

func TestSession_NewGame(t *testing.T) {
	s, logPath := startedSession(t)

	if err := s.NewGame(testCtx(t)); err != nil {
		t.Fatalf("NewGame while idle: %v", err)
	}

	// NewGame while a search runs stops it first.
	<-s.Go(0)
	if err := s.NewGame(testCtx(t)); err != nil {
		t.Fatalf("NewGame while running: %v", err)
	}
	if st := s.State(); st != StateIdle {
		t.Errorf("State = %v, want idle", st)
	}

	log := engineLog(t, logPath)
	var newgames int
	for _, line := range log {
		if line == "ucinewgame" {
			newgames++
		}
	}
	if newgames != 2 {
		t.Errorf("ucinewgame sent %d times, want 2", newgames)
	}
}

func TestSession_NewGameWhileRestartPending(t *testing.T) {
	s, logPath := startedSession(t)

	// A position change while running queues a coalesced restart behind the
	// stop. NewGame must abandon that restart and still reach idle.
	<-s.Go(0)
	pending := s.Position("4k3/8/8/8/8/8/8/4K3 w - - 0 1")

	if err := s.NewGame(testCtx(t)); err != nil {
		t.Fatalf("NewGame with restart pending: %v", err)
	}
	if st := s.State(); st != StateIdle {
		t.Errorf("State = %v, want idle", st)
	}
	if res := awaitResult(t, pending); res.Err != nil {
		t.Errorf("position res = %+v, want clean resolution", res)
	}

	var newgames bool
	for _, line := range engineLog(t, logPath) {
		switch {
		case line == "ucinewgame":
			newgames = true
		case strings.HasPrefix(line, "position"):
			t.Errorf("abandoned position reached the engine: %q", line)
		}
	}
	if !newgames {
		t.Error("ucinewgame never reached the engine")
	}
}

func TestSession_KillRejectsPending(t *testing.T) {
	s, _ := startedSession(t)

	<-s.Go(0)
	pending := s.Position("4k3/8/8/8/8/8/8/4K3 w - - 0 1")

	// Kill before the engine answers the coalescing stop.
	s.Kill()

	res := awaitResult(t, pending)
	if !errors.Is(res.Err, ErrEngineExited) {
		t.Errorf("err = %v, want ErrEngineExited", res.Err)
	}
	awaitEvent(t, s, EventExited)
	if st := s.State(); st != StateUnloaded {
		t.Errorf("State = %v, want unloaded", st)
	}
}

func TestSession_ProtocolViolationOnBestMove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.sh")
	script := `#!/bin/sh
while read line; do
  case "$line" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    stop) echo "bestmove" ;;
  esac
done
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	s := NewSession()
	if _, err := s.Start(testCtx(t), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Kill)

	<-s.Go(0)
	res := awaitResult(t, s.Stop())
	if !errors.Is(res.Err, ErrProtocol) {
		t.Errorf("err = %v, want ErrProtocol", res.Err)
	}
	ev := awaitEvent(t, s, EventError)
	if !errors.Is(ev.Err, ErrProtocol) {
		t.Errorf("event err = %v, want ErrProtocol", ev.Err)
	}
	if st := s.State(); st != StateIdle {
		t.Errorf("State = %v, want idle (session remains usable)", st)
	}
}
