// Package ucisession drives an external UCI chess engine as a supervised
// child process.
//
// A [Session] launches the engine binary, performs the UCI handshake, and
// arbitrates between caller intent (analyze this position, change position,
// stop) and the protocol's strict rules: no new position or search may be
// issued while a search is in flight, and a stop must be answered by a
// bestmove before anything else is sent. Rapid position changes are
// coalesced — intervening requests collapse into exactly one deferred
// restart on the latest intent once the engine becomes available.
//
// # Core Types
//
//   - [Session] — the session facade: lifecycle, operations, event stream
//   - [State] — the analysis state machine's current state
//   - [Event] — state changes, batched search progress, process exit
//   - [SearchResult] — eventual outcome of Go/Stop/Position
//   - [Option] — functional options for [NewSession]
//
// Wire-level vocabulary (identity, option descriptors, search progress,
// best moves) lives in the protocol subpackage.
//
// # Quick Start
//
//	session := ucisession.NewSession()
//	id, err := session.Start(ctx, "/usr/bin/stockfish")
//	if err != nil { log.Fatal(err) }
//	defer session.Kill()
//
//	fmt.Println("engine:", id.Name)
//	<-session.Position("", "e2e4")
//	result := <-session.Go(20)
//	fmt.Println("best:", result.Best.Move)
//
// Search progress arrives batched on [Session.Events] at a fixed interval,
// with an immediate final flush when a search terminates.
package ucisession
