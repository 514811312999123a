package ucisession

import (
	"sort"
	"sync"
	"time"

	"github.com/enginekit/ucisession/protocol"
)

// aggregator converts the per-iteration firehose of search progress records
// into a rate-limited batch stream. Records are keyed by the first move of
// their principal variation (the candidate move under evaluation); a stored
// record is replaced only by one of equal or greater depth, so a stale,
// reordered line never overwrites a better one.
//
// The buffer is owned exclusively by the aggregator. One flush goroutine
// exists per search lifetime, stopped on search end, so no timer dangles
// across searches.
type aggregator struct {
	interval time.Duration
	emit     func([]protocol.SearchProgress)

	mu   sync.Mutex
	best map[string]protocol.SearchProgress
	done chan struct{} // nil when no search is running
}

func newAggregator(interval time.Duration, emit func([]protocol.SearchProgress)) *aggregator {
	return &aggregator{
		interval: interval,
		emit:     emit,
		best:     make(map[string]protocol.SearchProgress),
	}
}

// add buffers one progress record. Records without a principal variation
// carry no candidate move and are not batched.
func (a *aggregator) add(sp protocol.SearchProgress) {
	if len(sp.PV) == 0 {
		return
	}
	key := sp.PV[0]

	a.mu.Lock()
	defer a.mu.Unlock()
	if stored, ok := a.best[key]; ok && sp.Depth < stored.Depth {
		return
	}
	a.best[key] = sp
}

// start begins interval flushing for a new search. A flush loop already
// running keeps running.
func (a *aggregator) start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		return
	}
	done := make(chan struct{})
	a.done = done
	go a.run(done)
}

func (a *aggregator) run(done chan struct{}) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-done:
			return
		}
	}
}

// finish cancels the interval timer and flushes immediately, guaranteeing
// no progress events after a search's final answer.
func (a *aggregator) finish() {
	a.mu.Lock()
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
	a.mu.Unlock()
	a.flush()
}

// reset discards buffered records from a search that is about to be
// superseded by a position change.
func (a *aggregator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.best = make(map[string]protocol.SearchProgress)
}

// flush emits the accumulated batch, ordered by MultiPV index then
// candidate move, and clears the buffer. Empty buffers emit nothing.
func (a *aggregator) flush() {
	a.mu.Lock()
	if len(a.best) == 0 {
		a.mu.Unlock()
		return
	}
	batch := make([]protocol.SearchProgress, 0, len(a.best))
	for _, sp := range a.best {
		batch = append(batch, sp)
	}
	a.best = make(map[string]protocol.SearchProgress)
	a.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].MultiPV != batch[j].MultiPV {
			return batch[i].MultiPV < batch[j].MultiPV
		}
		return batch[i].PV[0] < batch[j].PV[0]
	})
	a.emit(batch)
}
