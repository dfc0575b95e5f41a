package reactive

import (
	"sync"

	"github.com/optimist-go/optimist/internal/gid"
)

// batchState accumulates notifications for one goroutine's batch.
type batchState struct {
	depth   int
	pending []Observer
}

func (bs *batchState) queue(obs []Observer) {
	bs.pending = append(bs.pending, obs...)
}

// batches holds the active batch state per goroutine.
// Entries exist only while a batch is open; the hot path does a plain Load
// so goroutines that never batch pay one map lookup and no allocation.
var batches sync.Map // map[uint64]*batchState

func activeBatch() *batchState {
	if bs, ok := batches.Load(gid.Current()); ok {
		return bs.(*batchState)
	}
	return nil
}

// Batch groups multiple value writes into a single notification phase.
// All notifications triggered inside fn are collected, deduplicated by
// observer ID, and delivered once when the outermost batch completes. An
// observer that reads inside MarkStale therefore sees only the final values.
//
// Batches nest; notifications fire when the outermost batch returns.
//
//	reactive.Batch(func() {
//	    title.Set("Q3 launch plan")
//	    tags.Set([]string{"growth", "q3"})
//	})
//	// each watcher fires once
func Batch(fn func()) {
	g := gid.Current()

	var bs *batchState
	if v, ok := batches.Load(g); ok {
		bs = v.(*batchState)
	} else {
		bs = &batchState{}
		batches.Store(g, bs)
	}
	bs.depth++

	defer func() {
		bs.depth--
		if bs.depth > 0 {
			return
		}
		// Outermost batch complete: drop the goroutine entry before
		// notifying so observer code runs unbatched.
		batches.Delete(g)
		flush(bs.pending)
	}()

	fn()
}

// flush deduplicates queued observers by ID and notifies each once.
func flush(pending []Observer) {
	if len(pending) == 0 {
		return
	}

	seen := make(map[uint64]bool, len(pending))
	for _, o := range pending {
		id := o.ObserverID()
		if seen[id] {
			continue
		}
		seen[id] = true
		o.MarkStale()
	}
}
