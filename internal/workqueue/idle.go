package workqueue

import "context"

// Idler is anything that can report and wait for quiescence. Queue and the
// dispatchers built on it implement it.
type Idler interface {
	WaitUntilIdle(ctx context.Context) bool
	Quiescent() (uint64, bool)
}

// WaitAllIdle blocks until every idler is idle at the same moment.
//
// Idlers may feed each other work, so waiting on each in turn is not
// enough: one can pick up new work after it was checked. Each pass records
// the generation of every idler once it is idle, then confirms that none
// of them took on work since. Returns false if ctx ends first.
func WaitAllIdle(ctx context.Context, idlers ...Idler) bool {
	gens := make([]uint64, len(idlers))
	for {
		busy := false
		for i, q := range idlers {
			if !q.WaitUntilIdle(ctx) {
				return false
			}
			var idle bool
			gens[i], idle = q.Quiescent()
			busy = busy || !idle
		}
		if !busy && settled(idlers, gens) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
}

func settled(idlers []Idler, gens []uint64) bool {
	for i, q := range idlers {
		gen, idle := q.Quiescent()
		if !idle || gen != gens[i] {
			return false
		}
	}
	return true
}
