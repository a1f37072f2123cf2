package access

import (
	"sync"
	"sync/atomic"
)

// seqGate orders fetch responses by request-issue order. Each fetch
// takes a sequence number before going out; a response whose sequence
// is not newer than the last committed one is discarded, so a stale
// poll can never overwrite fresher state. Commits run under the gate's
// lock, which also makes re-applying an identical snapshot harmless.
type seqGate struct {
	issued  atomic.Uint64
	mu      sync.Mutex
	applied uint64
}

func (g *seqGate) issue() uint64 {
	return g.issued.Add(1)
}

func (g *seqGate) commit(seq uint64, apply func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq <= g.applied {
		return false
	}
	g.applied = seq
	apply()
	return true
}
