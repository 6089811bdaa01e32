// Package coalesce serializes work per key and folds bursts of triggers into
// at most one trailing rerun.
package coalesce

import "sync"

type state struct {
	pending bool
}

// Group runs at most one function per key at a time. The zero value is ready to use.
type Group struct {
	mu      sync.Mutex
	running map[string]*state
}

// Do runs fn for key. If a run for key is already in progress, Do marks one
// rerun as pending and returns immediately with ran false; the in-flight
// caller runs fn again once it finishes, however many triggers arrived. The
// error of the last run is returned.
func (g *Group) Do(key string, fn func() error) (ran bool, err error) {
	g.mu.Lock()
	if g.running == nil {
		g.running = make(map[string]*state)
	}
	if st, ok := g.running[key]; ok {
		st.pending = true
		g.mu.Unlock()
		return false, nil
	}
	st := &state{}
	g.running[key] = st
	g.mu.Unlock()

	for {
		err = fn()
		g.mu.Lock()
		if !st.pending {
			delete(g.running, key)
			g.mu.Unlock()
			return true, err
		}
		st.pending = false
		g.mu.Unlock()
	}
}

// Busy reports whether a run for key is in progress.
func (g *Group) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[key]
	return ok
}
