package stream

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
)

// CachedLoader memoizes derived state per stream identifier on top of any
// StateLoader. A miss derives through the inner loader and writes the result
// back; acceptance updates the entry with the freshly persisted state, so an
// entry is only ever as stale as the last locally accepted commit.
//
// Only LoadState with a nil tip consults the memo: an explicit tip asks for a
// specific chain boundary, and batch queries are not memoized by identifier.
//
// Thread-safety: the mutex guards the map only and is never held across a
// network call.
type CachedLoader struct {
	inner StateLoader

	mu     sync.Mutex
	states map[string]*State
}

// NewCachedLoader wraps inner with a state memo.
func NewCachedLoader(inner StateLoader) *CachedLoader {
	return &CachedLoader{
		inner:  inner,
		states: make(map[string]*State),
	}
}

// LoadChain passes through uncached.
func (c *CachedLoader) LoadChain(ctx context.Context, id ID, tip *cid.Cid) ([]Commit, error) {
	return c.inner.LoadChain(ctx, id, tip)
}

// LoadState returns the memoized state when present, otherwise derives via
// the inner loader and stores the result. Callers receive a copy either way.
func (c *CachedLoader) LoadState(ctx context.Context, id ID, tip *cid.Cid) (*State, error) {
	if tip != nil {
		return c.inner.LoadState(ctx, id, tip)
	}

	key := id.String()

	c.mu.Lock()
	if state, ok := c.states[key]; ok {
		cached := state.clone()
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	state, err := c.inner.LoadState(ctx, id, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.states[key] = state.clone()
	c.mu.Unlock()

	return state, nil
}

// LoadStates passes through uncached.
func (c *CachedLoader) LoadStates(ctx context.Context, model ID, account *string) ([]*State, error) {
	return c.inner.LoadStates(ctx, model, account)
}

// Update replaces the memoized entry for the state's stream. Called after a
// commit is accepted, when the folded state is authoritative.
func (c *CachedLoader) Update(state *State) {
	c.mu.Lock()
	c.states[state.ID.String()] = state.clone()
	c.mu.Unlock()
}

// Invalidate drops the memoized entry for a stream.
func (c *CachedLoader) Invalidate(id ID) {
	c.mu.Lock()
	delete(c.states, id.String())
	c.mu.Unlock()
}

// Len reports the number of memoized streams.
func (c *CachedLoader) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}
