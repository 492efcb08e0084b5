package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ipfs/go-cid"
)

// BlockSource supplies immutable block bytes by content address. The content
// cache satisfies this; so does a bare transport client.
type BlockSource interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// RawCommit is one undecoded commit envelope as returned by the network.
// No ordering is guaranteed across a returned set.
type RawCommit struct {
	CID  cid.Cid
	Data []byte
}

// StreamSource is the network's view of streams: the commit set of one
// stream and the index of streams declaring a model.
type StreamSource interface {
	Commits(ctx context.Context, id ID) ([]RawCommit, error)
	StreamsOfModel(ctx context.Context, model ID) ([]ID, error)
}

// StateLoader derives chains and states. Loader implements it against the
// network; CachedLoader decorates any implementation with memoization.
type StateLoader interface {
	// LoadChain returns the stream's commits in genesis-to-tip order. With a
	// nil tip the chain runs to the network's current tip; with a tip it runs
	// to that known commit, fetched block by block through the BlockSource.
	LoadChain(ctx context.Context, id ID, tip *cid.Cid) ([]Commit, error)

	// LoadState derives the stream's folded state at the same boundary.
	LoadState(ctx context.Context, id ID, tip *cid.Cid) (*State, error)

	// LoadStates derives the state of every stream declaring the model,
	// optionally filtered to streams controlled by account. The batch fails
	// on the first derivation error: callers join over these sets, and a
	// silently missing stream would corrupt the join.
	LoadStates(ctx context.Context, model ID, account *string) ([]*State, error)
}

// Loader derives stream state from the network. It owns chain ordering: the
// remote side returns commits unordered, and this component recovers
// genesis-to-tip order by walking prev links.
type Loader struct {
	blocks BlockSource
	source StreamSource
	log    *slog.Logger
}

// NewLoader wires a Loader. A nil logger falls back to slog.Default().
func NewLoader(blocks BlockSource, source StreamSource, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{blocks: blocks, source: source, log: logger}
}

// LoadChain implements StateLoader.
func (l *Loader) LoadChain(ctx context.Context, id ID, tip *cid.Cid) ([]Commit, error) {
	if tip != nil {
		return l.walkBack(ctx, id, *tip)
	}

	raws, err := l.source.Commits(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch commits for %s: %w", id, err)
	}
	return orderCommits(id, raws)
}

// walkBack loads the chain ending at a known tip by following prev links
// backward through the block source, then reverses to genesis-first order.
func (l *Loader) walkBack(ctx context.Context, id ID, tip cid.Cid) ([]Commit, error) {
	var reversed []Commit
	seen := make(map[cid.Cid]bool)

	cur := tip
	for {
		if seen[cur] {
			return nil, NewBrokenChainError(id, fmt.Sprintf("prev links cycle at %s", cur))
		}
		seen[cur] = true

		data, err := l.blocks.Get(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("fetch commit %s: %w", cur, err)
		}
		commit, err := DecodeCommit(cur, data)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, commit)

		if commit.Prev == nil {
			break
		}
		cur = *commit.Prev
	}

	if genesis := reversed[len(reversed)-1]; genesis.CID != id.Genesis {
		return nil, NewBrokenChainError(id, fmt.Sprintf(
			"chain terminates at %s, not the stream genesis", genesis.CID))
	}

	chain := make([]Commit, len(reversed))
	for i, commit := range reversed {
		chain[len(reversed)-1-i] = commit
	}
	return chain, nil
}

// orderCommits recovers genesis-to-tip order from an unordered commit set.
// Every commit must be reachable from the genesis by prev links; leftovers,
// forks, and cycles are BROKEN_CHAIN.
func orderCommits(id ID, raws []RawCommit) ([]Commit, error) {
	if len(raws) == 0 {
		return nil, NewEmptyStreamError(id)
	}

	byCID := make(map[cid.Cid]Commit, len(raws))
	successors := make(map[cid.Cid][]cid.Cid)
	for _, raw := range raws {
		commit, err := DecodeCommit(raw.CID, raw.Data)
		if err != nil {
			return nil, err
		}
		byCID[commit.CID] = commit
		if commit.Prev != nil {
			successors[*commit.Prev] = append(successors[*commit.Prev], commit.CID)
		}
	}

	genesis, ok := byCID[id.Genesis]
	if !ok {
		return nil, NewBrokenChainError(id, "genesis commit missing from the fetched set")
	}

	chain := []Commit{genesis}
	cur := genesis.CID
	for {
		next := successors[cur]
		if len(next) == 0 {
			break
		}
		if len(next) > 1 {
			return nil, NewBrokenChainError(id, fmt.Sprintf("commit %s has %d successors", cur, len(next)))
		}
		commit := byCID[next[0]]
		chain = append(chain, commit)
		cur = commit.CID
	}

	if len(chain) != len(byCID) {
		return nil, NewBrokenChainError(id, fmt.Sprintf(
			"%d of %d commits are not linked from the genesis", len(byCID)-len(chain), len(byCID)))
	}
	return chain, nil
}

// LoadState implements StateLoader.
func (l *Loader) LoadState(ctx context.Context, id ID, tip *cid.Cid) (*State, error) {
	chain, err := l.LoadChain(ctx, id, tip)
	if err != nil {
		return nil, err
	}
	return Fold(id, chain)
}

// LoadStates implements StateLoader.
func (l *Loader) LoadStates(ctx context.Context, model ID, account *string) ([]*State, error) {
	ids, err := l.source.StreamsOfModel(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("list streams of model %s: %w", model, err)
	}

	states := make([]*State, 0, len(ids))
	for _, id := range ids {
		state, err := l.LoadState(ctx, id, nil)
		if err != nil {
			return nil, fmt.Errorf("derive state of %s: %w", id, err)
		}
		if account != nil {
			if len(state.Controllers) == 0 || state.Controllers[0] != *account {
				continue
			}
		}
		states = append(states, state)
	}
	return states, nil
}
