package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"github.com/roach88/tideline/internal/codec"
	"github.com/roach88/tideline/internal/task"
)

// DefaultUpdateTopic is the pub/sub topic accepted tips are announced on.
const DefaultUpdateTopic = "/ceramic/testnet-clay"

// Acceptor runs the commit acceptance protocol: it validates an externally
// submitted commit against the persisted record and live chain, folds it in,
// verifies the signature policy, persists the new tip, and enqueues the side
// effects.
//
// INVARIANTS:
//   - Rejected commits are never partially applied: persistence and dispatch
//     happen only after every check passes.
//   - The record save is the durability boundary; a commit is accepted once
//     it lands, even if every subsequent enqueue fails.
//   - Accept is idempotent for duplicates: resubmitting an already-chained
//     commit returns the derived state with no second persist or dispatch.
type Acceptor struct {
	records    RecordStore
	loader     StateLoader
	models     ModelResolver
	dispatcher task.Dispatcher

	cache *CachedLoader
	topic string
	now   func() time.Time
	log   *slog.Logger
}

// AcceptorOption configures an Acceptor.
type AcceptorOption func(*Acceptor)

// WithLogger sets the logger for swallowed dispatch failures.
func WithLogger(logger *slog.Logger) AcceptorOption {
	return func(a *Acceptor) { a.log = logger }
}

// WithClock injects the time source for capability expiration checks.
// Tests pin this to a fixed instant.
func WithClock(now func() time.Time) AcceptorOption {
	return func(a *Acceptor) { a.now = now }
}

// WithStateCache keeps the given state memo current: each accepted commit
// updates the stream's entry with the freshly persisted state.
func WithStateCache(cache *CachedLoader) AcceptorOption {
	return func(a *Acceptor) { a.cache = cache }
}

// WithUpdateTopic overrides the pub/sub topic for tip announcements.
func WithUpdateTopic(topic string) AcceptorOption {
	return func(a *Acceptor) { a.topic = topic }
}

// NewAcceptor wires an Acceptor from its collaborators.
func NewAcceptor(records RecordStore, loader StateLoader, models ModelResolver, dispatcher task.Dispatcher, opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{
		records:    records,
		loader:     loader,
		models:     models,
		dispatcher: dispatcher,
		topic:      DefaultUpdateTopic,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Accept validates and applies one externally submitted commit, returning the
// stream's state with the commit folded in.
//
// The check sequence, each failing the whole call:
//
//  1. Anchor commits are rejected outright: this path accepts only
//     client-signed commits, anchor proofs arrive via separate ingestion.
//  2. With no persisted record the commit must be the stream's signed
//     genesis commit; with a record the chain is loaded back from the
//     persisted tip.
//  3. A commit already in the chain short-circuits: the derived state is
//     returned with nothing re-verified, re-persisted, or re-dispatched.
//  4. A declared prev must appear in the loaded chain.
//  5. The appended chain folds to the candidate state, whose model must
//     resolve; the signature policy then requires the capability to cover
//     that model and to be unexpired.
//  6. The updated record persists, then the side effects enqueue. Enqueue
//     failures are logged and swallowed.
func (a *Acceptor) Accept(ctx context.Context, dappID uuid.UUID, id ID, commit Commit) (*State, error) {
	signed, ok := commit.AsSigned()
	if !ok {
		return nil, NewAnchorNotSupportedError(commit.CID)
	}

	var chain []Commit
	rec, err := a.records.Load(ctx, dappID, id)
	switch {
	case err == nil:
		chain, err = a.loader.LoadChain(ctx, id, &rec.Tip)
		if err != nil {
			return nil, err
		}
	case IsNotFound(err):
		if !commit.IsGenesis() || commit.CID != id.Genesis {
			return nil, NewUnknownStreamError(id)
		}
	default:
		return nil, fmt.Errorf("load stream record: %w", err)
	}

	for i := range chain {
		if chain[i].CID == commit.CID {
			return Fold(id, chain)
		}
	}

	if commit.Prev != nil && !chainContains(chain, *commit.Prev) {
		return nil, NewMissingPredecessorError(id, *commit.Prev)
	}

	appended := make([]Commit, 0, len(chain)+1)
	appended = append(appended, chain...)
	appended = append(appended, commit)
	state, err := Fold(id, appended)
	if err != nil {
		return nil, err
	}

	if state.Model == nil {
		return nil, NewNotFoundError("model", "stream declares none")
	}
	if err := a.models.ResolveModel(ctx, *state.Model); err != nil {
		return nil, fmt.Errorf("resolve model %s: %w", state.Model, err)
	}
	if err := signed.Verify(WithResourceModel(*state.Model), WithExpirationAfter(a.now())); err != nil {
		return nil, err
	}

	account := ""
	if len(state.Controllers) > 0 {
		account = state.Controllers[0]
	}
	record := &Record{
		DappID:   dappID,
		StreamID: id,
		Model:    state.Model,
		Account:  account,
		Tip:      commit.CID,
		Content:  state.Content,
	}
	if err := a.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persist stream record: %w", err)
	}

	a.dispatch(ctx, id, commit, state)

	if a.cache != nil {
		a.cache.Update(state)
	}
	return state, nil
}

func chainContains(chain []Commit, c cid.Cid) bool {
	for i := range chain {
		if chain[i].CID == c {
			return true
		}
	}
	return false
}

// dispatch enqueues the side effects of an accepted commit. Every failure is
// logged and swallowed: the record write already made the commit durable.
func (a *Acceptor) dispatch(ctx context.Context, id ID, commit Commit, state *State) {
	if t, err := task.NewBlockUpload(commit.CID, commit.Raw); err != nil {
		a.log.Error("build block upload task", "stream", id.String(), "cid", commit.CID.String(), "error", err)
	} else if err := a.dispatcher.Enqueue(ctx, t); err != nil {
		a.log.Error("enqueue block upload", "stream", id.String(), "cid", commit.CID.String(), "error", err)
	}

	if msg, err := updateMessage(id, state); err != nil {
		a.log.Error("build update message", "stream", id.String(), "error", err)
	} else if t, err := task.NewPublishMessage(a.topic, msg); err != nil {
		a.log.Error("build publish task", "stream", id.String(), "error", err)
	} else if err := a.dispatcher.Enqueue(ctx, t); err != nil {
		a.log.Error("enqueue update message", "stream", id.String(), "topic", a.topic, "error", err)
	}

	// Anchor requests follow signed commits only; anchors were rejected at
	// the top of Accept, so every commit reaching here qualifies.
	if t, err := task.NewRequestAnchor(id.String(), commit.CID); err != nil {
		a.log.Error("build anchor request task", "stream", id.String(), "error", err)
	} else if err := a.dispatcher.Enqueue(ctx, t); err != nil {
		a.log.Error("enqueue anchor request", "stream", id.String(), "cid", commit.CID.String(), "error", err)
	}
}

// updateMessage is the network announcement for a freshly accepted tip.
func updateMessage(id ID, state *State) ([]byte, error) {
	msg := map[string]any{
		"typ":    0,
		"stream": id.String(),
		"tip":    state.Tip.String(),
	}
	if state.Model != nil {
		msg["model"] = state.Model.String()
	}
	return codec.Marshal(msg)
}
