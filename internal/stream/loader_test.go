package stream

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tideline/internal/codec"
)

func chainCIDs(chain []Commit) []cid.Cid {
	cids := make([]cid.Cid, len(chain))
	for i, commit := range chain {
		cids[i] = commit.CID
	}
	return cids
}

func TestLoaderLoadChainRecoversOrder(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "order-recovery")
	id, chain := testChain(t, s, model, 3)

	// The network returns commit sets unordered; serve tip-first.
	shuffled := make([]Commit, len(chain))
	for i, commit := range chain {
		shuffled[len(chain)-1-i] = commit
	}
	source := newFakeSource()
	source.addStream(id, shuffled)
	loader := NewLoader(newFakeBlocks(), source, nil)

	got, err := loader.LoadChain(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, chainCIDs(chain), chainCIDs(got))
}

func TestLoaderLoadChainMissingGenesis(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "missing-genesis")
	id, chain := testChain(t, s, model, 2)

	source := newFakeSource()
	source.addStream(id, chain[1:])
	loader := NewLoader(newFakeBlocks(), source, nil)

	_, err := loader.LoadChain(context.Background(), id, nil)
	assert.True(t, IsBrokenChain(err), "got %v", err)
}

func TestLoaderLoadChainFork(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "forked-chain")
	id, chain := testChain(t, s, model, 1)

	// A second successor of the genesis forks the chain.
	rival := s.sign(t, patchPayload(id, chain[0].CID, map[string]any{"n": 99}), modelCapability(model))
	source := newFakeSource()
	source.addStream(id, append(append([]Commit{}, chain...), rival))
	loader := NewLoader(newFakeBlocks(), source, nil)

	_, err := loader.LoadChain(context.Background(), id, nil)
	assert.True(t, IsBrokenChain(err), "got %v", err)
	assert.ErrorContains(t, err, "successors")
}

func TestLoaderLoadChainUnlinkedCommits(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "unlinked-commits")
	id, chain := testChain(t, s, model, 1)
	_, stray := testChain(t, newSigner(t), model, 1)

	source := newFakeSource()
	source.addStream(id, append(append([]Commit{}, chain...), stray[1]))
	loader := NewLoader(newFakeBlocks(), source, nil)

	_, err := loader.LoadChain(context.Background(), id, nil)
	assert.True(t, IsBrokenChain(err), "got %v", err)
	assert.ErrorContains(t, err, "not linked")
}

func TestLoaderLoadChainEmptySet(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "empty-set")
	id, _ := testChain(t, s, model, 0)

	source := newFakeSource()
	source.addStream(id, nil)
	loader := NewLoader(newFakeBlocks(), source, nil)

	_, err := loader.LoadChain(context.Background(), id, nil)
	assert.True(t, IsCode(err, ErrCodeEmptyStream), "got %v", err)
}

func TestLoaderLoadChainUnknownStream(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "unknown-stream")
	id, _ := testChain(t, s, model, 0)

	loader := NewLoader(newFakeBlocks(), newFakeSource(), nil)

	_, err := loader.LoadChain(context.Background(), id, nil)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestLoaderWalkBackToTip(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "walk-back")
	id, chain := testChain(t, s, model, 3)

	blocks := newFakeBlocks()
	blocks.add(chain)
	loader := NewLoader(blocks, newFakeSource(), nil)

	tip := chain[2].CID
	got, err := loader.LoadChain(context.Background(), id, &tip)
	require.NoError(t, err)

	assert.Equal(t, chainCIDs(chain[:3]), chainCIDs(got))
	assert.Equal(t, 3, blocks.gets)
}

func TestLoaderWalkBackCycle(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "walk-cycle")
	id, _ := testChain(t, s, model, 0)

	// Two addresses whose stored envelopes point prev at each other. The
	// block source is trusted for bytes, so a cycle must be caught by the
	// walk itself.
	c1, err := codec.SumRaw([]byte("cycle-block-1"))
	require.NoError(t, err)
	c2, err := codec.SumRaw([]byte("cycle-block-2"))
	require.NoError(t, err)

	blocks := newFakeBlocks()
	blocks.blocks[c1] = anchorEnvelope(t, c2)
	blocks.blocks[c2] = anchorEnvelope(t, c1)
	loader := NewLoader(blocks, newFakeSource(), nil)

	_, err = loader.LoadChain(context.Background(), id, &c1)
	assert.True(t, IsBrokenChain(err), "got %v", err)
	assert.ErrorContains(t, err, "cycle")
}

func TestLoaderWalkBackGenesisMismatch(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "walk-mismatch")
	id, _ := testChain(t, s, model, 0)
	_, other := testChain(t, newSigner(t), model, 1)

	blocks := newFakeBlocks()
	blocks.add(other)
	loader := NewLoader(blocks, newFakeSource(), nil)

	tip := other[1].CID
	_, err := loader.LoadChain(context.Background(), id, &tip)
	assert.True(t, IsBrokenChain(err), "got %v", err)
	assert.ErrorContains(t, err, "not the stream genesis")
}

func TestLoaderWalkBackMissingBlock(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "walk-missing")
	id, chain := testChain(t, s, model, 1)

	blocks := newFakeBlocks()
	blocks.blocks[chain[1].CID] = chain[1].Raw
	loader := NewLoader(blocks, newFakeSource(), nil)

	tip := chain[1].CID
	_, err := loader.LoadChain(context.Background(), id, &tip)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestLoaderLoadState(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "load-state")
	id, chain := testChain(t, s, model, 2)

	source := newFakeSource()
	source.addStream(id, chain)
	loader := NewLoader(newFakeBlocks(), source, nil)

	got, err := loader.LoadState(context.Background(), id, nil)
	require.NoError(t, err)

	want, err := Fold(id, chain)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoaderLoadStatesByModel(t *testing.T) {
	alice := newSigner(t)
	bob := newSigner(t)
	model := testModelID(t, "states-model")
	other := testModelID(t, "states-other")

	source := newFakeSource()
	idA, chainA := testChain(t, alice, model, 1)
	source.addStream(idA, chainA)
	source.addModelStream(model, idA)
	idB, chainB := testChain(t, bob, model, 2)
	source.addStream(idB, chainB)
	source.addModelStream(model, idB)
	idC, chainC := testChain(t, alice, other, 0)
	source.addStream(idC, chainC)
	source.addModelStream(other, idC)

	loader := NewLoader(newFakeBlocks(), source, nil)

	states, err := loader.LoadStates(context.Background(), model, nil)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, idA, states[0].ID)
	assert.Equal(t, idB, states[1].ID)
}

func TestLoaderLoadStatesAccountFilter(t *testing.T) {
	alice := newSigner(t)
	bob := newSigner(t)
	model := testModelID(t, "states-account")

	source := newFakeSource()
	idA, chainA := testChain(t, alice, model, 0)
	source.addStream(idA, chainA)
	source.addModelStream(model, idA)
	idB, chainB := testChain(t, bob, model, 0)
	source.addStream(idB, chainB)
	source.addModelStream(model, idB)

	loader := NewLoader(newFakeBlocks(), source, nil)

	states, err := loader.LoadStates(context.Background(), model, &alice.did)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, idA, states[0].ID)

	nobody := "did:key:zNobody"
	states, err = loader.LoadStates(context.Background(), model, &nobody)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.NotNil(t, states)
}

func TestLoaderLoadStatesFailFast(t *testing.T) {
	s := newSigner(t)
	model := testModelID(t, "states-failfast")

	source := newFakeSource()
	idA, chainA := testChain(t, s, model, 0)
	source.addStream(idA, chainA)
	source.addModelStream(model, idA)
	idB, _ := testChain(t, newSigner(t), model, 0)
	// idB is indexed under the model but its commits are unavailable.
	source.addModelStream(model, idB)

	loader := NewLoader(newFakeBlocks(), source, nil)

	_, err := loader.LoadStates(context.Background(), model, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %v", err)
}

// anchorEnvelope builds raw anchor envelope bytes pointing prev at the given
// commit, without computing the envelope's own address.
func anchorEnvelope(t *testing.T, prev cid.Cid) []byte {
	t.Helper()

	proof, _, err := codec.SumJSON([]byte(`{"root": "cycle-proof"}`))
	require.NoError(t, err)
	raw, err := codec.Marshal(map[string]any{
		"prev": prev.String(), "proof": proof.String(), "path": "0/0",
	})
	require.NoError(t, err)
	return raw
}
