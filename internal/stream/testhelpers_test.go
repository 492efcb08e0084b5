package stream

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tideline/internal/codec"
	"github.com/roach88/tideline/internal/task"
)

// signer is an ed25519 identity for building test commits.
type signer struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	did  string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &signer{pub: pub, priv: priv, did: EncodeKeyDID(pub)}
}

// kid is the verification method reference carried in the protected header.
func (s *signer) kid() string {
	return s.did + "#" + strings.TrimPrefix(s.did, "did:key:")
}

// sign builds a signed commit block from a payload document, addresses it,
// and returns the decoded commit.
func (s *signer) sign(t *testing.T, payload map[string]any, capability *Capability) Commit {
	t.Helper()

	payloadBytes, err := codec.Marshal(payload)
	require.NoError(t, err)
	protectedBytes, err := codec.Marshal(map[string]any{"alg": "EdDSA", "kid": s.kid()})
	require.NoError(t, err)

	input := b64.EncodeToString(protectedBytes) + "." + b64.EncodeToString(payloadBytes)
	signature := ed25519.Sign(s.priv, []byte(input))

	env := map[string]any{
		"payload":   b64.EncodeToString(payloadBytes),
		"protected": b64.EncodeToString(protectedBytes),
		"signature": b64.EncodeToString(signature),
	}
	if capability != nil {
		env["capability"] = capability
	}

	envBytes, err := codec.Marshal(env)
	require.NoError(t, err)
	c, canonical, err := codec.SumJSON(envBytes)
	require.NoError(t, err)

	commit, err := DecodeCommit(c, canonical)
	require.NoError(t, err)
	return commit
}

// genesisPayload shapes a genesis document: controllers, optional model,
// optional initial data.
func genesisPayload(controllers []string, model string, data any) map[string]any {
	header := map[string]any{"controllers": controllers}
	if model != "" {
		header["model"] = model
	}
	p := map[string]any{"header": header}
	if data != nil {
		p["data"] = data
	}
	return p
}

// dataPayload shapes a non-genesis document replacing content wholesale.
func dataPayload(id ID, prev cid.Cid, data any) map[string]any {
	return map[string]any{"id": id.String(), "prev": prev.String(), "data": data}
}

// patchPayload shapes a non-genesis document carrying a JSON Merge Patch.
func patchPayload(id ID, prev cid.Cid, patch any) map[string]any {
	return map[string]any{"id": id.String(), "prev": prev.String(), "patch": patch}
}

// anchorCommit builds a decoded anchor commit pointing at prev.
func anchorCommit(t *testing.T, prev cid.Cid) Commit {
	t.Helper()

	proof, _, err := codec.SumJSON([]byte(`{"root": "test-proof"}`))
	require.NoError(t, err)

	env := map[string]any{"prev": prev.String(), "proof": proof.String(), "path": "0/0"}
	envBytes, err := codec.Marshal(env)
	require.NoError(t, err)
	c, canonical, err := codec.SumJSON(envBytes)
	require.NoError(t, err)

	commit, err := DecodeCommit(c, canonical)
	require.NoError(t, err)
	return commit
}

// modelCapability grants the signing session access to one model's streams.
func modelCapability(model ID) *Capability {
	return &Capability{Resources: []string{"ceramic://*?model=" + model.String()}}
}

// testModelID mints a model identifier from a throwaway genesis document.
func testModelID(t *testing.T, seed string) ID {
	t.Helper()
	c, _, err := codec.SumJSON([]byte(fmt.Sprintf(`{"model": %q}`, seed)))
	require.NoError(t, err)
	return NewID(TypeModel, c)
}

// testChain builds a verified stream: a genesis and n data commits, each
// patching {"n": i}. Returns the stream id and the full chain genesis-first.
func testChain(t *testing.T, s *signer, model ID, n int) (ID, []Commit) {
	t.Helper()

	genesis := s.sign(t, genesisPayload([]string{s.did}, model.String(), map[string]any{"n": 0}), modelCapability(model))
	id := NewID(TypeModelInstance, genesis.CID)

	chain := []Commit{genesis}
	prev := genesis.CID
	for i := 1; i <= n; i++ {
		commit := s.sign(t, patchPayload(id, prev, map[string]any{"n": i}), modelCapability(model))
		chain = append(chain, commit)
		prev = commit.CID
	}
	return id, chain
}

// rawCommits converts decoded commits to the network's undecoded form.
func rawCommits(chain []Commit) []RawCommit {
	raws := make([]RawCommit, len(chain))
	for i, commit := range chain {
		raws[i] = RawCommit{CID: commit.CID, Data: commit.Raw}
	}
	return raws
}

// fakeSource serves commit sets and model indexes from memory.
type fakeSource struct {
	commits map[string][]RawCommit
	streams map[string][]ID
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		commits: make(map[string][]RawCommit),
		streams: make(map[string][]ID),
	}
}

func (f *fakeSource) addStream(id ID, chain []Commit) {
	f.commits[id.String()] = rawCommits(chain)
}

func (f *fakeSource) addModelStream(model ID, id ID) {
	f.streams[model.String()] = append(f.streams[model.String()], id)
}

func (f *fakeSource) Commits(_ context.Context, id ID) ([]RawCommit, error) {
	raws, ok := f.commits[id.String()]
	if !ok {
		return nil, NewNotFoundError("stream", id.String())
	}
	return raws, nil
}

func (f *fakeSource) StreamsOfModel(_ context.Context, model ID) ([]ID, error) {
	return f.streams[model.String()], nil
}

// fakeBlocks serves block bytes from memory and counts fetches.
type fakeBlocks struct {
	blocks map[cid.Cid][]byte
	gets   int
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{blocks: make(map[cid.Cid][]byte)}
}

func (f *fakeBlocks) add(chain []Commit) {
	for _, commit := range chain {
		f.blocks[commit.CID] = commit.Raw
	}
}

func (f *fakeBlocks) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	f.gets++
	data, ok := f.blocks[c]
	if !ok {
		return nil, NewNotFoundError("block", c.String())
	}
	return data, nil
}

// memRecords is an in-memory RecordStore counting saves.
type memRecords struct {
	records map[string]*Record
	saves   int
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]*Record)}
}

func recordKey(dappID uuid.UUID, id ID) string {
	return dappID.String() + "/" + id.String()
}

func (m *memRecords) Load(_ context.Context, dappID uuid.UUID, id ID) (*Record, error) {
	rec, ok := m.records[recordKey(dappID, id)]
	if !ok {
		return nil, NewNotFoundError("stream record", id.String())
	}
	copied := *rec
	return &copied, nil
}

func (m *memRecords) Save(_ context.Context, rec *Record) error {
	copied := *rec
	m.records[recordKey(rec.DappID, rec.StreamID)] = &copied
	m.saves++
	return nil
}

// captureDispatcher records enqueued tasks; fail makes every enqueue error.
type captureDispatcher struct {
	tasks []task.Task
	fail  bool
}

func (d *captureDispatcher) Enqueue(_ context.Context, t task.Task) error {
	if d.fail {
		return fmt.Errorf("dispatcher unavailable")
	}
	d.tasks = append(d.tasks, t)
	return nil
}

func (d *captureDispatcher) kinds() []task.Kind {
	kinds := make([]task.Kind, len(d.tasks))
	for i, t := range d.tasks {
		kinds[i] = t.Kind
	}
	return kinds
}

// countingLoader wraps a StateLoader and counts LoadState derivations.
type countingLoader struct {
	inner      StateLoader
	loadStates int
}

func (c *countingLoader) LoadChain(ctx context.Context, id ID, tip *cid.Cid) ([]Commit, error) {
	return c.inner.LoadChain(ctx, id, tip)
}

func (c *countingLoader) LoadState(ctx context.Context, id ID, tip *cid.Cid) (*State, error) {
	c.loadStates++
	return c.inner.LoadState(ctx, id, tip)
}

func (c *countingLoader) LoadStates(ctx context.Context, model ID, account *string) ([]*State, error) {
	return c.inner.LoadStates(ctx, model, account)
}

// acceptAllModels resolves every model reference.
func acceptAllModels() ModelResolver {
	return ModelResolverFunc(func(context.Context, ID) error { return nil })
}
