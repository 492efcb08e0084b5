package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tideline/internal/registry"
	"github.com/roach88/tideline/internal/stream"
)

func testCID(t *testing.T, seed string) cid.Cid {
	t.Helper()
	sum, err := mh.Sum([]byte(seed), mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, sum)
}

func testStreamID(t *testing.T, seed string) stream.ID {
	t.Helper()
	return stream.NewID(stream.TypeModelInstance, testCID(t, seed))
}

func testModelID(t *testing.T, seed string) stream.ID {
	t.Helper()
	return stream.NewID(stream.TypeModel, testCID(t, seed))
}

// testState fabricates a derived state directly. Resolution reads states; it
// never folds chains, so no signed commits are needed here.
func testState(t *testing.T, seed string, model stream.ID, controller, content string) *stream.State {
	t.Helper()
	id := testStreamID(t, seed)
	state := &stream.State{
		ID:          id,
		Model:       &model,
		Controllers: []string{controller},
		Tip:         id.Genesis,
		Log:         []stream.LogEntry{{CID: id.Genesis, Kind: stream.KindGenesis}},
	}
	if content != "" {
		state.Content = json.RawMessage(content)
	}
	return state
}

// fakeStateLoader serves pre-derived states from memory, indexed by stream
// and by declared model the way the network loader indexes them.
type fakeStateLoader struct {
	states  map[string]*stream.State
	sets    map[string][]*stream.State
	setErrs map[string]error
}

func newFakeStateLoader() *fakeStateLoader {
	return &fakeStateLoader{
		states:  make(map[string]*stream.State),
		sets:    make(map[string][]*stream.State),
		setErrs: make(map[string]error),
	}
}

func (f *fakeStateLoader) add(states ...*stream.State) {
	for _, state := range states {
		f.states[state.ID.String()] = state
		if state.Model != nil {
			key := state.Model.String()
			f.sets[key] = append(f.sets[key], state)
		}
	}
}

// failSet makes every batch load of the model fail.
func (f *fakeStateLoader) failSet(model stream.ID, err error) {
	f.setErrs[model.String()] = err
}

func (f *fakeStateLoader) LoadChain(_ context.Context, id stream.ID, _ *cid.Cid) ([]stream.Commit, error) {
	return nil, stream.NewNotFoundError("stream", id.String())
}

func (f *fakeStateLoader) LoadState(_ context.Context, id stream.ID, _ *cid.Cid) (*stream.State, error) {
	state, ok := f.states[id.String()]
	if !ok {
		return nil, stream.NewNotFoundError("stream", id.String())
	}
	return state, nil
}

func (f *fakeStateLoader) LoadStates(_ context.Context, model stream.ID, account *string) ([]*stream.State, error) {
	if err := f.setErrs[model.String()]; err != nil {
		return nil, err
	}
	states := make([]*stream.State, 0)
	for _, state := range f.sets[model.String()] {
		if account != nil {
			if len(state.Controllers) == 0 || state.Controllers[0] != *account {
				continue
			}
		}
		states = append(states, state)
	}
	return states, nil
}

// resolveFixture wires a client over one dapp carrying the four named models
// plus a plain content model, with a second dapp to probe ownership checks.
type resolveFixture struct {
	dappID      uuid.UUID
	otherDappID uuid.UUID
	loader      *fakeStateLoader
	client      *Client

	indexModel         stream.ID
	actionModel        stream.ID
	folderModel        stream.ID
	contentFolderModel stream.ID
	postModel          stream.ID
	otherPostModel     stream.ID
}

func newResolveFixture(t *testing.T) *resolveFixture {
	t.Helper()
	f := &resolveFixture{
		dappID:             uuid.New(),
		otherDappID:        uuid.New(),
		loader:             newFakeStateLoader(),
		indexModel:         testModelID(t, "model-index-file"),
		actionModel:        testModelID(t, "model-action-file"),
		folderModel:        testModelID(t, "model-index-folder"),
		contentFolderModel: testModelID(t, "model-content-folder"),
		postModel:          testModelID(t, "model-post"),
		otherPostModel:     testModelID(t, "model-other-post"),
	}
	reg := registry.NewStatic(
		[]registry.Dapp{
			{ID: f.dappID, Name: "notes", Endpoint: "http://gateway.test"},
			{ID: f.otherDappID, Name: "elsewhere", Endpoint: "http://other.test"},
		},
		[]registry.ModelInfo{
			{ID: f.indexModel, Name: registry.NameIndexFile, DappID: f.dappID},
			{ID: f.actionModel, Name: registry.NameActionFile, DappID: f.dappID},
			{ID: f.folderModel, Name: registry.NameIndexFolder, DappID: f.dappID},
			{ID: f.contentFolderModel, Name: registry.NameContentFolder, DappID: f.dappID},
			{ID: f.postModel, Name: "post", DappID: f.dappID},
			{ID: f.otherPostModel, Name: "post", DappID: f.otherDappID},
		},
	)
	f.client = NewClient(f.loader, reg, nil)
	return f
}

// indexState adds an index stream whose record points at contentID.
func (f *resolveFixture) indexState(t *testing.T, seed, controller, contentID string) *stream.State {
	t.Helper()
	content := fmt.Sprintf(`{"contentId":%q,"fileName":%q,"fileType":0}`, contentID, seed+".md")
	state := testState(t, seed, f.indexModel, controller, content)
	f.loader.add(state)
	return state
}

// folderState adds an indexFolder stream. Options and access control are
// encoded the way writers store them: JSON inside base64.
func (f *resolveFixture) folderState(t *testing.T, seed, controller string, opts *FolderOptions, ac *AccessControl) *stream.State {
	t.Helper()
	rec := map[string]any{"folderName": seed, "folderType": 1}
	if opts != nil {
		raw, err := json.Marshal(opts)
		require.NoError(t, err)
		rec["options"] = base64.StdEncoding.EncodeToString(raw)
	}
	if ac != nil {
		raw, err := json.Marshal(ac)
		require.NoError(t, err)
		rec["accessControl"] = base64.StdEncoding.EncodeToString(raw)
	}
	content, err := json.Marshal(rec)
	require.NoError(t, err)
	state := testState(t, seed, f.folderModel, controller, string(content))
	f.loader.add(state)
	return state
}
