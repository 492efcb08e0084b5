package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/tideline/internal/registry"
	"github.com/roach88/tideline/internal/stream"
)

// Client resolves file views over a state loader and the model registry.
type Client struct {
	loader   stream.StateLoader
	registry registry.Registry
	log      *slog.Logger
}

// NewClient wires a resolution client. A nil logger falls back to
// slog.Default().
func NewClient(loader stream.StateLoader, reg registry.Registry, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{loader: loader, registry: reg, log: logger}
}

// ResolveOne resolves a single stream owned by the dapp into its file view.
// The stream's declared model must be registered to the dapp; a stream whose
// model belongs elsewhere is NOT_FOUND from this dapp's point of view.
func (c *Client) ResolveOne(ctx context.Context, dappID uuid.UUID, id stream.ID) (*File, error) {
	state, err := c.loader.LoadState(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	if state.Model == nil {
		return nil, stream.NewNotFoundError("model", fmt.Sprintf("stream %s declares none", id))
	}
	info, err := c.registry.Model(ctx, *state.Model)
	if err != nil {
		return nil, err
	}
	if info.DappID != dappID {
		return nil, stream.NewNotFoundError("stream",
			fmt.Sprintf("%s: model %s does not belong to dapp %s", id, info.ID, dappID))
	}

	switch info.Name {
	case registry.NameIndexFile:
		return c.resolveIndexOne(ctx, state)
	case registry.NameActionFile:
		return newFileView(state), nil
	case registry.NameIndexFolder, registry.NameContentFolder:
		return newContentView(state), nil
	default:
		return c.resolveContentOne(ctx, dappID, state)
	}
}

// ResolveMany resolves every stream of one model, optionally narrowed to an
// account, applying filters. Per-item failures degrade the item's Status;
// the call fails only when the batch itself cannot be assembled.
func (c *Client) ResolveMany(ctx context.Context, account *string, modelID stream.ID, filters Filters) ([]*File, error) {
	info, err := c.registry.Model(ctx, modelID)
	if err != nil {
		return nil, err
	}
	states, err := c.loader.LoadStates(ctx, modelID, account)
	if err != nil {
		return nil, err
	}

	switch info.Name {
	case registry.NameIndexFile:
		return c.resolveIndexMany(ctx, states)
	case registry.NameActionFile:
		files := make([]*File, 0, len(states))
		for _, state := range states {
			files = append(files, newFileView(state))
		}
		return files, nil
	case registry.NameIndexFolder:
		return resolveFolders(states, filters)
	case registry.NameContentFolder:
		files := make([]*File, 0, len(states))
		for _, state := range states {
			files = append(files, newContentView(state))
		}
		return files, nil
	default:
		return c.resolveContentMany(ctx, info, account, states)
	}
}

// resolveIndexOne builds the view of one index stream: the index is the file
// half, and the content it points at is derived and attached. An unparseable
// contentId leaves the view file-only; that is data shape, not failure.
func (c *Client) resolveIndexOne(ctx context.Context, state *stream.State) (*File, error) {
	rec, err := decodeIndexRecord(state.Content)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", state.ID, err)
	}
	view := newFileView(state)

	contentID, err := stream.ParseID(rec.ContentID)
	if err != nil {
		return view, nil
	}
	contentState, err := c.loader.LoadState(ctx, contentID, nil)
	if err != nil {
		return nil, fmt.Errorf("derive content %s of index %s: %w", contentID, state.ID, err)
	}
	view.attachContent(contentState)
	return view, nil
}

// resolveContentOne builds the default view: the stream's own content plus a
// reverse join looking for the index record pointing at it. A missing or
// unreachable index degrades to NakedStream rather than failing; the content
// is real even when nothing indexes it.
func (c *Client) resolveContentOne(ctx context.Context, dappID uuid.UUID, state *stream.State) (*File, error) {
	view := newContentView(state)
	indexModel, err := c.registry.ModelByName(ctx, dappID, registry.NameIndexFile)
	if err != nil {
		return nil, err
	}
	match, err := c.findIndexFor(ctx, indexModel.ID, state.ID.String())
	if err != nil {
		c.log.Error("reverse join failed",
			"model", indexModel.ID.String(), "stream", state.ID.String(), "error", err)
		view.degrade(StatusNakedStream, fmt.Sprintf("load index set: %v", err))
		return view, nil
	}
	if match == nil {
		view.degrade(StatusNakedStream, "no index record points at "+state.ID.String())
		return view, nil
	}
	view.attachFile(indexModel.ID, match)
	return view, nil
}

// findIndexFor scans the dapp's index set for the record naming contentID.
// Returns nil when nothing points at it.
func (c *Client) findIndexFor(ctx context.Context, indexModelID stream.ID, contentID string) (*stream.State, error) {
	states, err := c.loader.LoadStates(ctx, indexModelID, nil)
	if err != nil {
		return nil, err
	}
	for _, s := range states {
		rec, err := decodeIndexRecord(s.Content)
		if err != nil {
			continue // malformed index records never join
		}
		if rec.ContentID == contentID {
			return s, nil
		}
	}
	return nil, nil
}

// resolveIndexMany builds index views in bulk. A per-item failure to decode
// the record or derive its content degrades that item to BrokenContent; the
// batch always completes.
func (c *Client) resolveIndexMany(ctx context.Context, states []*stream.State) ([]*File, error) {
	files := make([]*File, 0, len(states))
	for _, state := range states {
		view := newFileView(state)

		rec, err := decodeIndexRecord(state.Content)
		if err != nil {
			view.degrade(StatusBrokenContent, err.Error())
			files = append(files, view)
			continue
		}
		contentID := rec.ContentID
		view.ContentID = &contentID

		parsed, err := stream.ParseID(contentID)
		if err != nil {
			// Unparseable pointer: file-only view, not an error.
			files = append(files, view)
			continue
		}
		contentState, err := c.loader.LoadState(ctx, parsed, nil)
		if err != nil {
			view.degrade(StatusBrokenContent, fmt.Sprintf("derive content %s: %v", parsed, err))
			files = append(files, view)
			continue
		}
		view.attachContent(contentState)
		files = append(files, view)
	}
	return files, nil
}

// resolveFolders builds folder views and applies the signal filter. Broken
// folders stay in the result set and skip the filter; folders missing a
// required signal leave quietly.
func resolveFolders(states []*stream.State, filters Filters) ([]*File, error) {
	required, err := canonicalSignals(filters.Signals)
	if err != nil {
		return nil, err
	}

	files := make([]*File, 0, len(states))
	for _, state := range states {
		view := newContentView(state)

		if isNullJSON(state.Content) {
			view.degrade(StatusBrokenFolder, "folder content is null")
			files = append(files, view)
			continue
		}
		var rec FolderRecord
		if err := json.Unmarshal(state.Content, &rec); err != nil {
			view.degrade(StatusBrokenFolder, fmt.Sprintf("decode folder record: %v", err))
			files = append(files, view)
			continue
		}
		opts, err := rec.DecodeOptions()
		if err != nil {
			view.degrade(StatusBrokenFolder, err.Error())
			files = append(files, view)
			continue
		}
		if _, err := rec.DecodeAccessControl(); err != nil {
			view.degrade(StatusBrokenFolder, err.Error())
			files = append(files, view)
			continue
		}

		ok, err := declaresAll(opts, required)
		if err != nil {
			view.degrade(StatusBrokenFolder, fmt.Sprintf("compare signals: %v", err))
			files = append(files, view)
			continue
		}
		if !ok {
			continue
		}
		files = append(files, view)
	}
	return files, nil
}

// resolveContentMany builds default views and reverse-joins the dapp's index
// set in one scan. Content left unmatched after the scan is NakedStream.
func (c *Client) resolveContentMany(ctx context.Context, info *registry.ModelInfo, account *string, states []*stream.State) ([]*File, error) {
	indexModel, err := c.registry.ModelByName(ctx, info.DappID, registry.NameIndexFile)
	if err != nil {
		return nil, err
	}
	indexStates, err := c.loader.LoadStates(ctx, indexModel.ID, account)
	if err != nil {
		return nil, err
	}

	byContentID := make(map[string]*File, len(states))
	files := make([]*File, 0, len(states))
	for _, state := range states {
		view := newContentView(state)
		byContentID[state.ID.String()] = view
		files = append(files, view)
	}

	for _, idx := range indexStates {
		rec, err := decodeIndexRecord(idx.Content)
		if err != nil {
			continue // malformed index records never join
		}
		if view, ok := byContentID[rec.ContentID]; ok {
			view.attachFile(indexModel.ID, idx)
		}
	}

	for _, view := range files {
		if view.FileID == nil {
			view.degrade(StatusNakedStream, "no index record points at "+*view.ContentID)
		}
	}
	return files, nil
}
