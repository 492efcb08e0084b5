package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/roach88/tideline/internal/stream"
)

// Names the file layer dispatches on. A model whose name is none of these
// resolves through the default (content + reverse join) path.
const (
	NameIndexFile     = "indexFile"
	NameActionFile    = "actionFile"
	NameIndexFolder   = "indexFolder"
	NameContentFolder = "contentFolder"
)

// ModelInfo describes one registered model: its stream identifier, its name
// within the owning dapp, and the gateway endpoint serving that dapp.
type ModelInfo struct {
	ID     stream.ID
	Name   string
	DappID uuid.UUID

	// Endpoint is denormalized from the owning dapp for callers that need
	// to reach the dapp's gateway without a second lookup.
	Endpoint string
}

// Dapp describes one registered application namespace.
type Dapp struct {
	ID       uuid.UUID
	Name     string
	Endpoint string
}

// Registry resolves models and dapps. Lookups that miss return a NOT_FOUND
// error.
type Registry interface {
	// Model returns the entry for a model stream id.
	Model(ctx context.Context, id stream.ID) (*ModelInfo, error)

	// ModelByName returns the dapp's model carrying the given name.
	ModelByName(ctx context.Context, dappID uuid.UUID, name string) (*ModelInfo, error)

	// DappEndpoint returns the gateway base URL serving the dapp.
	DappEndpoint(ctx context.Context, dappID uuid.UUID) (string, error)
}
