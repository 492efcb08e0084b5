package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
)

// Record is the persisted pointer for one (dapp, stream) pair: the last
// accepted tip plus the content and ownership snapshot at that tip. One
// record exists per pair; accepting a commit overwrites it.
type Record struct {
	DappID    uuid.UUID
	StreamID  ID
	Model     *ID
	Account   string
	Tip       cid.Cid
	Content   json.RawMessage
	UpdatedAt time.Time
}

// RecordStore persists stream records. Load returns a NOT_FOUND error for an
// absent pair; Save upserts and is the durability boundary of acceptance.
type RecordStore interface {
	Load(ctx context.Context, dappID uuid.UUID, id ID) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

// ModelResolver confirms a model reference is registered before signature
// policy runs against it.
type ModelResolver interface {
	ResolveModel(ctx context.Context, model ID) error
}

// ModelResolverFunc adapts a function to the ModelResolver interface.
type ModelResolverFunc func(ctx context.Context, model ID) error

// ResolveModel implements ModelResolver.
func (f ModelResolverFunc) ResolveModel(ctx context.Context, model ID) error {
	return f(ctx, model)
}
