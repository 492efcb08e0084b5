package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/roach88/tideline/internal/stream"
)

// createTestRegistry creates a registry backed by a temporary database.
func createTestRegistry(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// testModelStreamID derives a distinct model stream ID from a seed.
func testModelStreamID(t *testing.T, seed string) stream.ID {
	t.Helper()
	sum, err := mh.Sum([]byte(seed), mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("Sum() failed: %v", err)
	}
	return stream.NewID(stream.TypeModel, cid.NewCidV1(cid.Raw, sum))
}

// seedDapp registers a dapp and returns its ID.
func seedDapp(t *testing.T, r *DB, name, endpoint string) uuid.UUID {
	t.Helper()
	dappID := uuid.New()
	err := r.PutDapp(context.Background(), Dapp{ID: dappID, Name: name, Endpoint: endpoint})
	if err != nil {
		t.Fatalf("PutDapp(%s) failed: %v", name, err)
	}
	return dappID
}
