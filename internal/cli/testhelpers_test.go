package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tideline/internal/queue"
	"github.com/roach88/tideline/internal/store"
	"github.com/roach88/tideline/internal/stream"
	"github.com/roach88/tideline/internal/task"
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

// testCLIOptions returns root options the way PersistentPreRunE leaves them:
// defaults resolved, with the data dir pointed at a scratch directory.
func testCLIOptions(t *testing.T) *RootOptions {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.CacheSize = 16
	return &RootOptions{Format: "text", Config: cfg}
}

// testRecord builds a fully populated record for seeding.
func testRecord(t *testing.T, dappID uuid.UUID, seed string, model stream.ID) *stream.Record {
	t.Helper()
	return &stream.Record{
		DappID:    dappID,
		StreamID:  testStreamID(t, seed),
		Model:     &model,
		Account:   "did:key:z6MkCliAccount",
		Tip:       testCID(t, seed+"-tip"),
		Content:   json.RawMessage(`{"n":1}`),
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

// seedRecords writes records into the data dir's store the way acceptance
// would have.
func seedRecords(t *testing.T, dir string, records ...*stream.Record) {
	t.Helper()
	st, err := store.Open(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()
	for _, rec := range records {
		require.NoError(t, st.Save(context.Background(), rec))
	}
}

// seedTasks enqueues tasks into the data dir's queue.
func seedTasks(t *testing.T, dir string, tasks ...task.Task) {
	t.Helper()
	q, err := queue.Open(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Close()) }()
	for _, tk := range tasks {
		require.NoError(t, q.Enqueue(context.Background(), tk))
	}
}

// queueCount reopens the queue and reports how many tasks stay pending.
func queueCount(t *testing.T, dir string) int {
	t.Helper()
	q, err := queue.Open(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Close()) }()
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	return n
}
