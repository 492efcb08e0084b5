package store

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/roach88/tideline/internal/stream"
)

// createTestStore creates a store backed by a temporary database.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testCID derives a distinct address from a seed.
func testCID(t *testing.T, seed string) cid.Cid {
	t.Helper()
	sum, err := mh.Sum([]byte(seed), mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("Sum() failed: %v", err)
	}
	return cid.NewCidV1(cid.Raw, sum)
}

// testStreamID derives a distinct model-instance stream ID from a seed.
func testStreamID(t *testing.T, seed string) stream.ID {
	t.Helper()
	return stream.NewID(stream.TypeModelInstance, testCID(t, seed))
}

// testModelID derives a distinct model stream ID from a seed.
func testModelID(t *testing.T, seed string) stream.ID {
	t.Helper()
	return stream.NewID(stream.TypeModel, testCID(t, seed))
}

// createTestRecord creates a record with every column populated.
func createTestRecord(t *testing.T, dappID uuid.UUID, streamSeed string, model stream.ID) *stream.Record {
	t.Helper()
	return &stream.Record{
		DappID:    dappID,
		StreamID:  testStreamID(t, streamSeed),
		Model:     &model,
		Account:   "did:key:z6MkTestAccount",
		Tip:       testCID(t, streamSeed+"-tip"),
		Content:   json.RawMessage(`{"n":1}`),
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
