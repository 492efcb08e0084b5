package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"github.com/roach88/tideline/internal/stream"
)

// Load fetches the record for one (dapp, stream) pair.
// Returns a NOT_FOUND error when no record exists for the pair.
func (s *Store) Load(ctx context.Context, dappID uuid.UUID, id stream.ID) (*stream.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dapp_id, stream_id, model, account, tip, content, updated_at
		FROM records
		WHERE dapp_id = ? AND stream_id = ?
	`, dappID.String(), id.String())

	rec, err := scanRecordRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stream.NewNotFoundError("stream record", id.String())
		}
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	return rec, nil
}

// Save upserts the record for its (dapp, stream) pair.
//
// This write is the durability boundary of commit acceptance: once Save
// returns nil the commit is accepted, regardless of what happens to any
// follow-on work. Last writer wins on conflict.
func (s *Store) Save(ctx context.Context, rec *stream.Record) error {
	var model any
	if rec.Model != nil {
		model = rec.Model.String()
	}
	var content any
	if rec.Content != nil {
		content = string(rec.Content)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (dapp_id, stream_id, model, account, tip, content, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dapp_id, stream_id) DO UPDATE SET
			model      = excluded.model,
			account    = excluded.account,
			tip        = excluded.tip,
			content    = excluded.content,
			updated_at = excluded.updated_at
	`, rec.DappID.String(), rec.StreamID.String(), model, rec.Account,
		rec.Tip.String(), content, updated.Unix())
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.StreamID, err)
	}
	return nil
}

// List returns every record owned by the given dapp.
// Results are ordered deterministically: ORDER BY stream_id COLLATE BINARY ASC.
func (s *Store) List(ctx context.Context, dappID uuid.UUID) ([]*stream.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dapp_id, stream_id, model, account, tip, content, updated_at
		FROM records
		WHERE dapp_id = ?
		ORDER BY stream_id COLLATE BINARY ASC
	`, dappID.String())
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListByModel returns every record whose declared model matches, across all
// dapps. Results are ordered deterministically: ORDER BY stream_id COLLATE
// BINARY ASC.
func (s *Store) ListByModel(ctx context.Context, model stream.ID) ([]*stream.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dapp_id, stream_id, model, account, tip, content, updated_at
		FROM records
		WHERE model = ?
		ORDER BY stream_id COLLATE BINARY ASC
	`, model.String())
	if err != nil {
		return nil, fmt.Errorf("list records of model %s: %w", model, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*stream.Record, error) {
	records := make([]*stream.Record, 0) // empty slice, not nil
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// scanRecord scans a row into a stream.Record.
func scanRecord(rows *sql.Rows) (*stream.Record, error) {
	var raw rawRecord
	if err := rows.Scan(
		&raw.dappID, &raw.streamID, &raw.model, &raw.account,
		&raw.tip, &raw.content, &raw.updated,
	); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return raw.decode()
}

// scanRecordRow scans a single row into a stream.Record.
func scanRecordRow(row *sql.Row) (*stream.Record, error) {
	var raw rawRecord
	if err := row.Scan(
		&raw.dappID, &raw.streamID, &raw.model, &raw.account,
		&raw.tip, &raw.content, &raw.updated,
	); err != nil {
		return nil, err
	}
	return raw.decode()
}

// rawRecord holds a record row before column decoding.
type rawRecord struct {
	dappID   string
	streamID string
	model    sql.NullString
	account  string
	tip      string
	content  sql.NullString
	updated  int64
}

func (r rawRecord) decode() (*stream.Record, error) {
	dappID, err := uuid.Parse(r.dappID)
	if err != nil {
		return nil, fmt.Errorf("decode dapp id %q: %w", r.dappID, err)
	}
	id, err := stream.ParseID(r.streamID)
	if err != nil {
		return nil, fmt.Errorf("decode stream id %q: %w", r.streamID, err)
	}
	tip, err := cid.Decode(r.tip)
	if err != nil {
		return nil, fmt.Errorf("decode tip of %s: %w", r.streamID, err)
	}

	rec := &stream.Record{
		DappID:    dappID,
		StreamID:  id,
		Account:   r.account,
		Tip:       tip,
		UpdatedAt: time.Unix(r.updated, 0).UTC(),
	}
	if r.model.Valid {
		model, err := stream.ParseID(r.model.String)
		if err != nil {
			return nil, fmt.Errorf("decode model of %s: %w", r.streamID, err)
		}
		rec.Model = &model
	}
	if r.content.Valid {
		rec.Content = json.RawMessage(r.content.String)
	}
	return rec, nil
}
