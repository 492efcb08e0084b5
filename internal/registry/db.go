package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tideline/internal/stream"
)

//go:embed schema.sql
var schemaSQL string

// DB is the SQLite-backed registry. It follows the record store's SQLite
// conventions: WAL journal, NORMAL synchronous mode, single writer
// connection, embedded schema.
type DB struct {
	db *sql.DB
}

// Open creates or opens the registry database at the given path.
// Idempotent - safe to call multiple times.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply registry schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (r *DB) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Model implements Registry.
func (r *DB) Model(ctx context.Context, id stream.ID) (*ModelInfo, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT m.id, m.name, m.dapp_id, d.endpoint
		FROM models m
		JOIN dapps d ON d.id = m.dapp_id
		WHERE m.id = ?
	`, id.String())

	info, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stream.NewNotFoundError("model", id.String())
		}
		return nil, fmt.Errorf("lookup model %s: %w", id, err)
	}
	return info, nil
}

// ModelByName implements Registry.
func (r *DB) ModelByName(ctx context.Context, dappID uuid.UUID, name string) (*ModelInfo, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT m.id, m.name, m.dapp_id, d.endpoint
		FROM models m
		JOIN dapps d ON d.id = m.dapp_id
		WHERE m.dapp_id = ? AND m.name = ?
	`, dappID.String(), name)

	info, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stream.NewNotFoundError("model", name)
		}
		return nil, fmt.Errorf("lookup model %q of dapp %s: %w", name, dappID, err)
	}
	return info, nil
}

// DappEndpoint implements Registry.
func (r *DB) DappEndpoint(ctx context.Context, dappID uuid.UUID) (string, error) {
	var endpoint string
	err := r.db.QueryRowContext(ctx, `
		SELECT endpoint FROM dapps WHERE id = ?
	`, dappID.String()).Scan(&endpoint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", stream.NewNotFoundError("dapp", dappID.String())
		}
		return "", fmt.Errorf("lookup dapp %s: %w", dappID, err)
	}
	return endpoint, nil
}

// PutDapp upserts a dapp entry.
func (r *DB) PutDapp(ctx context.Context, dapp Dapp) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dapps (id, name, endpoint)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name     = excluded.name,
			endpoint = excluded.endpoint
	`, dapp.ID.String(), dapp.Name, dapp.Endpoint)
	if err != nil {
		return fmt.Errorf("put dapp %s: %w", dapp.ID, err)
	}
	return nil
}

// PutModel upserts a model entry. The owning dapp must already exist.
func (r *DB) PutModel(ctx context.Context, info ModelInfo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO models (id, dapp_id, name)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			dapp_id = excluded.dapp_id,
			name    = excluded.name
	`, info.ID.String(), info.DappID.String(), info.Name)
	if err != nil {
		return fmt.Errorf("put model %s: %w", info.ID, err)
	}
	return nil
}

// Models returns every registered model, optionally narrowed to one dapp.
// Results are ordered deterministically: ORDER BY id COLLATE BINARY ASC.
func (r *DB) Models(ctx context.Context, dappID *uuid.UUID) ([]ModelInfo, error) {
	query := `
		SELECT m.id, m.name, m.dapp_id, d.endpoint
		FROM models m
		JOIN dapps d ON d.id = m.dapp_id
	`
	var args []any
	if dappID != nil {
		query += ` WHERE m.dapp_id = ?`
		args = append(args, dappID.String())
	}
	query += ` ORDER BY m.id COLLATE BINARY ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	models := make([]ModelInfo, 0) // empty slice, not nil
	for rows.Next() {
		var raw rawModel
		if err := rows.Scan(&raw.id, &raw.name, &raw.dappID, &raw.endpoint); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		info, err := raw.decode()
		if err != nil {
			return nil, err
		}
		models = append(models, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// scanModel scans a single model row.
func scanModel(row *sql.Row) (*ModelInfo, error) {
	var raw rawModel
	if err := row.Scan(&raw.id, &raw.name, &raw.dappID, &raw.endpoint); err != nil {
		return nil, err
	}
	return raw.decode()
}

// rawModel holds a model row before column decoding.
type rawModel struct {
	id       string
	name     string
	dappID   string
	endpoint string
}

func (r rawModel) decode() (*ModelInfo, error) {
	id, err := stream.ParseID(r.id)
	if err != nil {
		return nil, fmt.Errorf("decode model id %q: %w", r.id, err)
	}
	dappID, err := uuid.Parse(r.dappID)
	if err != nil {
		return nil, fmt.Errorf("decode dapp id %q: %w", r.dappID, err)
	}
	return &ModelInfo{ID: id, Name: r.name, DappID: dappID, Endpoint: r.endpoint}, nil
}
