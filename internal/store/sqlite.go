package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the sqlite-backed document store. Every document lives in
// one table keyed by its full path, with the parent path and collection
// name denormalized for listing.
type SQLiteStore struct {
	db *sql.DB
}

var _ DocStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath, applies
// pragmas and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets sqlite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the raw document at path.
func (s *SQLiteStore) Get(ctx context.Context, path Path) (json.RawMessage, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE path = ?", path.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path.String(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path.String(), err)
	}

	return json.RawMessage(data), nil
}

// List returns every document in the named collection under parent,
// ordered by insertion (ULIDs sort chronologically).
func (s *SQLiteStore) List(ctx context.Context, parent Path, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, path, data FROM documents
		WHERE parent_path = ? AND collection = ?
		ORDER BY doc_id ASC
	`, parent.String(), collection)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", parent.String(), collection, err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ListGroup returns every document in any collection with the given name.
func (s *SQLiteStore) ListGroup(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, path, data FROM documents
		WHERE collection = ?
		ORDER BY path ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("list group %s: %w", collection, err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var id, pathStr, data string
		if err := rows.Scan(&id, &pathStr, &data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		path, err := ParsePath(pathStr)
		if err != nil {
			return nil, fmt.Errorf("stored path corrupt: %w", err)
		}
		docs = append(docs, Document{ID: id, Path: path, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return docs, nil
}

// Insert stores doc under a generated ULID and returns the id.
func (s *SQLiteStore) Insert(ctx context.Context, parent Path, collection string, doc any) (string, error) {
	id := ulid.Make().String()
	path := parent.Child(collection, id)
	if err := s.Put(ctx, path, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Put stores doc at path, creating or replacing it.
func (s *SQLiteStore) Put(ctx context.Context, path Path, doc any) error {
	if err := path.Validate(); err != nil {
		return err
	}

	raw, err := encodeDoc(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, parent_path, collection, doc_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, path.String(), path.Parent().String(), path.Collection(), path.ID(), string(raw), now, now)
	if err != nil {
		return fmt.Errorf("put %s: %w", path.String(), err)
	}

	return nil
}

// Merge applies a delete-merge of fields onto the document at path inside
// one transaction, creating the document when absent.
func (s *SQLiteStore) Merge(ctx context.Context, path Path, fields map[string]any) error {
	if err := path.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var base map[string]any
	var data string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE path = ?", path.String()).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// merge onto an absent document creates it
	case err != nil:
		return fmt.Errorf("merge read %s: %w", path.String(), err)
	default:
		if err := json.Unmarshal([]byte(data), &base); err != nil {
			return fmt.Errorf("merge decode %s: %w", path.String(), err)
		}
	}

	merged, err := json.Marshal(mergeInto(base, fields))
	if err != nil {
		return fmt.Errorf("merge encode %s: %w", path.String(), err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, parent_path, collection, doc_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, path.String(), path.Parent().String(), path.Collection(), path.ID(), string(merged), now, now)
	if err != nil {
		return fmt.Errorf("merge write %s: %w", path.String(), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Delete removes the document at path. Absent documents are not an error;
// callers that need existence checks read first.
func (s *SQLiteStore) Delete(ctx context.Context, path Path) error {
	if err := path.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE path = ?", path.String())
	if err != nil {
		return fmt.Errorf("delete %s: %w", path.String(), err)
	}

	return nil
}

// DeletePrefix removes every document nested under the document at path.
func (s *SQLiteStore) DeletePrefix(ctx context.Context, path Path) error {
	if err := path.Validate(); err != nil {
		return err
	}

	// ESCAPE guards paths containing LIKE metacharacters in segment ids.
	prefix := strings.ReplaceAll(strings.ReplaceAll(path.String(), `\`, `\\`), "%", `\%`)
	prefix = strings.ReplaceAll(prefix, "_", `\_`)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE path LIKE ? ESCAPE '\'`, prefix+"/%")
	if err != nil {
		return fmt.Errorf("delete prefix %s: %w", path.String(), err)
	}

	return nil
}
