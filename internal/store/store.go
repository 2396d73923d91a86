package store

import (
	"context"
	"encoding/json"
)

// Document is a stored document together with its address.
type Document struct {
	ID   string
	Path Path
	Data json.RawMessage
}

// DocStore is the contract the core requires from the hierarchical
// document backend: point read, collection listing, insert with a
// generated id, merge-update with field deletion, idempotent delete, and a
// collection-group scan for background sweeps.
type DocStore interface {
	// Get returns the raw document at path, or ErrNotFound.
	Get(ctx context.Context, path Path) (json.RawMessage, error)
	// List returns every document in the named collection under parent,
	// ordered by document id. With generated ULID ids that is insertion
	// order; documents stored under caller-supplied ids sort by those ids
	// instead. An absent collection yields an empty slice, not an error.
	List(ctx context.Context, parent Path, collection string) ([]Document, error)
	// Insert stores doc in the named collection under a generated id and
	// returns that id.
	Insert(ctx context.Context, parent Path, collection string, doc any) (string, error)
	// Put stores doc at path, creating or replacing it.
	Put(ctx context.Context, path Path, doc any) error
	// Merge applies fields onto the document at path, creating it if
	// absent. A nil value deletes the field ("delete-merge").
	Merge(ctx context.Context, path Path, fields map[string]any) error
	// Delete removes the document at path. Deleting an absent document is
	// not an error.
	Delete(ctx context.Context, path Path) error
	// DeletePrefix removes every document nested under the document at
	// path, but not the document itself.
	DeletePrefix(ctx context.Context, path Path) error
	// ListGroup returns every document stored in any collection with the
	// given name, regardless of depth.
	ListGroup(ctx context.Context, collection string) ([]Document, error)
	Close() error
}

// mergeInto applies a delete-merge of fields onto base (a decoded JSON
// object). Shared by the sqlite and in-memory implementations.
func mergeInto(base map[string]any, fields map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	return base
}

// encodeDoc normalizes a document value to a JSON object so merge
// semantics are uniform across inputs (structs, maps, RawMessage).
func encodeDoc(doc any) (json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
