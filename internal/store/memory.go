package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process DocStore used by tests and by components that
// need a throwaway backend. It mirrors the sqlite store's semantics,
// including delete-merge and idempotent deletes.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]json.RawMessage
	closed bool
}

var _ DocStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(ctx context.Context, path Path) (json.RawMessage, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	raw, ok := m.docs[path.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path.String(), ErrNotFound)
	}
	return raw, nil
}

func (m *Memory) List(ctx context.Context, parent Path, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	prefix := parent.String() + "/" + collection + "/"
	var docs []Document
	for key, raw := range m.docs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if strings.Contains(rest, "/") {
			continue // deeper descendant, not a direct member
		}
		path, err := ParsePath(key)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: rest, Path: path, Data: raw})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *Memory) ListGroup(ctx context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var docs []Document
	for key, raw := range m.docs {
		path, err := ParsePath(key)
		if err != nil {
			return nil, err
		}
		if path.Collection() != collection {
			continue
		}
		docs = append(docs, Document{ID: path.ID(), Path: path, Data: raw})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path.String() < docs[j].Path.String() })
	return docs, nil
}

func (m *Memory) Insert(ctx context.Context, parent Path, collection string, doc any) (string, error) {
	id := ulid.Make().String()
	if err := m.Put(ctx, parent.Child(collection, id), doc); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Put(ctx context.Context, path Path, doc any) error {
	if err := path.Validate(); err != nil {
		return err
	}

	raw, err := encodeDoc(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.docs[path.String()] = raw
	return nil
}

func (m *Memory) Merge(ctx context.Context, path Path, fields map[string]any) error {
	if err := path.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	var base map[string]any
	if raw, ok := m.docs[path.String()]; ok {
		if err := json.Unmarshal(raw, &base); err != nil {
			return fmt.Errorf("merge decode %s: %w", path.String(), err)
		}
	}

	merged, err := json.Marshal(mergeInto(base, fields))
	if err != nil {
		return fmt.Errorf("merge encode %s: %w", path.String(), err)
	}

	m.docs[path.String()] = merged
	return nil
}

func (m *Memory) Delete(ctx context.Context, path Path) error {
	if err := path.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	delete(m.docs, path.String())
	return nil
}

func (m *Memory) DeletePrefix(ctx context.Context, path Path) error {
	if err := path.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	prefix := path.String() + "/"
	for key := range m.docs {
		if strings.HasPrefix(key, prefix) {
			delete(m.docs, key)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
