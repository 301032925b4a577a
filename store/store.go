package store

import (
	"context"
	"sync"

	"github.com/Gaurav-Gosain/cfproblem/problem"
)

// Store is the durable key-value contract the engine consumes. Upsert
// replaces the whole document stored under key.
type Store interface {
	FindByID(ctx context.Context, key string) (*problem.Document, bool, error)
	Upsert(ctx context.Context, key string, doc *problem.Document) error
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*problem.Document
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*problem.Document),
	}
}

func (m *Memory) FindByID(_ context.Context, key string) (*problem.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(), true, nil
}

func (m *Memory) Upsert(_ context.Context, key string, doc *problem.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = doc.Clone()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
