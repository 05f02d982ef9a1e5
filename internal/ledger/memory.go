package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/physver/trustchain/internal/errdefs"
)

// Memory is an in-memory, thread-safe Store implementation.
type Memory struct {
	mu sync.RWMutex

	byHash     map[string]*Submission
	order      []string // global insertion order; index == SequenceNumber
	byDevice   map[string][]string
	byVerifier map[string][]string
}

// NewMemory creates an empty in-memory submission store.
func NewMemory() *Memory {
	return &Memory{
		byHash:     make(map[string]*Submission),
		byDevice:   make(map[string][]string),
		byVerifier: make(map[string][]string),
	}
}

// Insert implements Store.
func (m *Memory) Insert(_ context.Context, sub *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHash[sub.DataHash]; ok {
		return fmt.Errorf("%w: submission %s", errdefs.ErrConflict, sub.DataHash)
	}

	sub.SequenceNumber = uint64(len(m.order))
	stored := cloneSubmission(sub)

	m.byHash[stored.DataHash] = stored
	m.order = append(m.order, stored.DataHash)
	m.byDevice[stored.DeviceID] = append(m.byDevice[stored.DeviceID], stored.DataHash)
	m.byVerifier[stored.VerifierAddress] = append(m.byVerifier[stored.VerifierAddress], stored.DataHash)
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, dataHash string) (*Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.byHash[dataHash]
	if !ok {
		return nil, fmt.Errorf("%w: submission %s", errdefs.ErrNotFound, dataHash)
	}
	return cloneSubmission(sub), nil
}

// Has implements Store.
func (m *Memory) Has(_ context.Context, dataHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byHash[dataHash]
	return ok, nil
}

// Total implements Store.
func (m *Memory) Total(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.order)), nil
}

// ByDevice implements Store.
func (m *Memory) ByDevice(_ context.Context, deviceID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.byDevice[deviceID]...), nil
}

// ByVerifier implements Store.
func (m *Memory) ByVerifier(_ context.Context, address string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.byVerifier[address]...), nil
}

// Slice implements Store.
func (m *Memory) Slice(_ context.Context, start, count uint64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := uint64(len(m.order))
	if start >= total {
		return nil, fmt.Errorf("%w: start %d >= total %d", errdefs.ErrRange, start, total)
	}
	end := start + count
	if end > total {
		end = total
	}
	return append([]string(nil), m.order[start:end]...), nil
}

func cloneSubmission(s *Submission) *Submission {
	c := *s
	c.Signature = append([]byte(nil), s.Signature...)
	return &c
}
