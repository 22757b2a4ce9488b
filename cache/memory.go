package cache

import (
	"slices"
	"sync"

	"github.com/vocdoni/rln-sandbox/types"
)

// MemoryStore is the default Store, kept in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	shares map[string]map[string][]*types.ProofShare
	epochs []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shares: make(map[string]map[string][]*types.ProofShare)}
}

func (m *MemoryStore) ProofShares(epoch, nullifier string) ([]*types.ProofShare, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.shares[epoch][nullifier]), nil
}

func (m *MemoryStore) AppendProofShare(share *types.ProofShare) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	epoch, nullifier := share.Epoch.String(), share.Nullifier.String()
	if m.shares[epoch] == nil {
		m.shares[epoch] = make(map[string][]*types.ProofShare)
	}
	m.shares[epoch][nullifier] = append(m.shares[epoch][nullifier], share)
	return nil
}

func (m *MemoryStore) Epochs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.epochs), nil
}

func (m *MemoryStore) AddEpoch(epoch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.epochs, epoch) {
		m.epochs = append(m.epochs, epoch)
	}
	return nil
}

func (m *MemoryStore) DeleteEpoch(epoch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs = slices.DeleteFunc(m.epochs, func(e string) bool { return e == epoch })
	delete(m.shares, epoch)
	return nil
}
