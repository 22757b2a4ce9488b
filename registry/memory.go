package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/merkle"
)

type memoryMember struct {
	messageLimit   uint64
	index          uint64
	rateCommitment *big.Int
	withdrawing    bool
}

// MemoryRegistry is a Registry that lives in memory. Withdrawals are a flag
// without freeze period and slashing has no deposit bookkeeping.
type MemoryRegistry struct {
	mtx     sync.RWMutex
	tree    *merkle.Tree
	members map[string]*memoryMember
}

// NewMemoryRegistry returns an empty registry with a tree of the depth
// provided.
func NewMemoryRegistry(depth int) (*MemoryRegistry, error) {
	tree, err := merkle.New(memdb.New(), depth)
	if err != nil {
		return nil, err
	}
	return &MemoryRegistry{tree: tree, members: make(map[string]*memoryMember)}, nil
}

func (r *MemoryRegistry) member(identityCommitment *big.Int) (*memoryMember, error) {
	if identityCommitment == nil {
		return nil, ErrNotRegistered
	}
	m, ok := r.members[identityCommitment.String()]
	if !ok {
		return nil, ErrNotRegistered
	}
	return m, nil
}

func (r *MemoryRegistry) IsRegistered(_ context.Context, identityCommitment *big.Int) (bool, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	_, err := r.member(identityCommitment)
	return err == nil, nil
}

func (r *MemoryRegistry) MerkleRoot(context.Context) (*big.Int, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.tree.Root()
}

func (r *MemoryRegistry) MessageLimit(_ context.Context, identityCommitment *big.Int) (uint64, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	m, err := r.member(identityCommitment)
	if err != nil {
		return 0, err
	}
	return m.messageLimit, nil
}

func (r *MemoryRegistry) RateCommitment(_ context.Context, identityCommitment *big.Int) (*big.Int, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	m, err := r.member(identityCommitment)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.rateCommitment), nil
}

func (r *MemoryRegistry) AllRateCommitments(context.Context) ([]*big.Int, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.tree.Leaves()
}

func (r *MemoryRegistry) GenerateMerkleProof(_ context.Context, identityCommitment *big.Int) (*merkle.Proof, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	m, err := r.member(identityCommitment)
	if err != nil {
		return nil, err
	}
	return r.tree.GenProof(m.index)
}

func (r *MemoryRegistry) Register(_ context.Context, identityCommitment *big.Int, messageLimit uint64) error {
	if identityCommitment == nil || messageLimit == 0 {
		return fmt.Errorf("invalid registration")
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, err := r.member(identityCommitment); err == nil {
		return ErrAlreadyRegistered
	}
	rc, err := identity.RateCommitment(identityCommitment, messageLimit)
	if err != nil {
		return err
	}
	index, err := r.tree.Insert(rc)
	if err != nil {
		return err
	}
	r.members[identityCommitment.String()] = &memoryMember{
		messageLimit:   messageLimit,
		index:          index,
		rateCommitment: rc,
	}
	log.Debugw("member registered", "index", index, "messageLimit", messageLimit)
	return nil
}

func (r *MemoryRegistry) Withdraw(_ context.Context, identitySecret *big.Int) error {
	idc, err := identity.Commitment(identitySecret)
	if err != nil {
		return err
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	m, err := r.member(idc)
	if err != nil {
		return err
	}
	if m.withdrawing {
		return ErrAlreadyWithdrawing
	}
	m.withdrawing = true
	return nil
}

func (r *MemoryRegistry) ReleaseWithdrawal(_ context.Context, identityCommitment *big.Int) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	m, err := r.member(identityCommitment)
	if err != nil {
		return err
	}
	if !m.withdrawing {
		return ErrNotWithdrawing
	}
	return r.remove(identityCommitment, m)
}

func (r *MemoryRegistry) Slash(_ context.Context, identitySecret *big.Int, _ common.Address) error {
	idc, err := identity.Commitment(identitySecret)
	if err != nil {
		return err
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	m, err := r.member(idc)
	if err != nil {
		return err
	}
	log.Debugw("member slashed", "index", m.index)
	return r.remove(idc, m)
}

func (r *MemoryRegistry) remove(identityCommitment *big.Int, m *memoryMember) error {
	if err := r.tree.Delete(m.index); err != nil {
		return err
	}
	delete(r.members, identityCommitment.String())
	return nil
}
