package web3

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/log"
)

// Default parameters of the MockChain RLN contract.
const (
	MockFreezePeriod   = 5
	MockMinimalDeposit = 100
)

// MockChain simulates a chain with a deployed RLN contract and its deposit
// token. Every transaction is mined in its own block. Withdraw and slash
// proofs are checked with the withdraw verification key, as the contract
// does.
type MockChain struct {
	mtx          sync.Mutex
	backend      circuits.Backend
	verifyingKey []byte
	block        uint64
	nextIndex    uint64
	members      map[string]*Member
	withdrawals  map[string]*Withdrawal
	allowances   map[common.Address]*big.Int
	events       []*MemberEvent
}

// NewMockChain returns a chain at block 1 whose contract verifies withdraw
// proofs with the backend and verification key provided.
func NewMockChain(backend circuits.Backend, withdrawVerifyingKey []byte) *MockChain {
	return &MockChain{
		backend:      backend,
		verifyingKey: withdrawVerifyingKey,
		block:        1,
		members:      make(map[string]*Member),
		withdrawals:  make(map[string]*Withdrawal),
		allowances:   make(map[common.Address]*big.Int),
	}
}

// Account returns the contracts client of the chain that signs with the
// address provided.
func (mc *MockChain) Account(address common.Address) *MockContracts {
	return &MockContracts{chain: mc, address: address}
}

// Mine advances the chain the number of blocks provided.
func (mc *MockChain) Mine(blocks uint64) {
	mc.mtx.Lock()
	defer mc.mtx.Unlock()
	mc.block += blocks
}

// approve sets the token allowance of owner for the RLN contract.
func (mc *MockChain) approve(owner common.Address, amount *big.Int) {
	mc.mtx.Lock()
	defer mc.mtx.Unlock()
	mc.block++
	mc.allowances[owner] = new(big.Int).Set(amount)
}

func (mc *MockChain) verifyProof(identityCommitment *big.Int, address common.Address, proof [8]*big.Int) error {
	valid, err := circuits.VerifyWithdrawProof(mc.backend, mc.verifyingKey, identityCommitment, address, proof)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("execution reverted: invalid proof")
	}
	return nil
}

// MockContracts is the client of a MockChain for one account. It offers the
// same methods as Contracts.
type MockContracts struct {
	chain   *MockChain
	address common.Address
}

// AccountAddress returns the address of the account.
func (m *MockContracts) AccountAddress() common.Address {
	return m.address
}

// BlockNumber returns the current block of the chain.
func (m *MockContracts) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.chain.mtx.Lock()
	defer m.chain.mtx.Unlock()
	return m.chain.block, nil
}

// Register approves the deposit and registers the member.
func (m *MockContracts) Register(ctx context.Context, identityCommitment *big.Int, messageLimit uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deposit := new(big.Int).Mul(big.NewInt(MockMinimalDeposit), new(big.Int).SetUint64(messageLimit))
	m.chain.approve(m.address, deposit)

	mc := m.chain
	mc.mtx.Lock()
	defer mc.mtx.Unlock()
	key := identityCommitment.String()
	if messageLimit == 0 {
		return fmt.Errorf("execution reverted: invalid message limit")
	}
	if _, ok := mc.members[key]; ok {
		return fmt.Errorf("execution reverted: duplicate identity commitment")
	}
	allowance := mc.allowances[m.address]
	if allowance == nil || allowance.Cmp(deposit) < 0 {
		return fmt.Errorf("execution reverted: insufficient allowance")
	}
	mc.allowances[m.address] = new(big.Int).Sub(allowance, deposit)
	mc.block++
	member := &Member{Address: m.address, MessageLimit: messageLimit, Index: mc.nextIndex}
	mc.nextIndex++
	mc.members[key] = member
	mc.events = append(mc.events, &MemberEvent{
		Type:               MemberRegistered,
		IdentityCommitment: new(big.Int).Set(identityCommitment),
		MessageLimit:       messageLimit,
		Index:              member.Index,
		BlockNumber:        mc.block,
	})
	log.Debugw("mock member registered", "index", member.Index, "block", mc.block)
	return nil
}

// Withdraw starts the withdrawal of a member owned by the account.
func (m *MockContracts) Withdraw(ctx context.Context, identityCommitment *big.Int, proof [8]*big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mc := m.chain
	mc.mtx.Lock()
	defer mc.mtx.Unlock()
	key := identityCommitment.String()
	member, ok := mc.members[key]
	if !ok {
		return fmt.Errorf("execution reverted: member not registered")
	}
	if member.Address != m.address {
		return fmt.Errorf("execution reverted: not the member owner")
	}
	if _, ok := mc.withdrawals[key]; ok {
		return fmt.Errorf("execution reverted: withdrawal already requested")
	}
	if err := mc.verifyProof(identityCommitment, member.Address, proof); err != nil {
		return err
	}
	mc.block++
	mc.withdrawals[key] = &Withdrawal{
		BlockNumber: mc.block,
		Amount:      new(big.Int).Mul(big.NewInt(MockMinimalDeposit), new(big.Int).SetUint64(member.MessageLimit)),
		Receiver:    member.Address,
	}
	return nil
}

// Release finalizes a withdrawal after the freeze period and removes the
// member.
func (m *MockContracts) Release(ctx context.Context, identityCommitment *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mc := m.chain
	mc.mtx.Lock()
	defer mc.mtx.Unlock()
	key := identityCommitment.String()
	w, ok := mc.withdrawals[key]
	if !ok {
		return fmt.Errorf("execution reverted: no pending withdrawal")
	}
	if mc.block+1 <= w.BlockNumber+MockFreezePeriod {
		return fmt.Errorf("execution reverted: freeze period not over")
	}
	mc.block++
	member := mc.members[key]
	delete(mc.withdrawals, key)
	delete(mc.members, key)
	mc.events = append(mc.events, &MemberEvent{
		Type:        MemberWithdrawn,
		Index:       member.Index,
		BlockNumber: mc.block,
	})
	return nil
}

// Slash removes a member given a withdraw proof made with its secret and
// bound to the receiver.
func (m *MockContracts) Slash(ctx context.Context, identityCommitment *big.Int, receiver common.Address, proof [8]*big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mc := m.chain
	mc.mtx.Lock()
	defer mc.mtx.Unlock()
	key := identityCommitment.String()
	member, ok := mc.members[key]
	if !ok {
		return fmt.Errorf("execution reverted: member not registered")
	}
	if member.Address == receiver {
		return fmt.Errorf("execution reverted: self slashing")
	}
	if err := mc.verifyProof(identityCommitment, receiver, proof); err != nil {
		return err
	}
	mc.block++
	delete(mc.withdrawals, key)
	delete(mc.members, key)
	mc.events = append(mc.events, &MemberEvent{
		Type:        MemberSlashed,
		Index:       member.Index,
		Slasher:     m.address,
		BlockNumber: mc.block,
	})
	return nil
}

// Member returns the record of the identity commitment, with a zero address
// if it is not registered.
func (m *MockContracts) Member(ctx context.Context, identityCommitment *big.Int) (*Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.chain.mtx.Lock()
	defer m.chain.mtx.Unlock()
	if member, ok := m.chain.members[identityCommitment.String()]; ok {
		cp := *member
		return &cp, nil
	}
	return &Member{}, nil
}

// Withdrawal returns the pending withdrawal of the identity commitment, with
// a zero block number if there is none.
func (m *MockContracts) Withdrawal(ctx context.Context, identityCommitment *big.Int) (*Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.chain.mtx.Lock()
	defer m.chain.mtx.Unlock()
	if w, ok := m.chain.withdrawals[identityCommitment.String()]; ok {
		cp := *w
		return &cp, nil
	}
	return &Withdrawal{Amount: new(big.Int)}, nil
}

// FreezePeriod returns MockFreezePeriod.
func (*MockContracts) FreezePeriod(context.Context) (uint64, error) {
	return MockFreezePeriod, nil
}

// MemberEvents returns the events emitted between the blocks provided, both
// included.
func (m *MockContracts) MemberEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*MemberEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.chain.mtx.Lock()
	defer m.chain.mtx.Unlock()
	events := []*MemberEvent{}
	for _, e := range m.chain.events {
		if e.BlockNumber >= fromBlock && e.BlockNumber <= toBlock {
			cp := *e
			events = append(events, &cp)
		}
	}
	return events, nil
}
