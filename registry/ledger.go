package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/merkle"
	"github.com/vocdoni/rln-sandbox/storage"
	"github.com/vocdoni/rln-sandbox/types"
	"github.com/vocdoni/rln-sandbox/web3"
)

// Contracts is the RLN contract client used by the LedgerRegistry. It is
// implemented by web3.Contracts and web3.MockContracts.
type Contracts interface {
	AccountAddress() common.Address
	BlockNumber(ctx context.Context) (uint64, error)
	MemberEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*web3.MemberEvent, error)
	Register(ctx context.Context, identityCommitment *big.Int, messageLimit uint64) error
	Withdraw(ctx context.Context, identityCommitment *big.Int, proof [8]*big.Int) error
	Release(ctx context.Context, identityCommitment *big.Int) error
	Slash(ctx context.Context, identityCommitment *big.Int, receiver common.Address, proof [8]*big.Int) error
	Member(ctx context.Context, identityCommitment *big.Int) (*web3.Member, error)
	Withdrawal(ctx context.Context, identityCommitment *big.Int) (*web3.Withdrawal, error)
	FreezePeriod(ctx context.Context) (uint64, error)
}

// LedgerConfig configures a LedgerRegistry.
type LedgerConfig struct {
	Contracts Contracts
	Storage   *storage.Storage
	// ContractAddress binds the stored index to one contract. Optional.
	ContractAddress common.Address
	// StartBlock is the first block indexed, usually the deployment block.
	StartBlock uint64
	Depth      int
	// WithdrawProver proves the knowledge of the secret on withdraw and
	// slash. Without it both operations fail.
	WithdrawProver *circuits.WithdrawProver
}

// LedgerRegistry is a Registry backed by the RLN contract. The membership
// tree and the members are indexed from the contract events and persisted,
// so every query only applies the events of the blocks mined since the
// previous one.
type LedgerRegistry struct {
	contracts  Contracts
	storage    *storage.Storage
	tree       *merkle.Tree
	prover     *circuits.WithdrawProver
	contract   types.HexBytes
	startBlock uint64
	syncMtx    sync.Mutex
}

// NewLedgerRegistry returns a LedgerRegistry. The index is not synced until
// the first query.
func NewLedgerRegistry(cfg *LedgerConfig) (*LedgerRegistry, error) {
	if cfg == nil || cfg.Contracts == nil || cfg.Storage == nil {
		return nil, fmt.Errorf("ledger registry needs contracts and storage")
	}
	depth := cfg.Depth
	if depth == 0 {
		depth = types.DefaultTreeDepth
	}
	tree, err := merkle.New(cfg.Storage.TreeDB(), depth)
	if err != nil {
		return nil, err
	}
	r := &LedgerRegistry{
		contracts:  cfg.Contracts,
		storage:    cfg.Storage,
		tree:       tree,
		prover:     cfg.WithdrawProver,
		contract:   cfg.ContractAddress.Bytes(),
		startBlock: cfg.StartBlock,
	}
	st, err := r.storage.LedgerSyncState()
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	case !bytes.Equal(st.Contract, r.contract):
		return nil, fmt.Errorf("storage indexes contract %s, not %s", st.Contract, r.contract)
	}
	return r, nil
}

// Sync applies the contract events mined since the last sync.
func (r *LedgerRegistry) Sync(ctx context.Context) error {
	r.syncMtx.Lock()
	defer r.syncMtx.Unlock()
	head, err := r.contracts.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("could not get block number: %w", err)
	}
	from := r.startBlock
	st, err := r.storage.LedgerSyncState()
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		from = st.LastBlock + 1
	}
	if from > head {
		return nil
	}
	events, err := r.contracts.MemberEvents(ctx, from, head)
	if err != nil {
		return fmt.Errorf("could not get member events: %w", err)
	}
	for _, e := range events {
		if err := r.apply(e); err != nil {
			return fmt.Errorf("could not apply %s event of block %d: %w", e.Type, e.BlockNumber, err)
		}
	}
	if err := r.storage.SetLedgerSyncState(&storage.LedgerSyncState{
		Contract:  r.contract,
		LastBlock: head,
	}); err != nil {
		return err
	}
	syncedBlock.Set(float64(head))
	if len(events) > 0 {
		log.Debugw("ledger registry synced", "from", from, "to", head, "events", len(events))
	}
	return nil
}

func (r *LedgerRegistry) apply(e *web3.MemberEvent) error {
	switch e.Type {
	case web3.MemberRegistered:
		rc, err := identity.RateCommitment(e.IdentityCommitment, e.MessageLimit)
		if err != nil {
			return err
		}
		if err := r.tree.Set(e.Index, rc); err != nil {
			return err
		}
		return r.storage.SetMember(&storage.MemberRecord{
			IdentityCommitment: types.NewInt(e.IdentityCommitment),
			MessageLimit:       e.MessageLimit,
			Index:              e.Index,
			RateCommitment:     types.NewInt(rc),
		})
	case web3.MemberWithdrawn, web3.MemberSlashed:
		if err := r.tree.Delete(e.Index); err != nil {
			return err
		}
		m, err := r.storage.MemberByIndex(e.Index)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				log.Warnw("removal of an unknown member", "index", e.Index)
				return nil
			}
			return err
		}
		return r.storage.DeleteMember(m.IdentityCommitment.MathBigInt())
	default:
		return fmt.Errorf("unknown event type %d", e.Type)
	}
}

// member syncs the index and returns the member record.
func (r *LedgerRegistry) member(ctx context.Context, identityCommitment *big.Int) (*storage.MemberRecord, error) {
	if err := r.Sync(ctx); err != nil {
		return nil, err
	}
	if identityCommitment == nil {
		return nil, ErrNotRegistered
	}
	m, err := r.storage.Member(identityCommitment)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	return m, err
}

func (r *LedgerRegistry) IsRegistered(ctx context.Context, identityCommitment *big.Int) (bool, error) {
	_, err := r.member(ctx, identityCommitment)
	if errors.Is(err, ErrNotRegistered) {
		return false, nil
	}
	return err == nil, err
}

func (r *LedgerRegistry) MerkleRoot(ctx context.Context) (*big.Int, error) {
	if err := r.Sync(ctx); err != nil {
		return nil, err
	}
	return r.tree.Root()
}

func (r *LedgerRegistry) MessageLimit(ctx context.Context, identityCommitment *big.Int) (uint64, error) {
	m, err := r.member(ctx, identityCommitment)
	if err != nil {
		return 0, err
	}
	return m.MessageLimit, nil
}

func (r *LedgerRegistry) RateCommitment(ctx context.Context, identityCommitment *big.Int) (*big.Int, error) {
	m, err := r.member(ctx, identityCommitment)
	if err != nil {
		return nil, err
	}
	return m.RateCommitment.MathBigInt(), nil
}

func (r *LedgerRegistry) AllRateCommitments(ctx context.Context) ([]*big.Int, error) {
	if err := r.Sync(ctx); err != nil {
		return nil, err
	}
	return r.tree.Leaves()
}

func (r *LedgerRegistry) GenerateMerkleProof(ctx context.Context, identityCommitment *big.Int) (*merkle.Proof, error) {
	m, err := r.member(ctx, identityCommitment)
	if err != nil {
		return nil, err
	}
	return r.tree.GenProof(m.Index)
}

// Register approves the deposit and registers the member on the contract,
// waiting for both transactions.
func (r *LedgerRegistry) Register(ctx context.Context, identityCommitment *big.Int, messageLimit uint64) error {
	if identityCommitment == nil || messageLimit == 0 {
		return fmt.Errorf("invalid registration")
	}
	if _, err := r.member(ctx, identityCommitment); err == nil {
		return ErrAlreadyRegistered
	} else if !errors.Is(err, ErrNotRegistered) {
		return err
	}
	if err := r.contracts.Register(ctx, identityCommitment, messageLimit); err != nil {
		return err
	}
	return r.Sync(ctx)
}

// Withdraw proves the knowledge of the secret for the member address and
// starts the withdrawal on the contract.
func (r *LedgerRegistry) Withdraw(ctx context.Context, identitySecret *big.Int) error {
	idc, err := identity.Commitment(identitySecret)
	if err != nil {
		return err
	}
	if _, err := r.member(ctx, idc); err != nil {
		return err
	}
	w, err := r.contracts.Withdrawal(ctx, idc)
	if err != nil {
		return err
	}
	if w.BlockNumber != 0 {
		return ErrAlreadyWithdrawing
	}
	onchain, err := r.contracts.Member(ctx, idc)
	if err != nil {
		return err
	}
	proof, err := r.withdrawCalldata(ctx, identitySecret, onchain.Address)
	if err != nil {
		return err
	}
	if err := r.contracts.Withdraw(ctx, idc, proof); err != nil {
		return err
	}
	log.Debugw("withdrawal requested", "identityCommitment", idc.String())
	return nil
}

// ReleaseWithdrawal releases a withdrawal once more than FREEZE_PERIOD
// blocks have been mined since it was requested.
func (r *LedgerRegistry) ReleaseWithdrawal(ctx context.Context, identityCommitment *big.Int) error {
	if _, err := r.member(ctx, identityCommitment); err != nil {
		return err
	}
	w, err := r.contracts.Withdrawal(ctx, identityCommitment)
	if err != nil {
		return err
	}
	if w.BlockNumber == 0 {
		return ErrNotWithdrawing
	}
	freeze, err := r.contracts.FreezePeriod(ctx)
	if err != nil {
		return err
	}
	head, err := r.contracts.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if head <= w.BlockNumber+freeze {
		return fmt.Errorf("%w: %d blocks left", ErrWithdrawalNotReleasable, w.BlockNumber+freeze-head+1)
	}
	if err := r.contracts.Release(ctx, identityCommitment); err != nil {
		return err
	}
	return r.Sync(ctx)
}

// Slash removes the member that owns the secret. The signer can not slash
// its own membership.
func (r *LedgerRegistry) Slash(ctx context.Context, identitySecret *big.Int, receiver common.Address) error {
	idc, err := identity.Commitment(identitySecret)
	if err != nil {
		return err
	}
	if _, err := r.member(ctx, idc); err != nil {
		return err
	}
	onchain, err := r.contracts.Member(ctx, idc)
	if err != nil {
		return err
	}
	signer := r.contracts.AccountAddress()
	if onchain.Address == signer {
		return ErrSelfSlash
	}
	if receiver == (common.Address{}) {
		receiver = signer
	}
	proof, err := r.withdrawCalldata(ctx, identitySecret, receiver)
	if err != nil {
		return err
	}
	if err := r.contracts.Slash(ctx, idc, receiver, proof); err != nil {
		return err
	}
	log.Infow("member slashed", "identityCommitment", idc.String(), "receiver", receiver.Hex())
	return r.Sync(ctx)
}

func (r *LedgerRegistry) withdrawCalldata(ctx context.Context, secret *big.Int, address common.Address) ([8]*big.Int, error) {
	if r.prover == nil {
		return [8]*big.Int{}, circuits.ErrMissingProvingArtifacts
	}
	proof, err := r.prover.GenerateProof(ctx, secret, address)
	if err != nil {
		return [8]*big.Int{}, err
	}
	return proof.SolidityCalldata()
}
