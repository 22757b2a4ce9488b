// Package registry keeps the directory of RLN members: the identity
// commitments, their message limits and their position in the membership
// merkle tree. MemoryRegistry holds everything in process; LedgerRegistry
// indexes the events of the RLN contract.
package registry

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/rln-sandbox/merkle"
)

var (
	ErrNotRegistered           = errors.New("identity not registered")
	ErrAlreadyRegistered       = errors.New("identity already registered")
	ErrAlreadyWithdrawing      = errors.New("withdrawal already requested")
	ErrNotWithdrawing          = errors.New("no pending withdrawal")
	ErrWithdrawalNotReleasable = errors.New("withdrawal not releasable yet")
	ErrSelfSlash               = errors.New("cannot slash a membership owned by the signer")
)

// Registry is the membership directory used by the RLN engine.
type Registry interface {
	// IsRegistered reports whether the identity commitment is a member.
	IsRegistered(ctx context.Context, identityCommitment *big.Int) (bool, error)
	// MerkleRoot returns the current root of the membership tree.
	MerkleRoot(ctx context.Context) (*big.Int, error)
	// MessageLimit returns the message limit of a member.
	MessageLimit(ctx context.Context, identityCommitment *big.Int) (uint64, error)
	// RateCommitment returns the tree leaf of a member.
	RateCommitment(ctx context.Context, identityCommitment *big.Int) (*big.Int, error)
	// AllRateCommitments returns every leaf of the tree in index order,
	// including the zero leaves of removed members.
	AllRateCommitments(ctx context.Context) ([]*big.Int, error)
	// GenerateMerkleProof returns the membership proof of a member.
	GenerateMerkleProof(ctx context.Context, identityCommitment *big.Int) (*merkle.Proof, error)
	// Register adds the identity commitment with the message limit.
	Register(ctx context.Context, identityCommitment *big.Int, messageLimit uint64) error
	// Withdraw starts the withdrawal of the member that owns the secret.
	Withdraw(ctx context.Context, identitySecret *big.Int) error
	// ReleaseWithdrawal finalizes a withdrawal and removes the member.
	ReleaseWithdrawal(ctx context.Context, identityCommitment *big.Int) error
	// Slash removes the member whose secret was recovered. The receiver of
	// the deposit defaults to the signer when it is the zero address.
	Slash(ctx context.Context, identitySecret *big.Int, receiver common.Address) error
}
