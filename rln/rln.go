// Package rln is the engine of the Rate-Limiting Nullifier protocol. An RLN
// instance manages one identity: it registers it in the group, creates the
// proofs of its messages without exceeding the message limit, and verifies
// and records the proofs received from other members, recovering the secret
// of any member that breaks the limit.
package rln

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/rln-sandbox/cache"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/counter"
	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/registry"
	"github.com/vocdoni/rln-sandbox/types"
	"github.com/vocdoni/rln-sandbox/util"
)

var (
	ErrInvalidMessageLimit   = errors.New("invalid message limit")
	ErrInvalidState          = errors.New("operation not allowed in the current state")
	ErrProofAlreadyGenerated = errors.New("proof already generated")
	ErrWouldSpam             = errors.New("proof would exceed the message limit")
)

// Config holds the dependencies of an RLN instance. Every field is optional.
type Config struct {
	// Identity defaults to a new random identity.
	Identity *identity.Identity
	// RLNIdentifier scopes the proofs to one application. Defaults to a
	// random field element.
	RLNIdentifier *big.Int
	// TreeDepth of the membership tree. Defaults to types.DefaultTreeDepth.
	TreeDepth int
	// Registry defaults to a MemoryRegistry of TreeDepth.
	Registry registry.Registry
	// Cache defaults to an in-memory cache of types.DefaultCacheSize epochs.
	Cache *cache.Cache
	// Backend defaults to the rapidsnark backend.
	Backend circuits.Backend
	// Artifacts are the RLN circuit artifacts. When nil they are resolved
	// from ArtifactsConfig and the defaults of TreeDepth.
	Artifacts       *circuits.CircuitArtifacts
	ArtifactsConfig *circuits.ArtifactsConfig
}

// RLN manages the membership and the proofs of one identity.
type RLN struct {
	id            *identity.Identity
	rlnIdentifier *big.Int
	registry      registry.Registry
	cache         *cache.Cache
	prover        *circuits.RLNProver
	verifier      *circuits.RLNVerifier

	mtx     sync.RWMutex
	state   State
	counter counter.MessageIDCounter
}

// New resolves the configuration and returns an RLN instance in the
// unregistered state. Missing proving artifacts only fail on CreateProof and
// a missing verification key only fails on VerifyProof.
func New(ctx context.Context, cfg *Config) (*RLN, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var err error
	id := cfg.Identity
	if id == nil {
		if id, err = identity.New(); err != nil {
			return nil, err
		}
	}
	rlnIdentifier := cfg.RLNIdentifier
	if rlnIdentifier == nil {
		rlnIdentifier = util.RandomBigInt(field.Modulus())
	}
	depth := cfg.TreeDepth
	if depth == 0 {
		depth = types.DefaultTreeDepth
	}
	reg := cfg.Registry
	if reg == nil {
		if reg, err = registry.NewMemoryRegistry(depth); err != nil {
			return nil, err
		}
	}
	c := cfg.Cache
	if c == nil {
		if c, err = cache.New(nil, types.DefaultCacheSize); err != nil {
			return nil, err
		}
	}
	backend := cfg.Backend
	if backend == nil {
		backend = circuits.NewRapidsnarkBackend()
	}
	artifacts := cfg.Artifacts
	if artifacts == nil {
		if artifacts, err = circuits.ResolveRLNArtifacts(ctx, cfg.ArtifactsConfig, depth); err != nil {
			return nil, fmt.Errorf("could not resolve rln artifacts: %w", err)
		}
	}
	r := &RLN{
		id:            id,
		rlnIdentifier: field.Normalize(rlnIdentifier),
		registry:      reg,
		cache:         c,
	}
	if artifacts.CanProve() {
		if r.prover, err = circuits.NewRLNProver(backend, artifacts); err != nil {
			return nil, err
		}
	}
	if artifacts.CanVerify() {
		if r.verifier, err = circuits.NewRLNVerifier(backend, artifacts); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Identity returns the identity managed by the instance.
func (r *RLN) Identity() *identity.Identity {
	return r.id
}

// RLNIdentifier returns the application identifier of the proofs.
func (r *RLN) RLNIdentifier() *big.Int {
	return new(big.Int).Set(r.rlnIdentifier)
}

// State returns the current state of the identity.
func (r *RLN) State() State {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.state
}

// Sync moves an unregistered instance to the registered state when the
// registry already knows its identity, for example after a restart.
func (r *RLN) Sync(ctx context.Context) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.state != StateUnregistered {
		return nil
	}
	registered, err := r.registry.IsRegistered(ctx, r.id.Commitment)
	if err != nil || !registered {
		return err
	}
	limit, err := r.registry.MessageLimit(ctx, r.id.Commitment)
	if err != nil {
		return err
	}
	if r.counter, err = counter.NewMemoryCounter(limit); err != nil {
		return err
	}
	r.state = StateRegistered
	return nil
}

// Register adds the identity to the group with the message limit provided.
// If c is nil a new MemoryCounter is used to track the message ids.
func (r *RLN) Register(ctx context.Context, messageLimit uint64, c counter.MessageIDCounter) error {
	if messageLimit == 0 || messageLimit > types.MaxMessageLimit {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidMessageLimit, messageLimit, types.MaxMessageLimit)
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.state != StateUnregistered {
		return fmt.Errorf("%w: register from %s", ErrInvalidState, r.state)
	}
	if c == nil {
		var err error
		if c, err = counter.NewMemoryCounter(messageLimit); err != nil {
			return err
		}
	} else if c.MessageLimit() != messageLimit {
		return fmt.Errorf("%w: counter allows %d messages, registering %d",
			ErrInvalidMessageLimit, c.MessageLimit(), messageLimit)
	}
	if err := r.registry.Register(ctx, r.id.Commitment, messageLimit); err != nil {
		return err
	}
	r.counter = c
	r.state = StateRegistered
	log.Debugw("identity registered", "messageLimit", messageLimit)
	return nil
}

// CreateProof proves the message for the epoch. It fails when the message
// ids of the epoch are exhausted and, as a second guard, when the local
// cache reports the proof as a duplicate or a breach.
func (r *RLN) CreateProof(ctx context.Context, epoch *big.Int, message []byte) (*circuits.RLNFullProof, error) {
	if !field.IsInField(epoch) {
		return nil, fmt.Errorf("epoch %v: %w", epoch, field.ErrNotInField)
	}
	r.mtx.RLock()
	state, msgCounter := r.state, r.counter
	r.mtx.RUnlock()
	if state != StateRegistered {
		return nil, fmt.Errorf("%w: create proof from %s", ErrInvalidState, state)
	}
	if r.prover == nil {
		return nil, circuits.ErrMissingProvingArtifacts
	}
	merkleProof, err := r.registry.GenerateMerkleProof(ctx, r.id.Commitment)
	if err != nil {
		return nil, err
	}
	limit, err := r.registry.MessageLimit(ctx, r.id.Commitment)
	if err != nil {
		return nil, err
	}
	messageID, err := msgCounter.GetMessageIDAndIncrement(epoch)
	if err != nil {
		return nil, err
	}
	proof, err := r.prover.GenerateProof(ctx, &circuits.RLNWitness{
		IdentitySecret:   r.id.Secret,
		UserMessageLimit: limit,
		MessageID:        messageID,
		MerkleProof:      merkleProof,
		X:                identity.SignalHash(message),
		Epoch:            epoch,
		RLNIdentifier:    r.rlnIdentifier,
	})
	if err != nil {
		return nil, err
	}
	res, err := r.cache.CheckProof(proof.Share())
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case cache.StatusDuplicate:
		return nil, ErrProofAlreadyGenerated
	case cache.StatusBreach:
		return nil, ErrWouldSpam
	}
	if res, err = r.SaveProof(proof); err != nil {
		return nil, err
	}
	if res.Status != cache.StatusValid {
		return nil, fmt.Errorf("%w: proof saved as %s", ErrWouldSpam, res.Status)
	}
	return proof, nil
}

// VerifyProof checks that the proof belongs to this application, the epoch,
// the message and the current membership root, and then verifies the SNARK
// proof. Invalid proofs return false; errors are only returned when the
// verification key is missing or the registry can not be queried.
func (r *RLN) VerifyProof(ctx context.Context, epoch *big.Int, message []byte, proof *circuits.RLNFullProof) (bool, error) {
	if r.verifier == nil {
		return false, circuits.ErrMissingVerificationKey
	}
	if !proof.Valid() || !field.IsInField(epoch) {
		return false, nil
	}
	if proof.RLNIdentifier.MathBigInt().Cmp(r.rlnIdentifier) != 0 {
		log.Debugw("proof of another application", "rlnIdentifier", proof.RLNIdentifier.String())
		return false, nil
	}
	if proof.Epoch.MathBigInt().Cmp(epoch) != 0 {
		log.Debugw("proof of another epoch", "epoch", proof.Epoch.String())
		return false, nil
	}
	if proof.PublicSignals.X.MathBigInt().Cmp(identity.SignalHash(message)) != 0 {
		log.Debugw("proof of another message", "epoch", epoch.String())
		return false, nil
	}
	root, err := r.registry.MerkleRoot(ctx)
	if err != nil {
		return false, err
	}
	if proof.PublicSignals.Root.MathBigInt().Cmp(root) != 0 {
		log.Debugw("proof of another membership root", "root", proof.PublicSignals.Root.String())
		return false, nil
	}
	return r.verifier.VerifyProof(r.rlnIdentifier, proof)
}

// SaveProof records the proof share in the cache and returns its status. A
// breaching proof returns the recovered secret of its author.
func (r *RLN) SaveProof(proof *circuits.RLNFullProof) (*cache.EvaluatedProof, error) {
	if !proof.Valid() {
		return nil, fmt.Errorf("incomplete proof")
	}
	res, err := r.cache.AddProof(proof.Share())
	if err != nil {
		return res, err
	}
	log.Debugw("proof saved", "status", res.Status.String(), "epoch", proof.Epoch.String())
	return res, nil
}

// Withdraw requests the withdrawal of the identity from the group.
func (r *RLN) Withdraw(ctx context.Context) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.state != StateRegistered {
		return fmt.Errorf("%w: withdraw from %s", ErrInvalidState, r.state)
	}
	if err := r.registry.Withdraw(ctx, r.id.Secret); err != nil {
		return err
	}
	r.state = StateWithdrawing
	return nil
}

// ReleaseWithdrawal finalizes the withdrawal of the identity.
func (r *RLN) ReleaseWithdrawal(ctx context.Context) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.state != StateWithdrawing {
		return fmt.Errorf("%w: release from %s", ErrInvalidState, r.state)
	}
	if err := r.registry.ReleaseWithdrawal(ctx, r.id.Commitment); err != nil {
		return err
	}
	r.state = StateReleased
	return nil
}

// Slash removes the member whose secret was recovered from a breach. The
// deposit goes to receiver, or to the signer if receiver is the zero
// address.
func (r *RLN) Slash(ctx context.Context, secret *big.Int, receiver common.Address) error {
	if secret == nil {
		return fmt.Errorf("nil secret")
	}
	if err := r.registry.Slash(ctx, secret, receiver); err != nil {
		return err
	}
	if field.Normalize(secret).Cmp(r.id.Secret) == 0 {
		r.mtx.Lock()
		r.state = StateSlashed
		r.mtx.Unlock()
	}
	return nil
}

// MerkleRoot returns the current root of the membership tree.
func (r *RLN) MerkleRoot(ctx context.Context) (*big.Int, error) {
	return r.registry.MerkleRoot(ctx)
}

// AllRateCommitments returns every leaf of the membership tree.
func (r *RLN) AllRateCommitments(ctx context.Context) ([]*big.Int, error) {
	return r.registry.AllRateCommitments(ctx)
}

// IsRegistered reports whether the identity is a member of the group.
func (r *RLN) IsRegistered(ctx context.Context) (bool, error) {
	return r.registry.IsRegistered(ctx, r.id.Commitment)
}

// IsMember reports whether the identity commitment provided is a member of
// the group.
func (r *RLN) IsMember(ctx context.Context, identityCommitment *big.Int) (bool, error) {
	return r.registry.IsRegistered(ctx, identityCommitment)
}
