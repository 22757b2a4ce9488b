package circuits

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/merkle"
	"github.com/vocdoni/rln-sandbox/types"
)

// Input names of the RLN circom circuit.
const (
	InputIdentitySecret    = "identitySecret"
	InputUserMessageLimit  = "userMessageLimit"
	InputMessageID         = "messageId"
	InputPathElements      = "pathElements"
	InputIdentityPathIndex = "identityPathIndex"
	InputX                 = "x"
	InputExternalNullifier = "externalNullifier"
)

// RLNPublicSignalsLen is the number of public signals of the RLN circuit:
// y, root, nullifier, x and externalNullifier, in that order.
const RLNPublicSignalsLen = 5

// RLNWitness holds the private and public inputs of an RLN proof.
type RLNWitness struct {
	IdentitySecret   *big.Int
	UserMessageLimit uint64
	MessageID        uint64
	MerkleProof      *merkle.Proof
	X                *big.Int
	Epoch            *big.Int
	RLNIdentifier    *big.Int
}

// CircomInputs returns the witness encoded as the circom inputs map.
func (w *RLNWitness) CircomInputs() (map[string]any, error) {
	if w.IdentitySecret == nil || w.X == nil || w.Epoch == nil || w.RLNIdentifier == nil {
		return nil, fmt.Errorf("incomplete rln witness")
	}
	if w.MerkleProof == nil || len(w.MerkleProof.Siblings) != len(w.MerkleProof.PathIndices) {
		return nil, fmt.Errorf("invalid merkle proof")
	}
	extNullifier, err := identity.ExternalNullifier(w.Epoch, w.RLNIdentifier)
	if err != nil {
		return nil, err
	}
	pathIndex := make([]string, len(w.MerkleProof.PathIndices))
	for i, idx := range w.MerkleProof.PathIndices {
		pathIndex[i] = fmt.Sprint(idx)
	}
	return map[string]any{
		InputIdentitySecret:    field.Normalize(w.IdentitySecret).String(),
		InputUserMessageLimit:  fmt.Sprint(w.UserMessageLimit),
		InputMessageID:         fmt.Sprint(w.MessageID),
		InputPathElements:      BigIntArrayToStringArray(w.MerkleProof.Siblings, len(w.MerkleProof.Siblings)),
		InputIdentityPathIndex: pathIndex,
		InputX:                 field.Normalize(w.X).String(),
		InputExternalNullifier: extNullifier.String(),
	}, nil
}

// RLNPublicSignals are the public signals of an RLN proof.
type RLNPublicSignals struct {
	Y                 *types.BigInt `json:"y"`
	Root              *types.BigInt `json:"root"`
	Nullifier         *types.BigInt `json:"nullifier"`
	X                 *types.BigInt `json:"x"`
	ExternalNullifier *types.BigInt `json:"externalNullifier"`
}

// NewRLNPublicSignals decodes the public signals in circuit order.
func NewRLNPublicSignals(signals []*big.Int) (*RLNPublicSignals, error) {
	if len(signals) != RLNPublicSignalsLen {
		return nil, fmt.Errorf("expected %d public signals, got %d", RLNPublicSignalsLen, len(signals))
	}
	return &RLNPublicSignals{
		Y:                 types.NewInt(signals[0]),
		Root:              types.NewInt(signals[1]),
		Nullifier:         types.NewInt(signals[2]),
		X:                 types.NewInt(signals[3]),
		ExternalNullifier: types.NewInt(signals[4]),
	}, nil
}

// Signals returns the public signals in circuit order.
func (s *RLNPublicSignals) Signals() []*big.Int {
	return []*big.Int{
		s.Y.MathBigInt(),
		s.Root.MathBigInt(),
		s.Nullifier.MathBigInt(),
		s.X.MathBigInt(),
		s.ExternalNullifier.MathBigInt(),
	}
}

func (s *RLNPublicSignals) complete() bool {
	return s != nil && s.Y != nil && s.Root != nil && s.Nullifier != nil &&
		s.X != nil && s.ExternalNullifier != nil
}

// RLNFullProof is an RLN proof together with the epoch and RLN identifier
// needed to recompute its external nullifier.
type RLNFullProof struct {
	SNARKProof    types.HexBytes    `json:"snarkProof"`
	PublicSignals *RLNPublicSignals `json:"publicSignals"`
	Epoch         *types.BigInt     `json:"epoch"`
	RLNIdentifier *types.BigInt     `json:"rlnIdentifier"`
}

// Share returns the proof share revealed by the proof.
func (p *RLNFullProof) Share() *types.ProofShare {
	return &types.ProofShare{
		X:         p.PublicSignals.X,
		Y:         p.PublicSignals.Y,
		Epoch:     p.Epoch,
		Nullifier: p.PublicSignals.Nullifier,
	}
}

// Valid reports whether every field of the proof is set.
func (p *RLNFullProof) Valid() bool {
	return p != nil && len(p.SNARKProof) > 0 && p.PublicSignals.complete() &&
		p.Epoch != nil && p.RLNIdentifier != nil
}

// RLNProver generates RLN proofs.
type RLNProver struct {
	backend   Backend
	artifacts *CircuitArtifacts
}

// NewRLNProver returns a prover or ErrMissingProvingArtifacts if the
// witness calculator or the proving key are not loaded.
func NewRLNProver(backend Backend, artifacts *CircuitArtifacts) (*RLNProver, error) {
	if !artifacts.CanProve() {
		return nil, ErrMissingProvingArtifacts
	}
	return &RLNProver{backend: backend, artifacts: artifacts}, nil
}

// GenerateProof builds the witness, proves it and packs the public signals.
// Backend failures are not retried.
func (p *RLNProver) GenerateProof(ctx context.Context, w *RLNWitness) (*RLNFullProof, error) {
	inputs, err := w.CircomInputs()
	if err != nil {
		return nil, err
	}
	raw, err := p.backend.Prove(ctx, p.artifacts, inputs)
	if err != nil {
		return nil, fmt.Errorf("rln proof: %w", err)
	}
	signals, err := NewRLNPublicSignals(raw.PublicSignals)
	if err != nil {
		return nil, fmt.Errorf("rln proof: %w", err)
	}
	log.Debugw("rln proof generated",
		"epoch", w.Epoch.String(),
		"messageId", w.MessageID,
		"nullifier", signals.Nullifier.String())
	return &RLNFullProof{
		SNARKProof:    raw.Proof,
		PublicSignals: signals,
		Epoch:         types.NewInt(w.Epoch),
		RLNIdentifier: types.NewInt(w.RLNIdentifier),
	}, nil
}

// RLNVerifier verifies RLN proofs.
type RLNVerifier struct {
	backend      Backend
	verifyingKey []byte
}

// NewRLNVerifier returns a verifier or ErrMissingVerificationKey if the
// verification key is not loaded.
func NewRLNVerifier(backend Backend, artifacts *CircuitArtifacts) (*RLNVerifier, error) {
	if !artifacts.CanVerify() {
		return nil, ErrMissingVerificationKey
	}
	return &RLNVerifier{backend: backend, verifyingKey: artifacts.VerifyingKey()}, nil
}

// VerifyProof checks that the external nullifier of the proof matches the
// epoch and RLN identifier, and then verifies the SNARK proof. An invalid
// proof returns false without error.
func (v *RLNVerifier) VerifyProof(rlnIdentifier *big.Int, proof *RLNFullProof) (bool, error) {
	if !proof.Valid() || rlnIdentifier == nil {
		return false, nil
	}
	if !field.IsInField(proof.Epoch.MathBigInt()) {
		log.Debugw("epoch is not a field element", "epoch", proof.Epoch.String())
		return false, nil
	}
	expected, err := identity.ExternalNullifier(proof.Epoch.MathBigInt(), rlnIdentifier)
	if err != nil {
		return false, err
	}
	if expected.Cmp(proof.PublicSignals.ExternalNullifier.MathBigInt()) != 0 {
		log.Debugw("external nullifier mismatch", "epoch", proof.Epoch.String())
		return false, nil
	}
	return v.backend.Verify(v.verifyingKey, proof.PublicSignals.Signals(), proof.SNARKProof)
}
