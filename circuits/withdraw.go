package circuits

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/types"
)

// Input names of the withdraw circom circuit.
const (
	InputAddress = "address"
)

// WithdrawPublicSignalsLen is the number of public signals of the withdraw
// circuit: identityCommitment and address.
const WithdrawPublicSignalsLen = 2

// WithdrawProof proves the knowledge of the secret behind an identity
// commitment and binds it to the address that receives the funds.
type WithdrawProof struct {
	SNARKProof         types.HexBytes `json:"snarkProof"`
	IdentityCommitment *types.BigInt  `json:"identityCommitment"`
	Address            common.Address `json:"address"`
}

// SolidityCalldata returns the proof encoded for the RLN contract.
func (p *WithdrawProof) SolidityCalldata() ([8]*big.Int, error) {
	g, err := ParseGroth16Proof(p.SNARKProof)
	if err != nil {
		return [8]*big.Int{}, err
	}
	return g.SolidityCalldata()
}

// Signals returns the public signals in circuit order.
func (p *WithdrawProof) Signals() []*big.Int {
	return []*big.Int{p.IdentityCommitment.MathBigInt(), AddressToBigInt(p.Address)}
}

// AddressToBigInt returns the address as a field element.
func AddressToBigInt(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

// WithdrawProver generates withdraw proofs.
type WithdrawProver struct {
	backend   Backend
	artifacts *CircuitArtifacts
}

// NewWithdrawProver returns a prover or ErrMissingProvingArtifacts.
func NewWithdrawProver(backend Backend, artifacts *CircuitArtifacts) (*WithdrawProver, error) {
	if !artifacts.CanProve() {
		return nil, ErrMissingProvingArtifacts
	}
	return &WithdrawProver{backend: backend, artifacts: artifacts}, nil
}

// GenerateProof proves the knowledge of identitySecret for the address.
func (p *WithdrawProver) GenerateProof(ctx context.Context, identitySecret *big.Int, address common.Address) (*WithdrawProof, error) {
	if identitySecret == nil {
		return nil, fmt.Errorf("nil identity secret")
	}
	raw, err := p.backend.Prove(ctx, p.artifacts, map[string]any{
		InputIdentitySecret: field.Normalize(identitySecret).String(),
		InputAddress:        AddressToBigInt(address).String(),
	})
	if err != nil {
		return nil, fmt.Errorf("withdraw proof: %w", err)
	}
	if len(raw.PublicSignals) != WithdrawPublicSignalsLen {
		return nil, fmt.Errorf("withdraw proof: expected %d public signals, got %d",
			WithdrawPublicSignalsLen, len(raw.PublicSignals))
	}
	return &WithdrawProof{
		SNARKProof:         raw.Proof,
		IdentityCommitment: types.NewInt(raw.PublicSignals[0]),
		Address:            address,
	}, nil
}

// VerifyWithdrawProof verifies a withdraw proof received as solidity
// calldata, as the RLN contract does.
func VerifyWithdrawProof(backend Backend, verifyingKey []byte, identityCommitment *big.Int,
	address common.Address, calldata [8]*big.Int,
) (bool, error) {
	proof, err := Groth16ProofFromCalldata(calldata).Marshal()
	if err != nil {
		return false, err
	}
	return backend.Verify(verifyingKey, []*big.Int{identityCommitment, AddressToBigInt(address)}, proof)
}
