package circuits

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/crypto/hash/poseidon"
	"github.com/vocdoni/rln-sandbox/merkle"
	"github.com/vocdoni/rln-sandbox/types"
)

// MockBackendKey is the default key of the MockBackend. Peers that verify
// each other's mock proofs must share it.
var MockBackendKey = []byte("rln-sandbox mock groth16 backend")

// MockBackend is a Backend that computes the outputs of the RLN and withdraw
// circuits natively, checking the same constraints the circuits enforce. Its
// proofs are keyed MACs over the verification key and the public signals,
// encoded as snarkjs groth16 proofs, so any change of the proof, the signals
// or the circuit makes the verification fail.
type MockBackend struct {
	key []byte
}

// NewMockBackend returns a MockBackend. If key is empty MockBackendKey is
// used.
func NewMockBackend(key []byte) *MockBackend {
	if len(key) == 0 {
		key = MockBackendKey
	}
	return &MockBackend{key: key}
}

// MockArtifacts returns placeholder artifacts for the named circuit. The
// verification key content identifies the circuit.
func MockArtifacts(circuit string) *CircuitArtifacts {
	return NewCircuitArtifacts(
		&Artifact{Content: []byte("mock " + circuit + " witness calculator")},
		&Artifact{Content: []byte("mock " + circuit + " proving key")},
		&Artifact{Content: []byte("mock " + circuit + " verification key")},
	)
}

// Prove computes the public signals of the circuit matching the inputs and
// returns the mock proof.
func (mb *MockBackend) Prove(ctx context.Context, artifacts *CircuitArtifacts, inputs map[string]any) (*RawProof, error) {
	if !artifacts.CanProve() || !artifacts.CanVerify() {
		return nil, ErrMissingProvingArtifacts
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var signals []*big.Int
	var err error
	if _, ok := inputs[InputIdentityPathIndex]; ok {
		signals, err = mockRLNSignals(inputs)
	} else {
		signals, err = mockWithdrawSignals(inputs)
	}
	if err != nil {
		return nil, fmt.Errorf("mock witness: %w", err)
	}
	proof, err := mb.proof(artifacts.VerifyingKey(), signals)
	if err != nil {
		return nil, err
	}
	return &RawProof{Proof: proof, PublicSignals: signals}, nil
}

// Verify recomputes the mock proof for the signals and compares it with the
// one provided.
func (mb *MockBackend) Verify(verifyingKey []byte, publicSignals []*big.Int, proof []byte) (bool, error) {
	if len(verifyingKey) == 0 {
		return false, ErrMissingVerificationKey
	}
	for _, s := range publicSignals {
		if s == nil || !field.IsInField(s) {
			return false, nil
		}
	}
	expected, err := mb.proof(verifyingKey, publicSignals)
	if err != nil {
		return false, err
	}
	return bytes.Equal(expected, proof), nil
}

func (mb *MockBackend) proof(verifyingKey []byte, signals []*big.Int) ([]byte, error) {
	var calldata [8]*big.Int
	for i := range calldata {
		mac := hmac.New(sha256.New, mb.key)
		mac.Write(verifyingKey)
		mac.Write([]byte{byte(i)})
		for _, s := range signals {
			mac.Write(s.FillBytes(make([]byte, types.SerializedFieldSize)))
		}
		calldata[i] = field.Normalize(new(big.Int).SetBytes(mac.Sum(nil)))
	}
	return Groth16ProofFromCalldata(calldata).Marshal()
}

func mockRLNSignals(inputs map[string]any) ([]*big.Int, error) {
	secret, err := inputBigInt(inputs, InputIdentitySecret)
	if err != nil {
		return nil, err
	}
	limit, err := inputBigInt(inputs, InputUserMessageLimit)
	if err != nil {
		return nil, err
	}
	messageID, err := inputBigInt(inputs, InputMessageID)
	if err != nil {
		return nil, err
	}
	x, err := inputBigInt(inputs, InputX)
	if err != nil {
		return nil, err
	}
	extNullifier, err := inputBigInt(inputs, InputExternalNullifier)
	if err != nil {
		return nil, err
	}
	if limit.Sign() <= 0 || limit.BitLen() > types.MessageLimitBitSize {
		return nil, fmt.Errorf("message limit %s out of range", limit)
	}
	if messageID.Cmp(limit) >= 0 {
		return nil, fmt.Errorf("message id %s not below message limit %s", messageID, limit)
	}
	siblingsStr, ok := inputs[InputPathElements].([]string)
	if !ok {
		return nil, fmt.Errorf("input %q is not a string array", InputPathElements)
	}
	pathIndexStr, ok := inputs[InputIdentityPathIndex].([]string)
	if !ok {
		return nil, fmt.Errorf("input %q is not a string array", InputIdentityPathIndex)
	}
	siblings, err := StringArrayToBigIntArray(siblingsStr)
	if err != nil {
		return nil, err
	}
	pathIndices := make([]uint8, len(pathIndexStr))
	for i, s := range pathIndexStr {
		switch s {
		case "0":
		case "1":
			pathIndices[i] = 1
		default:
			return nil, fmt.Errorf("invalid path index %q", s)
		}
	}
	commitment, err := poseidon.Hash(secret)
	if err != nil {
		return nil, err
	}
	rateCommitment, err := poseidon.Hash(commitment, limit)
	if err != nil {
		return nil, err
	}
	root, err := (&merkle.Proof{
		Leaf:        rateCommitment,
		Siblings:    siblings,
		PathIndices: pathIndices,
	}).ComputeRoot()
	if err != nil {
		return nil, err
	}
	a1, err := poseidon.Hash(secret, extNullifier, messageID)
	if err != nil {
		return nil, err
	}
	y := field.Add(secret, field.Mul(a1, x))
	nullifier, err := poseidon.Hash(a1)
	if err != nil {
		return nil, err
	}
	return []*big.Int{y, root, nullifier, field.Normalize(x), field.Normalize(extNullifier)}, nil
}

func mockWithdrawSignals(inputs map[string]any) ([]*big.Int, error) {
	secret, err := inputBigInt(inputs, InputIdentitySecret)
	if err != nil {
		return nil, err
	}
	address, err := inputBigInt(inputs, InputAddress)
	if err != nil {
		return nil, err
	}
	commitment, err := poseidon.Hash(secret)
	if err != nil {
		return nil, err
	}
	return []*big.Int{commitment, address}, nil
}
