package circuits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark/logger"
	"github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/types"
)

var (
	// ErrMissingProvingArtifacts is returned when a proof is requested but
	// the witness calculator or the proving key are not available.
	ErrMissingProvingArtifacts = errors.New("missing proving artifacts")
	// ErrMissingVerificationKey is returned when a proof must be verified
	// but the verification key is not available.
	ErrMissingVerificationKey = errors.New("missing verification key")
)

// RawProof is the output of a proving backend: the proof encoded as snarkjs
// JSON and the public signals, outputs first.
type RawProof struct {
	Proof         types.HexBytes
	PublicSignals []*big.Int
}

// Backend is a groth16 proving system for circom circuits.
type Backend interface {
	// Prove computes the witness from the inputs and generates a proof.
	Prove(ctx context.Context, artifacts *CircuitArtifacts, inputs map[string]any) (*RawProof, error)
	// Verify checks the proof against the public signals. An invalid proof
	// returns false and no error; errors are reserved for an unusable
	// verification key.
	Verify(verifyingKey []byte, publicSignals []*big.Int, proof []byte) (bool, error)
}

// RapidsnarkBackend proves with go-rapidsnark and verifies with gnark,
// converting the circom artifacts with circom2gnark.
type RapidsnarkBackend struct{}

// NewRapidsnarkBackend returns a RapidsnarkBackend. The gnark internal
// logger is attached to the module logger.
func NewRapidsnarkBackend() *RapidsnarkBackend {
	logger.Set(log.Logger().With().Str("module", "gnark").Logger())
	return &RapidsnarkBackend{}
}

// Prove generates a groth16 proof. Proving can not be cancelled once
// started, the context is only checked before computing the witness.
func (*RapidsnarkBackend) Prove(ctx context.Context, artifacts *CircuitArtifacts, inputs map[string]any) (*RawProof, error) {
	if !artifacts.CanProve() {
		return nil, ErrMissingProvingArtifacts
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bInputs, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("circom inputs: %w", err)
	}
	finalInputs, err := witness.ParseInputs(bInputs)
	if err != nil {
		return nil, fmt.Errorf("circom inputs: %w", err)
	}
	// instance witness calculator
	calc, err := witness.NewCircom2WitnessCalculator(artifacts.WitnessCalculator(), true)
	if err != nil {
		return nil, fmt.Errorf("instance witness calculator: %w", err)
	}
	// calculate witness
	w, err := calc.CalculateWTNSBin(finalInputs, true)
	if err != nil {
		return nil, fmt.Errorf("calculate witness: %w", err)
	}
	// generate proof
	proof, pubSignals, err := prover.Groth16ProverRaw(artifacts.ProvingKey(), w)
	if err != nil {
		return nil, fmt.Errorf("generate proof: %w", err)
	}
	_, signals, err := Circom2GnarkProof(proof, pubSignals)
	if err != nil {
		return nil, fmt.Errorf("parse proof: %w", err)
	}
	bigSignals, err := StringArrayToBigIntArray(signals)
	if err != nil {
		return nil, fmt.Errorf("parse public signals: %w", err)
	}
	return &RawProof{Proof: []byte(proof), PublicSignals: bigSignals}, nil
}

// Verify checks a snarkjs groth16 proof with gnark.
func (*RapidsnarkBackend) Verify(verifyingKey []byte, publicSignals []*big.Int, proof []byte) (bool, error) {
	if len(verifyingKey) == 0 {
		return false, ErrMissingVerificationKey
	}
	return VerifyCircomProof(verifyingKey, proof, BigIntArrayToStringArray(publicSignals, len(publicSignals)))
}
