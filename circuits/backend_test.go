package circuits

import (
	"context"
	"os"
	"testing"

	qt "github.com/frankban/quicktest"
)

// TestRapidsnarkRLN proves and verifies with the real RLN artifacts of the
// default tree depth. It needs RUN_CIRCUIT_TESTS and the artifacts under
// BaseDir.
func TestRapidsnarkRLN(t *testing.T) {
	if os.Getenv("RUN_CIRCUIT_TESTS") == "" || os.Getenv("RUN_CIRCUIT_TESTS") == "false" {
		t.Skip("skipping circuit tests...")
	}
	c := qt.New(t)
	artifacts, err := ResolveRLNArtifacts(context.Background(), nil, 20)
	c.Assert(err, qt.IsNil)
	if !artifacts.CanProve() || !artifacts.CanVerify() {
		t.Skip("rln artifacts not found in ", RLNArtifactsDir(20))
	}
	backend := NewRapidsnarkBackend()
	prover, err := NewRLNProver(backend, artifacts)
	c.Assert(err, qt.IsNil)
	verifier, err := NewRLNVerifier(backend, artifacts)
	c.Assert(err, qt.IsNil)

	w, _ := testWitnessDepth(c, 20, 10, 0, "hello")
	proof, err := prover.GenerateProof(context.Background(), w)
	c.Assert(err, qt.IsNil)
	valid, err := verifier.VerifyProof(w.RLNIdentifier, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsTrue)

	proof.SNARKProof[len(proof.SNARKProof)/2] ^= 0x01
	valid, err = verifier.VerifyProof(w.RLNIdentifier, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)
}

func TestRapidsnarkVerifyBadKey(t *testing.T) {
	c := qt.New(t)
	backend := &RapidsnarkBackend{}
	_, err := backend.Verify(nil, nil, nil)
	c.Assert(err, qt.ErrorIs, ErrMissingVerificationKey)
	_, err = backend.Verify([]byte("not a key"), nil, []byte("{}"))
	c.Assert(err, qt.IsNotNil)
}
