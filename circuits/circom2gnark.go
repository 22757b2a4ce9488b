package circuits

import (
	"fmt"

	"github.com/vocdoni/circom2gnark/parser"
	"github.com/vocdoni/rln-sandbox/log"
)

// Circom2GnarkProof function is a wrapper to convert a circom proof to a gnark
// proof, it receives the circom proof and the public signals as strings, as
// snarkjs returns them. Then, it parses the inputs to the gnark format. It
// returns a parser.CircomProof and a list of public signals or an error.
func Circom2GnarkProof(circomProof, pubSignals string) (*parser.CircomProof, []string, error) {
	// transform to gnark format
	proofData, err := parser.UnmarshalCircomProofJSON([]byte(circomProof))
	if err != nil {
		return nil, nil, err
	}
	pubSignalsData, err := parser.UnmarshalCircomPublicSignalsJSON([]byte(pubSignals))
	if err != nil {
		return nil, nil, err
	}
	return proofData, pubSignalsData, nil
}

// VerifyCircomProof converts the circom verification key and proof to the
// gnark format and verifies the proof against the public signals provided.
// A malformed verification key is an error; a malformed or invalid proof
// only returns false.
func VerifyCircomProof(vkey, proof []byte, pubSignals []string) (valid bool, err error) {
	gnarkVKeyData, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
	if err != nil {
		return false, fmt.Errorf("invalid verification key: %w", err)
	}
	// points that are not on the curve can make the conversion panic
	defer func() {
		if r := recover(); r != nil {
			log.Debugw("circom proof conversion panicked", "error", fmt.Sprint(r))
			valid, err = false, nil
		}
	}()
	proofData, err := parser.UnmarshalCircomProofJSON(proof)
	if err != nil {
		log.Debugw("malformed circom proof", "error", err.Error())
		return false, nil
	}
	gnarkProof, err := parser.ConvertCircomToGnark(proofData, gnarkVKeyData, pubSignals)
	if err != nil {
		log.Debugw("could not convert circom proof", "error", err.Error())
		return false, nil
	}
	ok, err := parser.VerifyProof(gnarkProof)
	if err != nil {
		log.Debugw("circom proof verification failed", "error", err.Error())
		return false, nil
	}
	return ok, nil
}
