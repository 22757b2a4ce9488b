// Package poseidon exposes the circom compatible Poseidon hash over the BN254
// scalar field.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/rln-sandbox/crypto/field"
)

// MaxInputs is the maximum number of elements a single Poseidon permutation
// accepts.
const MaxInputs = 16

// Hash returns Poseidon(inputs...), the same value computed by the circom
// Poseidon(n) template. Every input is reduced into the scalar field first.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 || len(inputs) > MaxInputs {
		return nil, fmt.Errorf("poseidon accepts between 1 and %d inputs, got %d", MaxInputs, len(inputs))
	}
	elems := make([]*big.Int, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("nil poseidon input at position %d", i)
		}
		elems[i] = field.Normalize(in)
	}
	return poseidon.Hash(elems)
}

// MultiPoseidon hashes an arbitrary number of inputs (up to 256) by hashing
// chunks of 16 elements and then hashing the resulting chunk hashes.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) > 256 {
		return nil, fmt.Errorf("too many inputs")
	} else if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	// calculate chunk hashes
	hashes := []*big.Int{}
	chunk := []*big.Int{}
	for _, input := range inputs {
		if len(chunk) == MaxInputs {
			hash, err := Hash(chunk...)
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, hash)
			chunk = []*big.Int{}
		}
		chunk = append(chunk, input)
	}
	if len(chunk) > 0 {
		hash, err := Hash(chunk...)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return poseidon.Hash(hashes)
}
