package circuits

import (
	"encoding/json"
	"fmt"
	"math/big"
)

const (
	groth16Protocol = "groth16"
	bn128Curve      = "bn128"
)

// Groth16Proof is a groth16 proof as snarkjs and rapidsnark encode it, with
// the points in projective coordinates as decimal strings.
type Groth16Proof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve,omitempty"`
}

// ParseGroth16Proof decodes a snarkjs groth16 proof and checks its shape.
func ParseGroth16Proof(data []byte) (*Groth16Proof, error) {
	p := &Groth16Proof{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode groth16 proof: %w", err)
	}
	if len(p.PiA) < 2 || len(p.PiC) < 2 || len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 {
		return nil, fmt.Errorf("malformed groth16 proof")
	}
	return p, nil
}

// Marshal encodes the proof as snarkjs JSON.
func (p *Groth16Proof) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// SolidityCalldata returns the proof as the uint256[8] expected by the
// solidity verifiers generated by snarkjs: a, b and c, with the coordinates
// of every b element swapped.
func (p *Groth16Proof) SolidityCalldata() ([8]*big.Int, error) {
	var out [8]*big.Int
	values := []string{
		p.PiA[0], p.PiA[1],
		p.PiB[0][1], p.PiB[0][0],
		p.PiB[1][1], p.PiB[1][0],
		p.PiC[0], p.PiC[1],
	}
	for i, s := range values {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return out, fmt.Errorf("invalid proof element %d: %q", i, s)
		}
		out[i] = v
	}
	return out, nil
}

// Groth16ProofFromCalldata rebuilds the snarkjs proof from its solidity
// calldata encoding.
func Groth16ProofFromCalldata(calldata [8]*big.Int) *Groth16Proof {
	s := func(i int) string {
		if calldata[i] == nil {
			return "0"
		}
		return calldata[i].String()
	}
	return &Groth16Proof{
		PiA: []string{s(0), s(1), "1"},
		PiB: [][]string{
			{s(3), s(2)},
			{s(5), s(4)},
			{"1", "0"},
		},
		PiC:      []string{s(6), s(7), "1"},
		Protocol: groth16Protocol,
		Curve:    bn128Curve,
	}
}
