package types

// ProofShare is the (x, y) point revealed by an RLN proof together with the
// epoch and internal nullifier it belongs to. Two different shares with the
// same epoch and nullifier expose the secret of the member that produced
// them.
type ProofShare struct {
	X         *BigInt `json:"x" cbor:"0,keyasint"`
	Y         *BigInt `json:"y" cbor:"1,keyasint"`
	Epoch     *BigInt `json:"epoch" cbor:"2,keyasint"`
	Nullifier *BigInt `json:"nullifier" cbor:"3,keyasint"`
}

// SamePoint reports whether both shares reveal the same point.
func (s *ProofShare) SamePoint(o *ProofShare) bool {
	return s.X.Equal(o.X) && s.Y.Equal(o.Y)
}
