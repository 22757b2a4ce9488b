package api

import (
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/types"
)

// SavedProof is the response to a relayed proof. Secret is only set when
// the proof breaches the message limit of its author.
type SavedProof struct {
	Status    string        `json:"status"`
	Nullifier *types.BigInt `json:"nullifier"`
	Secret    *types.BigInt `json:"secret,omitempty"`
}

// VerifyProofRequest is the body of a proof verification request. Message
// is the raw signal the proof was created for.
type VerifyProofRequest struct {
	Epoch   *types.BigInt          `json:"epoch"`
	Message types.HexBytes         `json:"message"`
	Proof   *circuits.RLNFullProof `json:"proof"`
}

// VerifyProofResponse is the response to a proof verification request.
type VerifyProofResponse struct {
	Valid bool `json:"valid"`
}

// RegistryRoot is the response to a membership root request.
type RegistryRoot struct {
	Root *types.BigInt `json:"root"`
}

// RateCommitments is the response to a rate commitments request.
type RateCommitments struct {
	RateCommitments []*types.BigInt `json:"rateCommitments"`
}

// Membership is the response to a member check.
type Membership struct {
	IdentityCommitment *types.BigInt `json:"identityCommitment"`
	Registered         bool          `json:"registered"`
}
