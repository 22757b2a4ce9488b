package client

import (
	"context"
	"math/big"
	"net/http"

	"github.com/vocdoni/rln-sandbox/api"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/types"
)

// SaveProof relays a proof to the peer, which records it in its proof cache.
func (c *HTTPclient) SaveProof(ctx context.Context, proof *circuits.RLNFullProof) (*api.SavedProof, error) {
	res := &api.SavedProof{}
	data, status, err := c.Request(ctx, http.MethodPost, proof, api.ProofsEndpoint)
	if err := decode(data, status, err, res); err != nil {
		return nil, err
	}
	return res, nil
}

// VerifyProof asks the peer to verify the proof of message for the epoch.
func (c *HTTPclient) VerifyProof(ctx context.Context, epoch *big.Int, message []byte, proof *circuits.RLNFullProof) (bool, error) {
	res := &api.VerifyProofResponse{}
	req := &api.VerifyProofRequest{
		Epoch:   types.NewInt(epoch),
		Message: message,
		Proof:   proof,
	}
	data, status, err := c.Request(ctx, http.MethodPost, req, api.VerifyProofEndpoint)
	if err := decode(data, status, err, res); err != nil {
		return false, err
	}
	return res.Valid, nil
}

// MerkleRoot returns the membership root known by the peer.
func (c *HTTPclient) MerkleRoot(ctx context.Context) (*big.Int, error) {
	res := &api.RegistryRoot{}
	data, status, err := c.Request(ctx, http.MethodGet, nil, api.RegistryRootEndpoint)
	if err := decode(data, status, err, res); err != nil {
		return nil, err
	}
	return res.Root.MathBigInt(), nil
}

// AllRateCommitments returns the leaves of the membership tree of the peer.
func (c *HTTPclient) AllRateCommitments(ctx context.Context) ([]*big.Int, error) {
	res := &api.RateCommitments{}
	data, status, err := c.Request(ctx, http.MethodGet, nil, api.RegistryCommitmentsEndpoint)
	if err := decode(data, status, err, res); err != nil {
		return nil, err
	}
	leaves := make([]*big.Int, 0, len(res.RateCommitments))
	for _, leaf := range res.RateCommitments {
		leaves = append(leaves, leaf.MathBigInt())
	}
	return leaves, nil
}

// IsMember asks the peer whether the identity commitment is a member of the
// group.
func (c *HTTPclient) IsMember(ctx context.Context, identityCommitment *big.Int) (bool, error) {
	res := &api.Membership{}
	data, status, err := c.Request(ctx, http.MethodGet, nil, "registry", "members", identityCommitment.String())
	if err := decode(data, status, err, res); err != nil {
		return false, err
	}
	return res.Registered, nil
}
