package api

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/rln-sandbox/types"
)

// registryRoot returns the current root of the membership tree.
// GET /registry/root
func (a *API) registryRoot(w http.ResponseWriter, r *http.Request) {
	root, err := a.rln.MerkleRoot(r.Context())
	if err != nil {
		ErrRegistryUnavailable.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &RegistryRoot{Root: types.NewInt(root)})
}

// rateCommitments returns every leaf of the membership tree, in order.
// GET /registry/commitments
func (a *API) rateCommitments(w http.ResponseWriter, r *http.Request) {
	leaves, err := a.rln.AllRateCommitments(r.Context())
	if err != nil {
		ErrRegistryUnavailable.WithErr(err).Write(w)
		return
	}
	res := &RateCommitments{RateCommitments: make([]*types.BigInt, 0, len(leaves))}
	for _, leaf := range leaves {
		res.RateCommitments = append(res.RateCommitments, types.NewInt(leaf))
	}
	httpWriteJSON(w, res)
}

// member reports whether an identity commitment belongs to the group.
// GET /registry/members/{identityCommitment}
func (a *API) member(w http.ResponseWriter, r *http.Request) {
	idc, ok := new(big.Int).SetString(chi.URLParam(r, IdentityCommitmentURLParam), 0)
	if !ok || idc.Sign() < 0 {
		ErrMalformedIdentityCommitment.Write(w)
		return
	}
	registered, err := a.rln.IsMember(r.Context(), idc)
	if err != nil {
		ErrRegistryUnavailable.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &Membership{
		IdentityCommitment: types.NewInt(idc),
		Registered:         registered,
	})
}
