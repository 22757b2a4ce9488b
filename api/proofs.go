package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/log"
)

// saveProof records a proof relayed by a peer in the proof cache and returns
// its status. The proof is expected to be verified by the caller.
// POST /proofs
func (a *API) saveProof(w http.ResponseWriter, r *http.Request) {
	proof := &circuits.RLNFullProof{}
	if err := json.NewDecoder(r.Body).Decode(proof); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if !proof.Valid() {
		ErrIncompleteProof.Write(w)
		return
	}
	res, err := a.rln.SaveProof(proof)
	if err != nil {
		if errors.Is(err, field.ErrNotInField) {
			ErrInvalidEpoch.Write(w)
			return
		}
		if res != nil {
			// the share was stored but the secret could not be recovered
			ErrSecretNotRecoverable.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.Withf("could not save proof: %v", err).Write(w)
		return
	}
	if res.Secret != nil {
		log.Infow("secret recovered from relayed proof", "nullifier", res.Nullifier.String())
	}
	httpWriteJSON(w, &SavedProof{
		Status:    res.Status.String(),
		Nullifier: res.Nullifier,
		Secret:    res.Secret,
	})
}

// verifyProof checks a proof against the message and the epoch provided and
// the current membership root.
// POST /proofs/verify
func (a *API) verifyProof(w http.ResponseWriter, r *http.Request) {
	req := &VerifyProofRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.Epoch == nil {
		ErrMissingEpoch.Write(w)
		return
	}
	if !field.IsInField(req.Epoch.MathBigInt()) {
		ErrInvalidEpoch.Write(w)
		return
	}
	if req.Proof == nil || !req.Proof.Valid() {
		ErrIncompleteProof.Write(w)
		return
	}
	valid, err := a.rln.VerifyProof(r.Context(), req.Epoch.MathBigInt(), req.Message, req.Proof)
	if err != nil {
		if errors.Is(err, circuits.ErrMissingVerificationKey) {
			ErrVerificationUnavailable.Write(w)
			return
		}
		ErrGenericInternalServerError.Withf("could not verify proof: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &VerifyProofResponse{Valid: valid})
}
