package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/rln-sandbox/cache"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/registry"
	"github.com/vocdoni/rln-sandbox/rln"
	"github.com/vocdoni/rln-sandbox/types"
)

const testDepth = 10

var (
	testRLNIdentifier = big.NewInt(77)
	testEpoch         = big.NewInt(3)
)

// testPeers returns a registered member and the API of a second peer that
// shares the membership registry with it.
func testPeers(c *qt.C) (*rln.RLN, *API, *registry.MemoryRegistry) {
	reg, err := registry.NewMemoryRegistry(testDepth)
	c.Assert(err, qt.IsNil)
	newRLN := func() *rln.RLN {
		r, err := rln.New(context.Background(), &rln.Config{
			RLNIdentifier: testRLNIdentifier,
			TreeDepth:     testDepth,
			Registry:      reg,
			Backend:       circuits.NewMockBackend(nil),
			Artifacts:     circuits.MockArtifacts("rln"),
		})
		c.Assert(err, qt.IsNil)
		return r
	}
	alice := newRLN()
	c.Assert(alice.Register(context.Background(), 1, nil), qt.IsNil)
	a := &API{rln: newRLN()}
	a.initRouter()
	return alice, a, reg
}

func doRequest(c *qt.C, a *API, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		c.Assert(json.NewEncoder(&buf).Encode(body), qt.IsNil)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(c *qt.C, rec *httptest.ResponseRecorder, v any) {
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("body: %s", rec.Body.String()))
	c.Assert(json.Unmarshal(rec.Body.Bytes(), v), qt.IsNil)
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	_, a, _ := testPeers(c)
	rec := doRequest(c, a, http.MethodGet, PingEndpoint, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
}

func TestSaveProof(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	alice, a, reg := testPeers(c)

	first, err := alice.CreateProof(ctx, testEpoch, []byte("first"))
	c.Assert(err, qt.IsNil)

	saved := &SavedProof{}
	decodeBody(c, doRequest(c, a, http.MethodPost, ProofsEndpoint, first), saved)
	c.Assert(saved.Status, qt.Equals, cache.StatusValid.String())
	c.Assert(saved.Secret, qt.IsNil)
	c.Assert(saved.Nullifier.Equal(first.PublicSignals.Nullifier), qt.IsTrue)

	saved = &SavedProof{}
	decodeBody(c, doRequest(c, a, http.MethodPost, ProofsEndpoint, first), saved)
	c.Assert(saved.Status, qt.Equals, cache.StatusDuplicate.String())

	// a second message with the same message id reveals the secret
	prover, err := circuits.NewRLNProver(circuits.NewMockBackend(nil), circuits.MockArtifacts("rln"))
	c.Assert(err, qt.IsNil)
	merkleProof, err := reg.GenerateMerkleProof(ctx, alice.Identity().Commitment)
	c.Assert(err, qt.IsNil)
	second, err := prover.GenerateProof(ctx, &circuits.RLNWitness{
		IdentitySecret:   alice.Identity().Secret,
		UserMessageLimit: 1,
		MessageID:        0,
		MerkleProof:      merkleProof,
		X:                identity.SignalHash([]byte("second")),
		Epoch:            testEpoch,
		RLNIdentifier:    testRLNIdentifier,
	})
	c.Assert(err, qt.IsNil)

	saved = &SavedProof{}
	decodeBody(c, doRequest(c, a, http.MethodPost, ProofsEndpoint, second), saved)
	c.Assert(saved.Status, qt.Equals, cache.StatusBreach.String())
	c.Assert(saved.Secret.MathBigInt().Cmp(alice.Identity().Secret), qt.Equals, 0)
}

func TestSaveProofMalformed(t *testing.T) {
	c := qt.New(t)
	_, a, _ := testPeers(c)

	req := httptest.NewRequest(http.MethodPost, ProofsEndpoint, bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	rec = doRequest(c, a, http.MethodPost, ProofsEndpoint, &circuits.RLNFullProof{})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(rec.Body.String(), qt.Contains, "40009")
}

func TestVerifyProof(t *testing.T) {
	c := qt.New(t)
	alice, a, _ := testPeers(c)
	proof, err := alice.CreateProof(context.Background(), testEpoch, []byte("hello"))
	c.Assert(err, qt.IsNil)

	res := &VerifyProofResponse{}
	decodeBody(c, doRequest(c, a, http.MethodPost, VerifyProofEndpoint, &VerifyProofRequest{
		Epoch:   types.NewInt(testEpoch),
		Message: []byte("hello"),
		Proof:   proof,
	}), res)
	c.Assert(res.Valid, qt.IsTrue)

	res = &VerifyProofResponse{}
	decodeBody(c, doRequest(c, a, http.MethodPost, VerifyProofEndpoint, &VerifyProofRequest{
		Epoch:   types.NewInt(testEpoch),
		Message: []byte("bye"),
		Proof:   proof,
	}), res)
	c.Assert(res.Valid, qt.IsFalse)

	rec := doRequest(c, a, http.MethodPost, VerifyProofEndpoint, &VerifyProofRequest{
		Message: []byte("hello"),
		Proof:   proof,
	})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestRegistryEndpoints(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	alice, a, reg := testPeers(c)

	root := &RegistryRoot{}
	decodeBody(c, doRequest(c, a, http.MethodGet, RegistryRootEndpoint, nil), root)
	want, err := reg.MerkleRoot(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(root.Root.MathBigInt().Cmp(want), qt.Equals, 0)

	leaves := &RateCommitments{}
	decodeBody(c, doRequest(c, a, http.MethodGet, RegistryCommitmentsEndpoint, nil), leaves)
	c.Assert(leaves.RateCommitments, qt.HasLen, 1)
	rc, err := identity.RateCommitment(alice.Identity().Commitment, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(leaves.RateCommitments[0].MathBigInt().Cmp(rc), qt.Equals, 0)

	member := &Membership{}
	decodeBody(c, doRequest(c, a, http.MethodGet,
		"/registry/members/"+alice.Identity().Commitment.String(), nil), member)
	c.Assert(member.Registered, qt.IsTrue)

	member = &Membership{}
	decodeBody(c, doRequest(c, a, http.MethodGet, "/registry/members/12345", nil), member)
	c.Assert(member.Registered, qt.IsFalse)

	rec := doRequest(c, a, http.MethodGet, "/registry/members/notanumber", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestNonCanonicalEpoch(t *testing.T) {
	c := qt.New(t)
	alice, a, _ := testPeers(c)
	proof, err := alice.CreateProof(context.Background(), testEpoch, []byte("hello"))
	c.Assert(err, qt.IsNil)

	aliased := types.NewInt(new(big.Int).Add(testEpoch, field.Modulus()))
	moved := *proof
	moved.Epoch = aliased

	rec := doRequest(c, a, http.MethodPost, VerifyProofEndpoint, &VerifyProofRequest{
		Epoch:   aliased,
		Message: []byte("hello"),
		Proof:   &moved,
	})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	assertErrorCode(c, rec, ErrInvalidEpoch)

	rec = doRequest(c, a, http.MethodPost, ProofsEndpoint, &moved)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	assertErrorCode(c, rec, ErrInvalidEpoch)

	// the canonical proof is still accepted as the first of its bucket
	saved := &SavedProof{}
	decodeBody(c, doRequest(c, a, http.MethodPost, ProofsEndpoint, proof), saved)
	c.Assert(saved.Status, qt.Equals, cache.StatusValid.String())
}

func TestUnknownRoutes(t *testing.T) {
	c := qt.New(t)
	_, a, _ := testPeers(c)

	rec := doRequest(c, a, http.MethodGet, "/nothing/here", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	assertErrorCode(c, rec, ErrResourceNotFound)

	rec = doRequest(c, a, http.MethodGet, ProofsEndpoint, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusMethodNotAllowed)
	assertErrorCode(c, rec, ErrMethodNotAllowed)
}

func assertErrorCode(c *qt.C, rec *httptest.ResponseRecorder, want Error) {
	res := &ErrorResponse{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), res), qt.IsNil)
	c.Assert(res.Code, qt.Equals, want.Code, qt.Commentf("body: %s", rec.Body.String()))
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/json")
}

func TestErrorMatching(t *testing.T) {
	c := qt.New(t)
	err := ErrMalformedBody.Withf("unexpected %s", "EOF")
	c.Assert(err, qt.ErrorIs, ErrMalformedBody)
	c.Assert(err, qt.Not(qt.ErrorIs), ErrIncompleteProof)
	c.Assert(err.Error(), qt.Equals, "malformed JSON body: unexpected EOF")
	c.Assert(ErrMalformedBody.Error(), qt.Equals, "malformed JSON body")

	data, jerr := json.Marshal(ErrIncompleteProof.WithErr(fmt.Errorf("nil proof")))
	c.Assert(jerr, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"error":"incomplete proof: nil proof","code":40009}`)
}
