package identity

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/rln-sandbox/crypto/field"
)

func TestNewIdentity(t *testing.T) {
	c := qt.New(t)
	id, err := New()
	c.Assert(err, qt.IsNil)

	secret, err := poseidon.Hash([]*big.Int{id.Nullifier, id.Trapdoor})
	c.Assert(err, qt.IsNil)
	c.Assert(id.Secret.Cmp(secret), qt.Equals, 0)

	commitment, err := poseidon.Hash([]*big.Int{secret})
	c.Assert(err, qt.IsNil)
	c.Assert(id.Commitment.Cmp(commitment), qt.Equals, 0)

	other, err := New()
	c.Assert(err, qt.IsNil)
	c.Assert(other.Commitment.Cmp(id.Commitment), qt.Not(qt.Equals), 0)
}

func TestSerialization(t *testing.T) {
	c := qt.New(t)
	id, err := New()
	c.Assert(err, qt.IsNil)

	restored, err := FromString(id.String())
	c.Assert(err, qt.IsNil)
	c.Assert(restored.Secret.Cmp(id.Secret), qt.Equals, 0)
	c.Assert(restored.Commitment.Cmp(id.Commitment), qt.Equals, 0)

	_, err = FromString(`["1"]`)
	c.Assert(err, qt.IsNotNil)
	_, err = FromString("not json")
	c.Assert(err, qt.IsNotNil)

	secretOnly, err := FromSecret(id.Secret)
	c.Assert(err, qt.IsNil)
	c.Assert(secretOnly.Commitment.Cmp(id.Commitment), qt.Equals, 0)
	c.Assert(secretOnly.String(), qt.Equals, "")
}

func TestDerivations(t *testing.T) {
	c := qt.New(t)
	id, err := New()
	c.Assert(err, qt.IsNil)

	rc, err := RateCommitment(id.Commitment, 10)
	c.Assert(err, qt.IsNil)
	expected, err := poseidon.Hash([]*big.Int{id.Commitment, big.NewInt(10)})
	c.Assert(err, qt.IsNil)
	c.Assert(rc.Cmp(expected), qt.Equals, 0)

	rc2, err := RateCommitment(id.Commitment, 11)
	c.Assert(err, qt.IsNil)
	c.Assert(rc2.Cmp(rc), qt.Not(qt.Equals), 0)

	en1, err := ExternalNullifier(big.NewInt(1), big.NewInt(1000))
	c.Assert(err, qt.IsNil)
	en2, err := ExternalNullifier(big.NewInt(2), big.NewInt(1000))
	c.Assert(err, qt.IsNil)
	c.Assert(en1.Cmp(en2), qt.Not(qt.Equals), 0)
}

func TestSignalHash(t *testing.T) {
	c := qt.New(t)
	h1 := SignalHash([]byte("abc"))
	c.Assert(h1.Cmp(SignalHash([]byte("abc"))), qt.Equals, 0)
	c.Assert(h1.Cmp(SignalHash([]byte("abcd"))), qt.Not(qt.Equals), 0)
	c.Assert(field.IsInField(h1), qt.IsTrue)
	c.Assert(h1.BitLen() <= 248, qt.IsTrue)
}
