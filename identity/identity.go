// Package identity derives the public values of an RLN member from its
// secrets: the identity commitment, the rate commitment stored in the
// membership tree, the external nullifier of an epoch and the signal hash of
// a message.
package identity

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/crypto/hash/poseidon"
	"github.com/vocdoni/rln-sandbox/types"
	"github.com/vocdoni/rln-sandbox/util"
)

// Identity holds the secrets of a member. Trapdoor and Nullifier are only set
// when the identity was generated locally or restored from its serialized
// form; an identity restored from a bare secret only knows Secret and
// Commitment.
type Identity struct {
	Trapdoor   *big.Int
	Nullifier  *big.Int
	Secret     *big.Int
	Commitment *big.Int
}

// New generates a fresh random identity.
func New() (*Identity, error) {
	return FromTrapdoorAndNullifier(
		util.RandomBigInt(field.Modulus()),
		util.RandomBigInt(field.Modulus()),
	)
}

// FromTrapdoorAndNullifier builds the identity whose secret is
// Poseidon(nullifier, trapdoor).
func FromTrapdoorAndNullifier(trapdoor, nullifier *big.Int) (*Identity, error) {
	secret, err := poseidon.Hash(nullifier, trapdoor)
	if err != nil {
		return nil, fmt.Errorf("could not derive identity secret: %w", err)
	}
	id, err := FromSecret(secret)
	if err != nil {
		return nil, err
	}
	id.Trapdoor = field.Normalize(trapdoor)
	id.Nullifier = field.Normalize(nullifier)
	return id, nil
}

// FromSecret builds an identity that only knows its secret, for example one
// recovered from two breaching proof shares.
func FromSecret(secret *big.Int) (*Identity, error) {
	commitment, err := Commitment(secret)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Secret:     field.Normalize(secret),
		Commitment: commitment,
	}, nil
}

// FromString restores an identity serialized with Identity.String.
func FromString(s string) (*Identity, error) {
	var parts []*types.BigInt
	if err := json.Unmarshal([]byte(s), &parts); err != nil {
		return nil, fmt.Errorf("invalid serialized identity: %w", err)
	}
	if len(parts) != 2 || parts[0] == nil || parts[1] == nil {
		return nil, fmt.Errorf("invalid serialized identity: expected [trapdoor, nullifier]")
	}
	return FromTrapdoorAndNullifier(parts[0].MathBigInt(), parts[1].MathBigInt())
}

// String serializes the identity as a JSON array [trapdoor, nullifier]. It
// returns an empty string for identities that only know their secret.
func (id *Identity) String() string {
	if id.Trapdoor == nil || id.Nullifier == nil {
		return ""
	}
	data, err := json.Marshal([]*types.BigInt{
		types.NewInt(id.Trapdoor),
		types.NewInt(id.Nullifier),
	})
	if err != nil {
		return ""
	}
	return string(data)
}

// Commitment returns Poseidon(secret), the public identity commitment.
func Commitment(secret *big.Int) (*big.Int, error) {
	return poseidon.Hash(secret)
}

// RateCommitment returns Poseidon(identityCommitment, messageLimit), the leaf
// inserted into the membership tree.
func RateCommitment(identityCommitment *big.Int, messageLimit uint64) (*big.Int, error) {
	return poseidon.Hash(identityCommitment, new(big.Int).SetUint64(messageLimit))
}

// ExternalNullifier returns Poseidon(epoch, rlnIdentifier).
func ExternalNullifier(epoch, rlnIdentifier *big.Int) (*big.Int, error) {
	return poseidon.Hash(epoch, rlnIdentifier)
}

// SignalHash returns keccak256(message) shifted right by 8 bits so that the
// result always fits in the scalar field.
func SignalHash(message []byte) *big.Int {
	h := new(big.Int).SetBytes(crypto.Keccak256(message))
	return h.Rsh(h, 8)
}
