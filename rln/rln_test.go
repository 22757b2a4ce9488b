package rln

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/rln-sandbox/cache"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/counter"
	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/registry"
	"github.com/vocdoni/rln-sandbox/storage"
	"github.com/vocdoni/rln-sandbox/types"
	"github.com/vocdoni/rln-sandbox/web3"
)

const testDepth = 10

var testRLNIdentifier = big.NewInt(1234)

func newTestRLN(c *qt.C, reg registry.Registry) *RLN {
	r, err := New(context.Background(), &Config{
		RLNIdentifier: testRLNIdentifier,
		TreeDepth:     testDepth,
		Registry:      reg,
		Backend:       circuits.NewMockBackend(nil),
		Artifacts:     circuits.MockArtifacts("rln"),
	})
	c.Assert(err, qt.IsNil)
	return r
}

func newMemoryRegistry(c *qt.C) *registry.MemoryRegistry {
	reg, err := registry.NewMemoryRegistry(testDepth)
	c.Assert(err, qt.IsNil)
	return reg
}

// fixedCounter always hands out the same message id, as a client whose
// counter was reset would.
type fixedCounter struct{ limit uint64 }

func (fc fixedCounter) MessageLimit() uint64                           { return fc.limit }
func (fixedCounter) PeekNextMessageID(*big.Int) (uint64, error)        { return 0, nil }
func (fixedCounter) GetMessageIDAndIncrement(*big.Int) (uint64, error) { return 0, nil }

func TestRegister(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r := newTestRLN(c, nil)
	c.Assert(r.State(), qt.Equals, StateUnregistered)

	c.Assert(r.Register(ctx, 0, nil), qt.ErrorIs, ErrInvalidMessageLimit)
	c.Assert(r.Register(ctx, types.MaxMessageLimit+1, nil), qt.ErrorIs, ErrInvalidMessageLimit)
	_, err := r.CreateProof(ctx, big.NewInt(1), []byte("hello"))
	c.Assert(err, qt.ErrorIs, ErrInvalidState)

	c.Assert(r.Register(ctx, types.MaxMessageLimit, nil), qt.IsNil)
	c.Assert(r.State(), qt.Equals, StateRegistered)
	c.Assert(r.Register(ctx, 1, nil), qt.ErrorIs, ErrInvalidState)
	ok, err := r.IsRegistered(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	leaves, err := r.AllRateCommitments(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(leaves, qt.HasLen, 1)
}

func TestRegisterCounterMismatch(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r := newTestRLN(c, nil)

	c.Assert(r.Register(ctx, 3, fixedCounter{limit: 2}), qt.ErrorIs, ErrInvalidMessageLimit)
	c.Assert(r.State(), qt.Equals, StateUnregistered)
	ok, err := r.IsRegistered(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	mc, err := counter.NewMemoryCounter(5)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Register(ctx, 1, mc), qt.ErrorIs, ErrInvalidMessageLimit)

	c.Assert(r.Register(ctx, 3, fixedCounter{limit: 3}), qt.IsNil)
	c.Assert(r.State(), qt.Equals, StateRegistered)
}

func TestNonCanonicalEpoch(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	reg := newMemoryRegistry(c)
	alice := newTestRLN(c, reg)
	bob := newTestRLN(c, reg)
	c.Assert(alice.Register(ctx, 1, nil), qt.IsNil)

	epoch := big.NewInt(5)
	aliased := new(big.Int).Add(epoch, field.Modulus())
	message := []byte("hello")

	_, err := alice.CreateProof(ctx, aliased, message)
	c.Assert(err, qt.ErrorIs, field.ErrNotInField)
	_, err = alice.CreateProof(ctx, big.NewInt(-1), message)
	c.Assert(err, qt.ErrorIs, field.ErrNotInField)
	_, err = alice.CreateProof(ctx, nil, message)
	c.Assert(err, qt.ErrorIs, field.ErrNotInField)

	// the rejected epochs did not consume the only message id
	proof, err := alice.CreateProof(ctx, epoch, message)
	c.Assert(err, qt.IsNil)

	// the external nullifier of 5+q equals the one of 5, so relabelling the
	// epoch would otherwise pass every other check
	moved := *proof
	moved.Epoch = types.NewInt(aliased)
	valid, err := bob.VerifyProof(ctx, aliased, message, &moved)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)
	valid, err = bob.verifier.VerifyProof(testRLNIdentifier, &moved)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)

	res, err := bob.SaveProof(proof)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Status, qt.Equals, cache.StatusValid)
	_, err = bob.SaveProof(&moved)
	c.Assert(err, qt.ErrorIs, field.ErrNotInField)
}

func TestMessageLimitRoundTrip(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r := newTestRLN(c, nil)
	const limit = 3
	c.Assert(r.Register(ctx, limit, nil), qt.IsNil)

	epoch := big.NewInt(100)
	nullifiers := map[string]bool{}
	for i := 0; i < limit; i++ {
		proof, err := r.CreateProof(ctx, epoch, []byte{byte(i)})
		c.Assert(err, qt.IsNil)
		nullifiers[proof.PublicSignals.Nullifier.String()] = true
	}
	c.Assert(nullifiers, qt.HasLen, limit)
	_, err := r.CreateProof(ctx, epoch, []byte("one too many"))
	c.Assert(err, qt.ErrorIs, counter.ErrMessageLimitExceeded)

	// the next epoch has its own quota
	_, err = r.CreateProof(ctx, big.NewInt(101), []byte("next epoch"))
	c.Assert(err, qt.IsNil)
}

func TestCacheGuardsResetCounter(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r := newTestRLN(c, nil)
	c.Assert(r.Register(ctx, 2, fixedCounter{limit: 2}), qt.IsNil)

	epoch := big.NewInt(7)
	_, err := r.CreateProof(ctx, epoch, []byte("first"))
	c.Assert(err, qt.IsNil)
	_, err = r.CreateProof(ctx, epoch, []byte("first"))
	c.Assert(err, qt.ErrorIs, ErrProofAlreadyGenerated)
	_, err = r.CreateProof(ctx, epoch, []byte("second"))
	c.Assert(err, qt.ErrorIs, ErrWouldSpam)
}

func TestVerifyProof(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	reg := newMemoryRegistry(c)
	alice := newTestRLN(c, reg)
	bob := newTestRLN(c, reg)
	c.Assert(alice.Register(ctx, 2, nil), qt.IsNil)

	epoch := big.NewInt(5)
	message := []byte("hello world")
	proof, err := alice.CreateProof(ctx, epoch, message)
	c.Assert(err, qt.IsNil)

	valid, err := bob.VerifyProof(ctx, epoch, message, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsTrue)

	// tampered SNARK proof
	for i := range proof.SNARKProof {
		tampered := *proof
		tampered.SNARKProof = append(types.HexBytes{}, proof.SNARKProof...)
		tampered.SNARKProof[i] ^= 0xff
		valid, err := bob.VerifyProof(ctx, epoch, message, &tampered)
		c.Assert(err, qt.IsNil)
		c.Assert(valid, qt.IsFalse, qt.Commentf("byte %d", i))
	}

	// another epoch, even rewriting the epoch of the proof
	valid, err = bob.VerifyProof(ctx, big.NewInt(6), message, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)
	moved := *proof
	moved.Epoch = types.NewInt(big.NewInt(6))
	valid, err = bob.VerifyProof(ctx, big.NewInt(6), message, &moved)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)

	// another message
	valid, err = bob.VerifyProof(ctx, epoch, []byte("hello world!"), proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)

	// another application
	other, err := New(ctx, &Config{
		RLNIdentifier: big.NewInt(1),
		TreeDepth:     testDepth,
		Registry:      reg,
		Backend:       circuits.NewMockBackend(nil),
		Artifacts:     circuits.MockArtifacts("rln"),
	})
	c.Assert(err, qt.IsNil)
	valid, err = other.VerifyProof(ctx, epoch, message, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)

	// the membership root changed
	c.Assert(bob.Register(ctx, 1, nil), qt.IsNil)
	valid, err = bob.VerifyProof(ctx, epoch, message, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)

	valid, err = bob.VerifyProof(ctx, epoch, message, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)
}

func TestMissingArtifacts(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r, err := New(ctx, &Config{
		TreeDepth: testDepth,
		Backend:   circuits.NewMockBackend(nil),
		Artifacts: circuits.NewCircuitArtifacts(nil, nil, nil),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(r.Register(ctx, 1, nil), qt.IsNil)
	_, err = r.CreateProof(ctx, big.NewInt(1), []byte("hi"))
	c.Assert(err, qt.ErrorIs, circuits.ErrMissingProvingArtifacts)
	_, err = r.VerifyProof(ctx, big.NewInt(1), []byte("hi"), &circuits.RLNFullProof{})
	c.Assert(err, qt.ErrorIs, circuits.ErrMissingVerificationKey)
}

func TestWithdrawAndSync(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	reg := newMemoryRegistry(c)
	r := newTestRLN(c, reg)

	c.Assert(r.Withdraw(ctx), qt.ErrorIs, ErrInvalidState)
	c.Assert(r.Register(ctx, 4, nil), qt.IsNil)

	// a second instance of the same identity picks the membership up
	restarted, err := New(ctx, &Config{
		Identity:      r.Identity(),
		RLNIdentifier: testRLNIdentifier,
		TreeDepth:     testDepth,
		Registry:      reg,
		Backend:       circuits.NewMockBackend(nil),
		Artifacts:     circuits.MockArtifacts("rln"),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(restarted.State(), qt.Equals, StateUnregistered)
	c.Assert(restarted.Sync(ctx), qt.IsNil)
	c.Assert(restarted.State(), qt.Equals, StateRegistered)

	c.Assert(r.ReleaseWithdrawal(ctx), qt.ErrorIs, ErrInvalidState)
	c.Assert(r.Withdraw(ctx), qt.IsNil)
	c.Assert(r.State(), qt.Equals, StateWithdrawing)
	_, err = r.CreateProof(ctx, big.NewInt(1), []byte("hi"))
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	c.Assert(r.ReleaseWithdrawal(ctx), qt.IsNil)
	c.Assert(r.State(), qt.Equals, StateReleased)
	ok, err := r.IsRegistered(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

// breachingProofs registers the RLN with message limit 1 and returns a proof
// created through the engine and a second one for the same epoch and message
// id, proved directly as a client ignoring its limits would.
func breachingProofs(c *qt.C, r *RLN) (*circuits.RLNFullProof, *circuits.RLNFullProof) {
	ctx := context.Background()
	c.Assert(r.Register(ctx, 1, nil), qt.IsNil)
	epoch := big.NewInt(5)
	first, err := r.CreateProof(ctx, epoch, []byte("abc"))
	c.Assert(err, qt.IsNil)
	_, err = r.CreateProof(ctx, epoch, []byte("abcd"))
	c.Assert(err, qt.ErrorIs, counter.ErrMessageLimitExceeded)

	merkleProof, err := r.registry.GenerateMerkleProof(ctx, r.id.Commitment)
	c.Assert(err, qt.IsNil)
	second, err := r.prover.GenerateProof(ctx, &circuits.RLNWitness{
		IdentitySecret:   r.id.Secret,
		UserMessageLimit: 1,
		MessageID:        0,
		MerkleProof:      merkleProof,
		X:                identitySignal("abcd"),
		Epoch:            epoch,
		RLNIdentifier:    r.RLNIdentifier(),
	})
	c.Assert(err, qt.IsNil)
	return first, second
}

func TestBreachAndSlash(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	reg := newMemoryRegistry(c)
	alice := newTestRLN(c, reg)
	peer := newTestRLN(c, reg)
	first, second := breachingProofs(c, alice)

	epoch := big.NewInt(5)
	valid, err := peer.VerifyProof(ctx, epoch, []byte("abc"), first)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsTrue)
	valid, err = peer.VerifyProof(ctx, epoch, []byte("abcd"), second)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsTrue)

	res, err := peer.SaveProof(first)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Status, qt.Equals, cache.StatusValid)
	res, err = peer.SaveProof(first)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Status, qt.Equals, cache.StatusDuplicate)
	res, err = peer.SaveProof(second)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Status, qt.Equals, cache.StatusBreach)
	c.Assert(res.Secret.MathBigInt().Cmp(alice.Identity().Secret), qt.Equals, 0)

	c.Assert(peer.Slash(ctx, res.Secret.MathBigInt(), common.Address{}), qt.IsNil)
	ok, err := alice.IsRegistered(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestBreachAndSlashOnLedger(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	backend := circuits.NewMockBackend(nil)
	withdrawArtifacts := circuits.MockArtifacts("withdraw")
	withdrawProver, err := circuits.NewWithdrawProver(backend, withdrawArtifacts)
	c.Assert(err, qt.IsNil)
	chain := web3.NewMockChain(backend, withdrawArtifacts.VerifyingKey())
	newLedgerRLN := func(addr common.Address) *RLN {
		reg, err := registry.NewLedgerRegistry(&registry.LedgerConfig{
			Contracts:      chain.Account(addr),
			Storage:        storage.New(memdb.New()),
			Depth:          testDepth,
			WithdrawProver: withdrawProver,
		})
		c.Assert(err, qt.IsNil)
		return newTestRLN(c, reg)
	}
	alice := newLedgerRLN(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	peer := newLedgerRLN(common.HexToAddress("0x2222222222222222222222222222222222222222"))
	first, second := breachingProofs(c, alice)

	res, err := peer.SaveProof(first)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Status, qt.Equals, cache.StatusValid)
	res, err = peer.SaveProof(second)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Status, qt.Equals, cache.StatusBreach)

	// alice can not slash her own membership
	c.Assert(alice.Slash(ctx, res.Secret.MathBigInt(), common.Address{}), qt.ErrorIs, registry.ErrSelfSlash)
	c.Assert(peer.Slash(ctx, res.Secret.MathBigInt(), common.Address{}), qt.IsNil)
	ok, err := alice.IsRegistered(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	ok, err = peer.IsMember(ctx, alice.Identity().Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func identitySignal(message string) *big.Int {
	return identity.SignalHash([]byte(message))
}
