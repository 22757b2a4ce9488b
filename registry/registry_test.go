package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/storage"
	"github.com/vocdoni/rln-sandbox/web3"
	"go.vocdoni.io/dvote/db/metadb"
)

const testDepth = 8

var (
	ownerAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	slasherAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newIdentity(c *qt.C) *identity.Identity {
	id, err := identity.New()
	c.Assert(err, qt.IsNil)
	return id
}

func TestMemoryRegistry(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r, err := NewMemoryRegistry(testDepth)
	c.Assert(err, qt.IsNil)
	alice, bob := newIdentity(c), newIdentity(c)

	c.Assert(r.Register(ctx, alice.Commitment, 3), qt.IsNil)
	c.Assert(r.Register(ctx, alice.Commitment, 3), qt.ErrorIs, ErrAlreadyRegistered)
	c.Assert(r.Register(ctx, bob.Commitment, 1), qt.IsNil)

	ok, err := r.IsRegistered(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	limit, err := r.MessageLimit(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(limit, qt.Equals, uint64(3))
	rc, err := r.RateCommitment(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	expected, err := identity.RateCommitment(alice.Commitment, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(rc.Cmp(expected), qt.Equals, 0)

	proof, err := r.GenerateMerkleProof(ctx, bob.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Verify(), qt.IsTrue)
	root, err := r.MerkleRoot(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Root.Cmp(root), qt.Equals, 0)

	// withdrawal
	c.Assert(r.ReleaseWithdrawal(ctx, alice.Commitment), qt.ErrorIs, ErrNotWithdrawing)
	c.Assert(r.Withdraw(ctx, alice.Secret), qt.IsNil)
	c.Assert(r.Withdraw(ctx, alice.Secret), qt.ErrorIs, ErrAlreadyWithdrawing)
	c.Assert(r.ReleaseWithdrawal(ctx, alice.Commitment), qt.IsNil)
	ok, err = r.IsRegistered(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	// slash
	c.Assert(r.Slash(ctx, bob.Secret, common.Address{}), qt.IsNil)
	c.Assert(r.Slash(ctx, bob.Secret, common.Address{}), qt.ErrorIs, ErrNotRegistered)
	_, err = r.MessageLimit(ctx, bob.Commitment)
	c.Assert(err, qt.ErrorIs, ErrNotRegistered)

	leaves, err := r.AllRateCommitments(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(leaves, qt.HasLen, 2)
	for _, l := range leaves {
		c.Assert(l.Sign(), qt.Equals, 0)
	}
}

// countingContracts records the block ranges requested to the chain.
type countingContracts struct {
	*web3.MockContracts
	ranges [][2]uint64
}

func (cc *countingContracts) MemberEvents(ctx context.Context, from, to uint64) ([]*web3.MemberEvent, error) {
	cc.ranges = append(cc.ranges, [2]uint64{from, to})
	return cc.MockContracts.MemberEvents(ctx, from, to)
}

type ledgerEnv struct {
	chain   *web3.MockChain
	prover  *circuits.WithdrawProver
	owner   *LedgerRegistry
	slasher *LedgerRegistry
}

func newLedgerEnv(c *qt.C) *ledgerEnv {
	backend := circuits.NewMockBackend(nil)
	artifacts := circuits.MockArtifacts("withdraw")
	prover, err := circuits.NewWithdrawProver(backend, artifacts)
	c.Assert(err, qt.IsNil)
	chain := web3.NewMockChain(backend, artifacts.VerifyingKey())
	newRegistry := func(addr common.Address) *LedgerRegistry {
		r, err := NewLedgerRegistry(&LedgerConfig{
			Contracts:      chain.Account(addr),
			Storage:        storage.New(memdb.New()),
			Depth:          testDepth,
			WithdrawProver: prover,
		})
		c.Assert(err, qt.IsNil)
		return r
	}
	return &ledgerEnv{
		chain:   chain,
		prover:  prover,
		owner:   newRegistry(ownerAddr),
		slasher: newRegistry(slasherAddr),
	}
}

func TestLedgerRegistryMatchesMemory(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	env := newLedgerEnv(c)
	mem, err := NewMemoryRegistry(testDepth)
	c.Assert(err, qt.IsNil)

	ids := []*identity.Identity{newIdentity(c), newIdentity(c), newIdentity(c)}
	for i, id := range ids {
		c.Assert(env.owner.Register(ctx, id.Commitment, uint64(i+1)), qt.IsNil)
		c.Assert(mem.Register(ctx, id.Commitment, uint64(i+1)), qt.IsNil)
	}
	c.Assert(env.owner.Register(ctx, ids[0].Commitment, 1), qt.ErrorIs, ErrAlreadyRegistered)

	// the slasher registry indexes the same events from its own storage
	for _, r := range []Registry{env.owner, env.slasher} {
		root, err := r.MerkleRoot(ctx)
		c.Assert(err, qt.IsNil)
		memRoot, err := mem.MerkleRoot(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(root.Cmp(memRoot), qt.Equals, 0)

		limit, err := r.MessageLimit(ctx, ids[2].Commitment)
		c.Assert(err, qt.IsNil)
		c.Assert(limit, qt.Equals, uint64(3))

		proof, err := r.GenerateMerkleProof(ctx, ids[1].Commitment)
		c.Assert(err, qt.IsNil)
		c.Assert(proof.Verify(), qt.IsTrue)
		c.Assert(proof.Root.Cmp(root), qt.Equals, 0)
	}
}

func TestLedgerRegistryWithdraw(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	env := newLedgerEnv(c)
	alice := newIdentity(c)

	c.Assert(env.owner.Withdraw(ctx, alice.Secret), qt.ErrorIs, ErrNotRegistered)
	c.Assert(env.owner.Register(ctx, alice.Commitment, 2), qt.IsNil)
	c.Assert(env.owner.ReleaseWithdrawal(ctx, alice.Commitment), qt.ErrorIs, ErrNotWithdrawing)
	c.Assert(env.owner.Withdraw(ctx, alice.Secret), qt.IsNil)
	c.Assert(env.owner.Withdraw(ctx, alice.Secret), qt.ErrorIs, ErrAlreadyWithdrawing)

	// still a member until released
	ok, err := env.owner.IsRegistered(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(env.owner.ReleaseWithdrawal(ctx, alice.Commitment), qt.ErrorIs, ErrWithdrawalNotReleasable)

	env.chain.Mine(web3.MockFreezePeriod + 1)
	c.Assert(env.owner.ReleaseWithdrawal(ctx, alice.Commitment), qt.IsNil)
	ok, err = env.owner.IsRegistered(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	leaves, err := env.owner.AllRateCommitments(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(leaves, qt.HasLen, 1)
	c.Assert(leaves[0].Sign(), qt.Equals, 0)
}

func TestLedgerRegistrySlash(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	env := newLedgerEnv(c)
	alice := newIdentity(c)
	c.Assert(env.owner.Register(ctx, alice.Commitment, 1), qt.IsNil)

	// the owner can not slash itself
	c.Assert(env.owner.Slash(ctx, alice.Secret, slasherAddr), qt.ErrorIs, ErrSelfSlash)

	c.Assert(env.slasher.Slash(ctx, alice.Secret, common.Address{}), qt.IsNil)
	for _, r := range []Registry{env.owner, env.slasher} {
		ok, err := r.IsRegistered(ctx, alice.Commitment)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)
	}
	c.Assert(env.slasher.Slash(ctx, alice.Secret, common.Address{}), qt.ErrorIs, ErrNotRegistered)
}

func TestLedgerRegistryRemovesByIndex(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	env := newLedgerEnv(c)
	ids := []*identity.Identity{newIdentity(c), newIdentity(c), newIdentity(c)}
	for _, id := range ids {
		c.Assert(env.owner.Register(ctx, id.Commitment, 1), qt.IsNil)
	}

	// remove the member in the middle of the tree
	c.Assert(env.slasher.Slash(ctx, ids[1].Secret, common.Address{}), qt.IsNil)
	for _, r := range []*LedgerRegistry{env.owner, env.slasher} {
		for i, id := range ids {
			ok, err := r.IsRegistered(ctx, id.Commitment)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.Equals, i != 1, qt.Commentf("member %d", i))
		}
		_, err := r.storage.MemberByIndex(1)
		c.Assert(err, qt.ErrorIs, storage.ErrNotFound)
		m, err := r.storage.MemberByIndex(2)
		c.Assert(err, qt.IsNil)
		c.Assert(m.IdentityCommitment.MathBigInt().Cmp(ids[2].Commitment), qt.Equals, 0)
		members, err := r.storage.Members()
		c.Assert(err, qt.IsNil)
		c.Assert(members, qt.HasLen, 2)
	}
}

func TestLedgerRegistryIncrementalSync(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	backend := circuits.NewMockBackend(nil)
	chain := web3.NewMockChain(backend, circuits.MockArtifacts("withdraw").VerifyingKey())
	contracts := &countingContracts{MockContracts: chain.Account(ownerAddr)}
	db := metadb.NewTest(t)
	st := storage.New(db)

	r, err := NewLedgerRegistry(&LedgerConfig{Contracts: contracts, Storage: st, Depth: testDepth})
	c.Assert(err, qt.IsNil)
	alice, bob := newIdentity(c), newIdentity(c)
	c.Assert(r.Register(ctx, alice.Commitment, 1), qt.IsNil)
	root, err := r.MerkleRoot(ctx)
	c.Assert(err, qt.IsNil)

	// nothing new is fetched when no block was mined
	n := len(contracts.ranges)
	_, err = r.MerkleRoot(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(contracts.ranges, qt.HasLen, n)

	// a new registry over the same storage resumes after the last block
	head, err := contracts.BlockNumber(ctx)
	c.Assert(err, qt.IsNil)
	resumed, err := NewLedgerRegistry(&LedgerConfig{Contracts: contracts, Storage: st, Depth: testDepth})
	c.Assert(err, qt.IsNil)
	resumedRoot, err := resumed.MerkleRoot(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(resumedRoot.Cmp(root), qt.Equals, 0)
	c.Assert(chain.Account(slasherAddr).Register(ctx, bob.Commitment, 2), qt.IsNil)
	ok, err := resumed.IsRegistered(ctx, bob.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	last := contracts.ranges[len(contracts.ranges)-1]
	c.Assert(last[0], qt.Equals, head+1)

	// the stored index is bound to its contract
	_, err = NewLedgerRegistry(&LedgerConfig{
		Contracts:       contracts,
		Storage:         st,
		Depth:           testDepth,
		ContractAddress: common.HexToAddress("0x3333333333333333333333333333333333333333"),
	})
	c.Assert(err, qt.IsNotNil)

	// withdraw without prover
	c.Assert(r.Withdraw(ctx, alice.Secret), qt.ErrorIs, circuits.ErrMissingProvingArtifacts)
}
