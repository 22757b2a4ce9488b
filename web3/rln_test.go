package web3

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/identity"
)

var (
	testOwner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSlasher = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestParseMemberEvents(t *testing.T) {
	c := qt.New(t)
	rlnAddress := common.HexToAddress("0x3333333333333333333333333333333333333333")
	contracts := &Contracts{
		RLNAddress: rlnAddress,
		rln:        bind.NewBoundContract(rlnAddress, rlnABI, nil, nil, nil),
	}

	data, err := rlnABI.Events[EventMemberRegistered].Inputs.Pack(big.NewInt(77), big.NewInt(3), big.NewInt(9))
	c.Assert(err, qt.IsNil)
	event, err := contracts.parseMemberEvent(gethtypes.Log{
		Address:     rlnAddress,
		Topics:      []common.Hash{rlnABI.Events[EventMemberRegistered].ID},
		Data:        data,
		BlockNumber: 12,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(event.Type, qt.Equals, MemberRegistered)
	c.Assert(event.IdentityCommitment.Int64(), qt.Equals, int64(77))
	c.Assert(event.MessageLimit, qt.Equals, uint64(3))
	c.Assert(event.Index, qt.Equals, uint64(9))
	c.Assert(event.BlockNumber, qt.Equals, uint64(12))

	data, err = rlnABI.Events[EventMemberSlashed].Inputs.Pack(big.NewInt(9), testSlasher)
	c.Assert(err, qt.IsNil)
	event, err = contracts.parseMemberEvent(gethtypes.Log{
		Topics: []common.Hash{rlnABI.Events[EventMemberSlashed].ID},
		Data:   data,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(event.Type, qt.Equals, MemberSlashed)
	c.Assert(event.Index, qt.Equals, uint64(9))
	c.Assert(event.Slasher, qt.Equals, testSlasher)

	data, err = rlnABI.Events[EventMemberWithdrawn].Inputs.Pack(big.NewInt(4))
	c.Assert(err, qt.IsNil)
	event, err = contracts.parseMemberEvent(gethtypes.Log{
		Topics: []common.Hash{rlnABI.Events[EventMemberWithdrawn].ID},
		Data:   data,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(event.Type, qt.Equals, MemberWithdrawn)
	c.Assert(event.Index, qt.Equals, uint64(4))

	_, err = contracts.parseMemberEvent(gethtypes.Log{Topics: []common.Hash{{0x01}}})
	c.Assert(err, qt.IsNotNil)
}

func TestMockChain(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	backend := circuits.NewMockBackend(nil)
	artifacts := circuits.MockArtifacts("withdraw")
	prover, err := circuits.NewWithdrawProver(backend, artifacts)
	c.Assert(err, qt.IsNil)
	chain := NewMockChain(backend, artifacts.VerifyingKey())
	owner := chain.Account(testOwner)
	slasher := chain.Account(testSlasher)

	alice, err := identity.New()
	c.Assert(err, qt.IsNil)
	bob, err := identity.New()
	c.Assert(err, qt.IsNil)

	c.Assert(owner.Register(ctx, alice.Commitment, 2), qt.IsNil)
	c.Assert(owner.Register(ctx, alice.Commitment, 2), qt.IsNotNil)
	c.Assert(owner.Register(ctx, bob.Commitment, 1), qt.IsNil)
	member, err := owner.Member(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(member.Address, qt.Equals, testOwner)
	c.Assert(member.MessageLimit, qt.Equals, uint64(2))

	// withdraw needs a proof bound to the owner address
	proof, err := prover.GenerateProof(ctx, alice.Secret, testSlasher)
	c.Assert(err, qt.IsNil)
	calldata, err := proof.SolidityCalldata()
	c.Assert(err, qt.IsNil)
	c.Assert(owner.Withdraw(ctx, alice.Commitment, calldata), qt.IsNotNil)
	proof, err = prover.GenerateProof(ctx, alice.Secret, testOwner)
	c.Assert(err, qt.IsNil)
	calldata, err = proof.SolidityCalldata()
	c.Assert(err, qt.IsNil)
	c.Assert(owner.Withdraw(ctx, alice.Commitment, calldata), qt.IsNil)

	// freeze period
	c.Assert(owner.Release(ctx, alice.Commitment), qt.IsNotNil)
	chain.Mine(MockFreezePeriod)
	c.Assert(owner.Release(ctx, alice.Commitment), qt.IsNil)
	member, err = owner.Member(ctx, alice.Commitment)
	c.Assert(err, qt.IsNil)
	c.Assert(member.Address, qt.Equals, common.Address{})

	// slash bob with a proof bound to the slasher
	proof, err = prover.GenerateProof(ctx, bob.Secret, testSlasher)
	c.Assert(err, qt.IsNil)
	calldata, err = proof.SolidityCalldata()
	c.Assert(err, qt.IsNil)
	c.Assert(slasher.Slash(ctx, bob.Commitment, testSlasher, calldata), qt.IsNil)

	head, err := owner.BlockNumber(ctx)
	c.Assert(err, qt.IsNil)
	events, err := owner.MemberEvents(ctx, 0, head)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 4)
	c.Assert(events[0].Type, qt.Equals, MemberRegistered)
	c.Assert(events[1].Type, qt.Equals, MemberRegistered)
	c.Assert(events[2].Type, qt.Equals, MemberWithdrawn)
	c.Assert(events[2].Index, qt.Equals, uint64(0))
	c.Assert(events[3].Type, qt.Equals, MemberSlashed)
	c.Assert(events[3].Index, qt.Equals, uint64(1))
	c.Assert(events[3].Slasher, qt.Equals, testSlasher)

	events, err = owner.MemberEvents(ctx, events[2].BlockNumber, head)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
}
