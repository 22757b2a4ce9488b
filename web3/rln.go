package web3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/rln-sandbox/log"
)

// Register approves the deposit of messageLimit * MINIMAL_DEPOSIT on the
// token of the contract and registers the identity commitment. Both
// transactions are waited for.
func (c *Contracts) Register(ctx context.Context, identityCommitment *big.Int, messageLimit uint64) error {
	out, err := c.call(ctx, "token")
	if err != nil {
		return err
	}
	token := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if out, err = c.call(ctx, "MINIMAL_DEPOSIT"); err != nil {
		return err
	}
	minDeposit := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	deposit := new(big.Int).Mul(minDeposit, new(big.Int).SetUint64(messageLimit))

	erc20 := bind.NewBoundContract(token, erc20ABI, c.cli, c.cli, c.cli)
	if err := c.transact(ctx, erc20, "approve", c.RLNAddress, deposit); err != nil {
		return fmt.Errorf("failed to approve deposit: %w", err)
	}
	if err := c.transact(ctx, c.rln, "register", identityCommitment, new(big.Int).SetUint64(messageLimit)); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	log.Infow("member registered on chain", "identityCommitment", identityCommitment.String(), "messageLimit", messageLimit)
	return nil
}

// Withdraw starts the withdrawal of the member, proving the knowledge of its
// secret with a withdraw circuit proof bound to the member address.
func (c *Contracts) Withdraw(ctx context.Context, identityCommitment *big.Int, proof [8]*big.Int) error {
	return c.transact(ctx, c.rln, "withdraw", identityCommitment, proof)
}

// Release finalizes a withdrawal once the freeze period has passed.
func (c *Contracts) Release(ctx context.Context, identityCommitment *big.Int) error {
	return c.transact(ctx, c.rln, "release", identityCommitment)
}

// Slash removes the member, given a withdraw circuit proof made with its
// recovered secret and bound to the receiver of the deposit.
func (c *Contracts) Slash(ctx context.Context, identityCommitment *big.Int, receiver common.Address, proof [8]*big.Int) error {
	return c.transact(ctx, c.rln, "slash", identityCommitment, receiver, proof)
}

// Member returns the contract record of the identity commitment.
func (c *Contracts) Member(ctx context.Context, identityCommitment *big.Int) (*Member, error) {
	out, err := c.call(ctx, "members", identityCommitment)
	if err != nil {
		return nil, err
	}
	return &Member{
		Address:      *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		MessageLimit: (*abi.ConvertType(out[1], new(*big.Int)).(**big.Int)).Uint64(),
		Index:        (*abi.ConvertType(out[2], new(*big.Int)).(**big.Int)).Uint64(),
	}, nil
}

// Withdrawal returns the pending withdrawal of the identity commitment.
func (c *Contracts) Withdrawal(ctx context.Context, identityCommitment *big.Int) (*Withdrawal, error) {
	out, err := c.call(ctx, "withdrawals", identityCommitment)
	if err != nil {
		return nil, err
	}
	return &Withdrawal{
		BlockNumber: (*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64(),
		Amount:      *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Receiver:    *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
	}, nil
}

// FreezePeriod returns the number of blocks a withdrawal must wait before
// it can be released.
func (c *Contracts) FreezePeriod(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "FREEZE_PERIOD")
	if err != nil {
		return 0, err
	}
	return (*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64(), nil
}

// MemberEvents returns the membership events emitted by the contract between
// the blocks provided, both included, in log order.
func (c *Contracts) MemberEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*MemberEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	logs, err := c.cli.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.RLNAddress},
		Topics: [][]common.Hash{{
			rlnABI.Events[EventMemberRegistered].ID,
			rlnABI.Events[EventMemberWithdrawn].ID,
			rlnABI.Events[EventMemberSlashed].ID,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter member events: %w", err)
	}
	events := make([]*MemberEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		event, err := c.parseMemberEvent(l)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *Contracts) parseMemberEvent(l gethtypes.Log) (*MemberEvent, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("log without topics in tx %s", l.TxHash.Hex())
	}
	event := &MemberEvent{BlockNumber: l.BlockNumber, LogIndex: l.Index}
	switch l.Topics[0] {
	case rlnABI.Events[EventMemberRegistered].ID:
		var e struct {
			IdentityCommitment *big.Int
			MessageLimit       *big.Int
			Index              *big.Int
		}
		if err := c.rln.UnpackLog(&e, EventMemberRegistered, l); err != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", EventMemberRegistered, err)
		}
		event.Type = MemberRegistered
		event.IdentityCommitment = e.IdentityCommitment
		event.MessageLimit = e.MessageLimit.Uint64()
		event.Index = e.Index.Uint64()
	case rlnABI.Events[EventMemberWithdrawn].ID:
		var e struct{ Index *big.Int }
		if err := c.rln.UnpackLog(&e, EventMemberWithdrawn, l); err != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", EventMemberWithdrawn, err)
		}
		event.Type = MemberWithdrawn
		event.Index = e.Index.Uint64()
	case rlnABI.Events[EventMemberSlashed].ID:
		var e struct {
			Index   *big.Int
			Slasher common.Address
		}
		if err := c.rln.UnpackLog(&e, EventMemberSlashed, l); err != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", EventMemberSlashed, err)
		}
		event.Type = MemberSlashed
		event.Index = e.Index.Uint64()
		event.Slasher = e.Slasher
	default:
		return nil, fmt.Errorf("unknown event topic %s", l.Topics[0].Hex())
	}
	return event, nil
}
