package web3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies the membership events of the RLN contract.
type EventType int

const (
	MemberRegistered EventType = iota
	MemberWithdrawn
	MemberSlashed
)

func (t EventType) String() string {
	switch t {
	case MemberRegistered:
		return EventMemberRegistered
	case MemberWithdrawn:
		return EventMemberWithdrawn
	case MemberSlashed:
		return EventMemberSlashed
	default:
		return "unknown"
	}
}

// MemberEvent is a membership event read from the contract logs.
// IdentityCommitment and MessageLimit are only set for MemberRegistered and
// Slasher only for MemberSlashed.
type MemberEvent struct {
	Type               EventType
	IdentityCommitment *big.Int
	MessageLimit       uint64
	Index              uint64
	Slasher            common.Address
	BlockNumber        uint64
	LogIndex           uint
}

// Member is the record stored by the contract for a registered identity.
// A zero Address means the identity is not registered.
type Member struct {
	Address      common.Address
	MessageLimit uint64
	Index        uint64
}

// Withdrawal is a pending withdrawal. A zero BlockNumber means there is no
// pending withdrawal.
type Withdrawal struct {
	BlockNumber uint64
	Amount      *big.Int
	Receiver    common.Address
}
