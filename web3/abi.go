package web3

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// RLNContractABI is the ABI of the RLN membership contract. Members deposit
// messageLimit * MINIMAL_DEPOSIT tokens on register; withdraw and slash take
// a withdraw circuit proof bound to the receiver of the funds.
const RLNContractABI = `[
	{"type":"function","name":"register","stateMutability":"nonpayable",
	 "inputs":[{"name":"identityCommitment","type":"uint256"},{"name":"messageLimit","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable",
	 "inputs":[{"name":"identityCommitment","type":"uint256"},{"name":"proof","type":"uint256[8]"}],"outputs":[]},
	{"type":"function","name":"release","stateMutability":"nonpayable",
	 "inputs":[{"name":"identityCommitment","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"slash","stateMutability":"nonpayable",
	 "inputs":[{"name":"identityCommitment","type":"uint256"},{"name":"receiver","type":"address"},{"name":"proof","type":"uint256[8]"}],"outputs":[]},
	{"type":"function","name":"members","stateMutability":"view",
	 "inputs":[{"name":"identityCommitment","type":"uint256"}],
	 "outputs":[{"name":"userAddress","type":"address"},{"name":"messageLimit","type":"uint256"},{"name":"index","type":"uint256"}]},
	{"type":"function","name":"withdrawals","stateMutability":"view",
	 "inputs":[{"name":"identityCommitment","type":"uint256"}],
	 "outputs":[{"name":"blockNumber","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"receiver","type":"address"}]},
	{"type":"function","name":"FREEZE_PERIOD","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"MINIMAL_DEPOSIT","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"MemberRegistered","anonymous":false,
	 "inputs":[{"name":"identityCommitment","type":"uint256","indexed":false},{"name":"messageLimit","type":"uint256","indexed":false},{"name":"index","type":"uint256","indexed":false}]},
	{"type":"event","name":"MemberWithdrawn","anonymous":false,
	 "inputs":[{"name":"index","type":"uint256","indexed":false}]},
	{"type":"event","name":"MemberSlashed","anonymous":false,
	 "inputs":[{"name":"index","type":"uint256","indexed":false},{"name":"slasher","type":"address","indexed":false}]}
]`

// ERC20ApproveABI is the subset of the ERC20 ABI used to approve the
// registration deposit.
const ERC20ApproveABI = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

// Event names of the RLN contract.
const (
	EventMemberRegistered = "MemberRegistered"
	EventMemberWithdrawn  = "MemberWithdrawn"
	EventMemberSlashed    = "MemberSlashed"
)

var (
	rlnABI   = mustParseABI(RLNContractABI)
	erc20ABI = mustParseABI(ERC20ApproveABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
