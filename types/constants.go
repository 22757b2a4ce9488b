package types

import "time"

const (
	// DefaultTreeDepth is the depth of the membership merkle tree expected by
	// the default RLN circuit.
	DefaultTreeDepth = 20
	// MessageLimitBitSize is the bit width of the message limit and message id
	// inside the RLN circuit.
	MessageLimitBitSize = 16
	// MaxMessageLimit is the highest message limit the circuit can represent.
	MaxMessageLimit = 1<<MessageLimitBitSize - 1
	// DefaultCacheSize is the number of epochs retained by the proof cache.
	// Zero means unbounded.
	DefaultCacheSize = 100
	// SerializedFieldSize is the size in bytes of a serialized field element.
	SerializedFieldSize = 32
	// DefaultTxTimeout bounds how long the ledger client waits for a
	// transaction to be mined.
	DefaultTxTimeout = 2 * time.Minute
)
