// Package counter tracks the message ids used by a member in every epoch, so
// that a member does not request more proofs than its message limit allows.
// It is a local guard only: the proof cache is what detects a breach.
package counter

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// ErrMessageLimitExceeded is returned when every message id of an epoch was
// already used.
var ErrMessageLimitExceeded = errors.New("message limit exceeded for epoch")

// MessageIDCounter hands out the message ids of a member per epoch.
type MessageIDCounter interface {
	// MessageLimit returns the number of ids available per epoch.
	MessageLimit() uint64
	// PeekNextMessageID returns the id the next call to
	// GetMessageIDAndIncrement would return, without consuming it.
	PeekNextMessageID(epoch *big.Int) (uint64, error)
	// GetMessageIDAndIncrement returns the next free id of the epoch and
	// marks it as used, atomically.
	GetMessageIDAndIncrement(epoch *big.Int) (uint64, error)
}

// MemoryCounter is the default MessageIDCounter, kept in process memory.
type MemoryCounter struct {
	limit  uint64
	mu     sync.Mutex
	epochs map[string]uint64
}

// NewMemoryCounter returns a counter for the message limit provided.
func NewMemoryCounter(messageLimit uint64) (*MemoryCounter, error) {
	if messageLimit == 0 {
		return nil, fmt.Errorf("message limit must be positive")
	}
	return &MemoryCounter{
		limit:  messageLimit,
		epochs: make(map[string]uint64),
	}, nil
}

func (mc *MemoryCounter) MessageLimit() uint64 {
	return mc.limit
}

func (mc *MemoryCounter) PeekNextMessageID(epoch *big.Int) (uint64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	next := mc.epochs[epoch.String()]
	if next >= mc.limit {
		return 0, fmt.Errorf("%w %s: limit %d", ErrMessageLimitExceeded, epoch, mc.limit)
	}
	return next, nil
}

func (mc *MemoryCounter) GetMessageIDAndIncrement(epoch *big.Int) (uint64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	key := epoch.String()
	next := mc.epochs[key]
	if next >= mc.limit {
		return 0, fmt.Errorf("%w %s: limit %d", ErrMessageLimitExceeded, epoch, mc.limit)
	}
	mc.epochs[key] = next + 1
	return next, nil
}
