// Package cache keeps the proof shares received for every epoch and internal
// nullifier, and classifies new shares as valid, duplicated or breaching the
// rate limit. When a breach is detected the secret of the offending member is
// recovered from the two shares.
package cache

import (
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/types"
)

// Status is the result of evaluating a proof share against the cache.
type Status int

const (
	// StatusValid means no share was stored for the epoch and nullifier.
	StatusValid Status = iota
	// StatusDuplicate means the same share was already stored.
	StatusDuplicate
	// StatusBreach means a different share was stored for the same epoch
	// and nullifier, so the member exceeded its quota.
	StatusBreach
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusDuplicate:
		return "DUPLICATE"
	case StatusBreach:
		return "BREACH"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *Status) UnmarshalText(data []byte) error {
	switch string(data) {
	case "VALID":
		*s = StatusValid
	case "DUPLICATE":
		*s = StatusDuplicate
	case "BREACH":
		*s = StatusBreach
	default:
		return fmt.Errorf("unknown status %q", data)
	}
	return nil
}

// EvaluatedProof is the result of checking a share. Secret is only set when
// the status is StatusBreach.
type EvaluatedProof struct {
	Status    Status        `json:"status"`
	Nullifier *types.BigInt `json:"nullifier"`
	Secret    *types.BigInt `json:"secret,omitempty"`
}

// Store is the backend holding the shares and the ordered epochs of a
// Cache. Implementations must be safe for concurrent use.
type Store interface {
	ProofShares(epoch, nullifier string) ([]*types.ProofShare, error)
	AppendProofShare(share *types.ProofShare) error
	Epochs() ([]string, error)
	AddEpoch(epoch string) error
	DeleteEpoch(epoch string) error
}

// Cache evaluates and records proof shares. Mutations are serialized by a
// single writer lock, so concurrent AddProof calls for the same epoch and
// nullifier can not both be evaluated as valid.
type Cache struct {
	store Store
	size  int
	mu    sync.RWMutex
}

// New returns a Cache over the store provided that retains at most size
// epochs. A size of zero means unbounded. A nil store defaults to an
// in-memory one.
func New(store Store, size int) (*Cache, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid cache size %d", size)
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store, size: size}, nil
}

// Size returns the number of epochs retained by the cache.
func (c *Cache) Size() int {
	return c.size
}

// CheckProof evaluates the share without modifying the cache.
func (c *Cache) CheckProof(share *types.ProofShare) (*EvaluatedProof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.check(share)
}

// AddProof evaluates the share and stores it unless it is a duplicate. The
// first time an epoch is seen it is appended to the retention list, evicting
// the oldest epoch if the bound is exceeded.
func (c *Cache) AddProof(share *types.ProofShare) (*EvaluatedProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.check(share)
	if err != nil && res == nil {
		return nil, err
	}
	proofsCounter.WithLabelValues(res.Status.String()).Inc()
	if res.Status == StatusDuplicate {
		return res, nil
	}
	if err := c.trackEpoch(share.Epoch.String()); err != nil {
		return nil, err
	}
	if storeErr := c.store.AppendProofShare(share); storeErr != nil {
		return nil, fmt.Errorf("could not store proof share: %w", storeErr)
	}
	if res.Status == StatusBreach {
		log.Warnw("rate limit breach detected",
			"epoch", share.Epoch.String(),
			"nullifier", share.Nullifier.String())
	}
	// err is only set when the breaching share could not be used to recover
	// the secret; the share is still kept as evidence.
	return res, err
}

func (c *Cache) check(share *types.ProofShare) (*EvaluatedProof, error) {
	if share == nil || share.X == nil || share.Y == nil || share.Epoch == nil || share.Nullifier == nil {
		return nil, fmt.Errorf("incomplete proof share")
	}
	// epochs index the stored shares by their decimal string, so two
	// representations of the same element would split the buckets
	if !field.IsInField(share.Epoch.MathBigInt()) {
		return nil, fmt.Errorf("epoch %s: %w", share.Epoch.String(), field.ErrNotInField)
	}
	shares, err := c.store.ProofShares(share.Epoch.String(), share.Nullifier.String())
	if err != nil {
		return nil, err
	}
	res := &EvaluatedProof{Status: StatusValid, Nullifier: share.Nullifier}
	if len(shares) == 0 {
		return res, nil
	}
	if slices.ContainsFunc(shares, share.SamePoint) {
		res.Status = StatusDuplicate
		return res, nil
	}
	res.Status = StatusBreach
	first := shares[0]
	secret, err := field.Recover(
		first.X.MathBigInt(), first.Y.MathBigInt(),
		share.X.MathBigInt(), share.Y.MathBigInt(),
	)
	if err != nil {
		return res, fmt.Errorf("could not recover secret: %w", err)
	}
	res.Secret = types.NewInt(secret)
	return res, nil
}

// trackEpoch adds the epoch to the retention list and evicts the oldest
// epochs while the bound is exceeded.
func (c *Cache) trackEpoch(epoch string) error {
	epochs, err := c.store.Epochs()
	if err != nil {
		return err
	}
	if slices.Contains(epochs, epoch) {
		return nil
	}
	if err := c.store.AddEpoch(epoch); err != nil {
		return err
	}
	epochs = append(epochs, epoch)
	for c.size > 0 && len(epochs) > c.size {
		oldest := epochs[0]
		if err := c.store.DeleteEpoch(oldest); err != nil {
			return fmt.Errorf("could not evict epoch %s: %w", oldest, err)
		}
		log.Debugw("evicted epoch from proof cache", "epoch", oldest)
		epochs = epochs[1:]
	}
	return nil
}

// NewShare builds a proof share from its components.
func NewShare(x, y, epoch, nullifier *big.Int) *types.ProofShare {
	return &types.ProofShare{
		X:         types.NewInt(x),
		Y:         types.NewInt(y),
		Epoch:     types.NewInt(epoch),
		Nullifier: types.NewInt(nullifier),
	}
}
