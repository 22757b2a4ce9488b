package storage

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vocdoni/rln-sandbox/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// ProofShares returns the shares stored for the epoch and nullifier provided,
// in insertion order. It returns an empty list if there are none.
func (s *Storage) ProofShares(epoch, nullifier string) ([]*types.ProofShare, error) {
	var shares []*types.ProofShare
	if err := s.getArtifact(sharesPrefix, shareKey(epoch, nullifier), &shares); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read proof shares: %w", err)
	}
	return shares, nil
}

// AppendProofShare appends the share to the list stored for its epoch and
// nullifier.
func (s *Storage) AppendProofShare(share *types.ProofShare) error {
	if share == nil || share.Epoch == nil || share.Nullifier == nil {
		return fmt.Errorf("incomplete proof share")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	epoch, nullifier := share.Epoch.String(), share.Nullifier.String()
	shares, err := s.ProofShares(epoch, nullifier)
	if err != nil {
		return err
	}
	return s.setArtifact(sharesPrefix, shareKey(epoch, nullifier), append(shares, share))
}

// Epochs returns the epochs known by the proof cache in discovery order.
func (s *Storage) Epochs() ([]string, error) {
	var epochs []string
	if err := s.getArtifact(epochsPrefix, epochsKey, &epochs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read epochs: %w", err)
	}
	return epochs, nil
}

// AddEpoch appends the epoch to the ordered list of known epochs, if it is
// not already there.
func (s *Storage) AddEpoch(epoch string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	epochs, err := s.Epochs()
	if err != nil {
		return err
	}
	if slices.Contains(epochs, epoch) {
		return nil
	}
	return s.setArtifact(epochsPrefix, epochsKey, append(epochs, epoch))
}

// DeleteEpoch drops the epoch from the list of known epochs and removes
// every share stored for it.
func (s *Storage) DeleteEpoch(epoch string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	epochs, err := s.Epochs()
	if err != nil {
		return err
	}
	epochs = slices.DeleteFunc(epochs, func(e string) bool { return e == epoch })
	if err := s.setArtifact(epochsPrefix, epochsKey, epochs); err != nil {
		return err
	}
	// collect the share keys of the epoch and delete them in a single tx
	prefix := []byte(epoch + "/")
	pr := prefixeddb.NewPrefixedReader(s.db, sharesPrefix)
	var keys [][]byte
	if err := pr.Iterate(prefix, func(k, _ []byte) bool {
		keys = append(keys, append(append([]byte(nil), prefix...), k...))
		return true
	}); err != nil {
		return fmt.Errorf("iterate proof shares: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), sharesPrefix)
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			wTx.Discard()
			return fmt.Errorf("delete proof share: %w", err)
		}
	}
	return wTx.Commit()
}
