package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/vocdoni/rln-sandbox/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// LedgerSyncState is the progress of the ledger event indexer.
type LedgerSyncState struct {
	Contract  types.HexBytes `cbor:"0,keyasint"`
	LastBlock uint64         `cbor:"1,keyasint"`
}

// MemberRecord is a member indexed from the ledger events.
type MemberRecord struct {
	IdentityCommitment *types.BigInt `cbor:"0,keyasint"`
	MessageLimit       uint64        `cbor:"1,keyasint"`
	Index              uint64        `cbor:"2,keyasint"`
	RateCommitment     *types.BigInt `cbor:"3,keyasint"`
}

// LedgerSyncState returns the stored indexer progress, or ErrNotFound if
// the ledger was never indexed.
func (s *Storage) LedgerSyncState() (*LedgerSyncState, error) {
	st := &LedgerSyncState{}
	if err := s.getArtifact(ledgerPrefix, syncStateKey, st); err != nil {
		return nil, err
	}
	return st, nil
}

// SetLedgerSyncState stores the indexer progress.
func (s *Storage) SetLedgerSyncState(st *LedgerSyncState) error {
	if st == nil {
		return fmt.Errorf("nil sync state")
	}
	return s.setArtifact(ledgerPrefix, syncStateKey, st)
}

// Member returns the member with the identity commitment provided, or
// ErrNotFound.
func (s *Storage) Member(identityCommitment *big.Int) (*MemberRecord, error) {
	m := &MemberRecord{}
	if err := s.getArtifact(memberPrefix, []byte(identityCommitment.String()), m); err != nil {
		return nil, err
	}
	return m, nil
}

// MemberByIndex returns the member stored at the tree index provided, or
// ErrNotFound.
func (s *Storage) MemberByIndex(index uint64) (*MemberRecord, error) {
	pr := prefixeddb.NewPrefixedReader(s.db, indexPrefix)
	commitment, err := pr.Get(indexKey(index))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get member index %d: %w", index, err)
	}
	m := &MemberRecord{}
	if err := s.getArtifact(memberPrefix, commitment, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMember stores or replaces a member record together with its tree
// index entry.
func (s *Storage) SetMember(m *MemberRecord) error {
	if m == nil || m.IdentityCommitment == nil {
		return fmt.Errorf("incomplete member record")
	}
	val, err := encodeArtifact(m)
	if err != nil {
		return fmt.Errorf("encode member: %w", err)
	}
	key := []byte(m.IdentityCommitment.String())
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	prev := &MemberRecord{}
	err = s.getArtifact(memberPrefix, key, prev)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err == nil && prev.Index != m.Index {
		if err := wTx.Delete(slices.Concat(indexPrefix, indexKey(prev.Index))); err != nil {
			return err
		}
	}
	if err := wTx.Set(slices.Concat(memberPrefix, key), val); err != nil {
		return err
	}
	if err := wTx.Set(slices.Concat(indexPrefix, indexKey(m.Index)), key); err != nil {
		return err
	}
	return wTx.Commit()
}

// DeleteMember removes a member record and its tree index entry. Deleting
// an unknown member is not an error.
func (s *Storage) DeleteMember(identityCommitment *big.Int) error {
	key := []byte(identityCommitment.String())
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	m := &MemberRecord{}
	if err := s.getArtifact(memberPrefix, key, m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := wTx.Delete(slices.Concat(memberPrefix, key)); err != nil {
		return err
	}
	if err := wTx.Delete(slices.Concat(indexPrefix, indexKey(m.Index))); err != nil {
		return err
	}
	return wTx.Commit()
}

func indexKey(index uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, index)
}

// Members returns every stored member record.
func (s *Storage) Members() ([]*MemberRecord, error) {
	keys, err := s.listArtifacts(memberPrefix)
	if err != nil {
		return nil, err
	}
	members := make([]*MemberRecord, 0, len(keys))
	for _, k := range keys {
		m := &MemberRecord{}
		if err := s.getArtifact(memberPrefix, k, m); err != nil {
			return nil, fmt.Errorf("could not read member %s: %w", k, err)
		}
		members = append(members, m)
	}
	return members, nil
}
