// Package merkle implements the fixed-depth incremental binary merkle tree
// that holds the rate commitments of the RLN members. Nodes are hashed with
// Poseidon(left, right), empty leaves are zero, and the layout is the one the
// RLN circuit verifies membership against.
package merkle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
)

var (
	// ErrTreeFull is returned when inserting into a tree with no free leaves.
	ErrTreeFull = errors.New("merkle tree is full")
	// ErrIndexOutOfRange is returned when an index beyond the tree size or
	// capacity is accessed.
	ErrIndexOutOfRange = errors.New("leaf index out of range")

	sizeKey = []byte("size")
)

// HashFunc is the hash function used to compute the inner nodes.
var HashFunc = arbo.HashFunctionPoseidon

// Tree is a dense binary merkle tree of fixed depth stored in a key-value
// database. It is safe for concurrent use.
type Tree struct {
	db    db.Database
	depth int
	zeros []*big.Int
	mu    sync.RWMutex
}

// New opens (or creates) the tree stored in the database provided.
func New(database db.Database, depth int) (*Tree, error) {
	if database == nil {
		return nil, fmt.Errorf("nil database")
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("invalid tree depth %d", depth)
	}
	zeros := make([]*big.Int, depth+1)
	zeros[0] = big.NewInt(0)
	for i := 1; i <= depth; i++ {
		h, err := hashNodes(zeros[i-1], zeros[i-1])
		if err != nil {
			return nil, fmt.Errorf("could not compute empty subtree hashes: %w", err)
		}
		zeros[i] = h
	}
	return &Tree{db: database, depth: depth, zeros: zeros}, nil
}

// Depth returns the number of levels of the tree.
func (t *Tree) Depth() int {
	return t.depth
}

// Capacity returns the maximum number of leaves of the tree.
func (t *Tree) Capacity() uint64 {
	return 1 << uint(t.depth)
}

// Root returns the current root of the tree.
func (t *Tree) Root() (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(t.db, t.depth, 0)
}

// Size returns the number of leaves written so far, including deleted ones.
func (t *Tree) Size() (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size(t.db)
}

// Leaf returns the leaf at the index provided.
func (t *Tree) Leaf(index uint64) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	size, err := t.size(t.db)
	if err != nil {
		return nil, err
	}
	if index >= size {
		return nil, ErrIndexOutOfRange
	}
	return t.node(t.db, 0, index)
}

// Leaves returns every leaf written so far in index order. Deleted leaves
// are returned as zero.
func (t *Tree) Leaves() ([]*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	size, err := t.size(t.db)
	if err != nil {
		return nil, err
	}
	leaves := make([]*big.Int, 0, size)
	for i := uint64(0); i < size; i++ {
		leaf, err := t.node(t.db, 0, i)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// Insert appends the leaf at the next free index and returns that index.
func (t *Tree) Insert(leaf *big.Int) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	size, err := t.size(t.db)
	if err != nil {
		return 0, err
	}
	if size >= t.Capacity() {
		return 0, ErrTreeFull
	}
	if err := t.update(size, leaf); err != nil {
		return 0, err
	}
	return size, nil
}

// Set writes the leaf at the index provided, growing the tree size if the
// index is beyond the current size.
func (t *Tree) Set(index uint64, leaf *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index >= t.Capacity() {
		return ErrIndexOutOfRange
	}
	return t.update(index, leaf)
}

// Delete replaces the leaf at the index provided by the zero leaf. The size
// of the tree does not change.
func (t *Tree) Delete(index uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	size, err := t.size(t.db)
	if err != nil {
		return err
	}
	if index >= size {
		return ErrIndexOutOfRange
	}
	return t.update(index, big.NewInt(0))
}

// GenProof returns the membership proof of the leaf at the index provided.
func (t *Tree) GenProof(index uint64) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	size, err := t.size(t.db)
	if err != nil {
		return nil, err
	}
	if index >= size {
		return nil, ErrIndexOutOfRange
	}
	leaf, err := t.node(t.db, 0, index)
	if err != nil {
		return nil, err
	}
	root, err := t.node(t.db, t.depth, 0)
	if err != nil {
		return nil, err
	}
	proof := &Proof{
		Root:        root,
		Leaf:        leaf,
		Index:       index,
		Siblings:    make([]*big.Int, t.depth),
		PathIndices: make([]uint8, t.depth),
	}
	idx := index
	for level := 0; level < t.depth; level++ {
		sibling, err := t.node(t.db, level, idx^1)
		if err != nil {
			return nil, err
		}
		proof.Siblings[level] = sibling
		proof.PathIndices[level] = uint8(idx & 1)
		idx >>= 1
	}
	return proof, nil
}

// update recomputes the path from the leaf at index up to the root and
// commits every modified node, and the new size if it grows, in a single
// transaction. It must be called with the write lock held.
func (t *Tree) update(index uint64, leaf *big.Int) error {
	if leaf == nil {
		return fmt.Errorf("nil leaf")
	}
	size, err := t.size(t.db)
	if err != nil {
		return err
	}
	wTx := t.db.WriteTx()
	defer wTx.Discard()

	cur := new(big.Int).Set(leaf)
	idx := index
	for level := 0; level <= t.depth; level++ {
		if err := t.setNode(wTx, level, idx, cur); err != nil {
			return err
		}
		if level == t.depth {
			break
		}
		sibling, err := t.node(t.db, level, idx^1)
		if err != nil {
			return err
		}
		if idx&1 == 0 {
			cur, err = hashNodes(cur, sibling)
		} else {
			cur, err = hashNodes(sibling, cur)
		}
		if err != nil {
			return fmt.Errorf("could not hash nodes at level %d: %w", level, err)
		}
		idx >>= 1
	}
	if index >= size {
		if err := wTx.Set(sizeKey, binary.BigEndian.AppendUint64(nil, index+1)); err != nil {
			return err
		}
	}
	return wTx.Commit()
}

func (t *Tree) size(r db.Reader) (uint64, error) {
	v, err := r.Get(sizeKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("could not read tree size: %w", err)
	}
	return binary.BigEndian.Uint64(v), nil
}

// node returns the node at the level and index provided, or the empty
// subtree hash of the level if the node was never written.
func (t *Tree) node(r db.Reader, level int, index uint64) (*big.Int, error) {
	v, err := r.Get(nodeKey(level, index))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return new(big.Int).Set(t.zeros[level]), nil
		}
		return nil, fmt.Errorf("could not read node %d/%d: %w", level, index, err)
	}
	return arbo.BytesToBigInt(v), nil
}

// setNode stores the node, or removes it if it is equal to the empty subtree
// hash of its level.
func (t *Tree) setNode(wTx db.WriteTx, level int, index uint64, value *big.Int) error {
	key := nodeKey(level, index)
	if value.Cmp(t.zeros[level]) == 0 {
		return wTx.Delete(key)
	}
	return wTx.Set(key, arbo.BigIntToBytes(HashFunc.Len(), value))
}

func nodeKey(level int, index uint64) []byte {
	key := []byte{'n', byte(level)}
	return binary.BigEndian.AppendUint64(key, index)
}

func hashNodes(left, right *big.Int) (*big.Int, error) {
	h, err := HashFunc.Hash(
		arbo.BigIntToBytes(HashFunc.Len(), left),
		arbo.BigIntToBytes(HashFunc.Len(), right),
	)
	if err != nil {
		return nil, err
	}
	return arbo.BytesToBigInt(h), nil
}
