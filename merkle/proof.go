package merkle

import (
	"fmt"
	"math/big"
)

// Proof is the membership proof of a leaf: the siblings along the path to the
// root and, for each level, whether the path node is the right child (1) or
// the left one (0).
type Proof struct {
	Root        *big.Int
	Leaf        *big.Int
	Index       uint64
	Siblings    []*big.Int
	PathIndices []uint8
}

// ComputeRoot hashes the leaf with its siblings up to the root.
func (p *Proof) ComputeRoot() (*big.Int, error) {
	if len(p.Siblings) != len(p.PathIndices) {
		return nil, fmt.Errorf("siblings and path indices length mismatch")
	}
	if p.Leaf == nil {
		return nil, fmt.Errorf("nil leaf")
	}
	cur := p.Leaf
	var err error
	for i, sibling := range p.Siblings {
		switch p.PathIndices[i] {
		case 0:
			cur, err = hashNodes(cur, sibling)
		case 1:
			cur, err = hashNodes(sibling, cur)
		default:
			return nil, fmt.Errorf("invalid path index %d at level %d", p.PathIndices[i], i)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Verify reports whether the proof leads to its root.
func (p *Proof) Verify() bool {
	root, err := p.ComputeRoot()
	if err != nil || p.Root == nil {
		return false
	}
	return root.Cmp(p.Root) == 0
}
