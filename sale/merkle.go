package sale

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tolelom/tolbook/crypto"
)

// Leaf returns the allowlist leaf of addr: Keccak256 of its key bytes.
func Leaf(addr string) (common.Hash, error) {
	norm, err := normalize(addr)
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := hex.DecodeString(norm)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return crypto.Keccak256(raw), nil
}

// VerifyProof folds proof into leaf, hashing each pair smaller-first, and
// compares the result with root.
func VerifyProof(proof []common.Hash, root, leaf common.Hash) bool {
	node := leaf
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256(a[:], b[:])
}

// Tree is an allowlist merkle tree over sorted leaves. An odd node at the
// end of a level is carried up unchanged.
type Tree struct {
	levels [][]common.Hash
}

// NewTree builds the tree committing to addrs. Duplicate addresses collapse.
func NewTree(addrs []string) (*Tree, error) {
	seen := make(map[common.Hash]bool, len(addrs))
	leaves := make([]common.Hash, 0, len(addrs))
	for _, a := range addrs {
		leaf, err := Leaf(a)
		if err != nil {
			return nil, err
		}
		if !seen[leaf] {
			seen[leaf] = true
			leaves = append(leaves, leaf)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i][:], leaves[j][:]) < 0 })

	t := &Tree{levels: [][]common.Hash{leaves}}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the commitment. An empty tree has the zero root.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return common.Hash{}
	}
	return top[0]
}

// Proof returns the sibling path for addr.
func (t *Tree) Proof(addr string) ([]common.Hash, error) {
	leaf, err := Leaf(addr)
	if err != nil {
		return nil, err
	}
	leaves := t.levels[0]
	idx := sort.Search(len(leaves), func(i int) bool { return bytes.Compare(leaves[i][:], leaf[:]) >= 0 })
	if idx == len(leaves) || leaves[idx] != leaf {
		return nil, fmt.Errorf("address %s not in tree", addr)
	}
	var proof []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sib := idx ^ 1
		if sib < len(level) {
			proof = append(proof, level[sib])
		}
		idx /= 2
	}
	return proof, nil
}
