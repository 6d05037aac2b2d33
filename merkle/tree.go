// Package merkle implements the commitment scheme for the final
// distribution: a binary Merkle tree over keccak-hashed claim leaves with
// logarithmic-size membership proofs.
//
// The construction is deliberately order-insensitive: the leaf hash set is
// deduplicated and sorted before any layer is built, so the same claim set
// always produces the same root regardless of insertion order. Parents are
// computed as keccak(sort(a, b)), i.e. the two children are byte-compared
// and concatenated smaller-first before hashing. Sorting the pair makes the
// parent independent of left/right position, which keeps proofs to a flat
// list of sibling hashes with no direction bits. The trade-off: a proof only
// establishes "this leaf was paired with sibling S", not on which side S
// sat. The on-chain verifier applies the same sorted-pair rule, so the two
// sides stay compatible.
//
// An odd trailing element in a layer is carried up unchanged, not hashed
// with itself. External verifiers must reproduce this tie-break exactly or
// roots will diverge.
package merkle

import (
	"bytes"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownLeaf is returned when a proof is requested for a leaf hash that
// is not part of the tree.
var ErrUnknownLeaf = errors.New("merkle: leaf not in tree")

// Tree is an immutable Merkle tree built once from a finite leaf hash set.
// Proofs are pure read queries against the built layers.
type Tree struct {
	elements []common.Hash // deduplicated, sorted leaf hashes
	index    map[common.Hash]int
	layers   [][]common.Hash // layers[0] = leaves, last layer = [root]
}

// NewTree builds a tree from the given leaf hashes. Duplicates are dropped
// and the remaining hashes sorted, yielding a canonical tree for the set.
func NewTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.New("merkle: no leaves")
	}

	seen := make(map[common.Hash]bool, len(leaves))
	elements := make([]common.Hash, 0, len(leaves))
	for _, h := range leaves {
		if !seen[h] {
			seen[h] = true
			elements = append(elements, h)
		}
	}
	sort.Slice(elements, func(i, j int) bool {
		return bytes.Compare(elements[i][:], elements[j][:]) < 0
	})

	index := make(map[common.Hash]int, len(elements))
	for i, h := range elements {
		index[h] = i
	}

	layers := [][]common.Hash{elements}
	for len(layers[len(layers)-1]) > 1 {
		layers = append(layers, nextLayer(layers[len(layers)-1]))
	}

	return &Tree{elements: elements, index: index, layers: layers}, nil
}

// nextLayer pairs adjacent elements; an unpaired final element is promoted
// unchanged.
func nextLayer(layer []common.Hash) []common.Hash {
	next := make([]common.Hash, 0, (len(layer)+1)/2)
	for i := 0; i < len(layer); i += 2 {
		if i+1 < len(layer) {
			next = append(next, hashPair(layer[i], layer[i+1]))
		} else {
			next = append(next, layer[i])
		}
	}
	return next
}

// hashPair hashes two sibling nodes, smaller byte sequence first.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return Keccak256Hash(a[:], b[:])
}

// Root returns the tree root, the sole element of the top layer.
func (t *Tree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Len returns the number of distinct leaves committed to.
func (t *Tree) Len() int {
	return len(t.elements)
}

// Proof returns the sibling hashes from the leaf layer to the root for the
// given leaf hash. A layer where the element was carried up without a
// sibling contributes nothing.
func (t *Tree) Proof(leaf common.Hash) ([]common.Hash, error) {
	idx, ok := t.index[leaf]
	if !ok {
		return nil, ErrUnknownLeaf
	}

	var proof []common.Hash
	for _, layer := range t.layers {
		sib := idx ^ 1
		if sib < len(layer) {
			proof = append(proof, layer[sib])
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyProof walks a proof from the leaf hash using the sorted-pair rule
// and reports whether it reproduces the root.
func VerifyProof(root, leaf common.Hash, proof []common.Hash) bool {
	node := leaf
	for _, sib := range proof {
		node = hashPair(node, sib)
	}
	return node == root
}
