package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Claim is one holder's entry in the distribution: its leaf index, the
// claimable amount and the inclusion proof from leaf to root.
type Claim struct {
	Index  uint64        `json:"index"`
	Amount *hexutil.Big  `json:"amount"`
	Proof  []common.Hash `json:"proof"`
}

// Distribution is the final persisted artifact consumed by the distributor
// contract deployment: the committed root, the total claimable amount and
// the per-holder claim records.
type Distribution struct {
	MerkleRoot common.Hash              `json:"merkleRoot"`
	TokenTotal *hexutil.Big             `json:"tokenTotal"`
	Claims     map[common.Address]Claim `json:"claims"`
}

// PackLeaf encodes (index, holder, amount) the way the distributor contract
// hashes claims: abi.encodePacked(uint256, address, uint256), 84 bytes.
// Amounts outside the uint256 range cannot be claimed on-chain and are
// rejected rather than truncated.
func PackLeaf(index uint64, holder common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("merkle: invalid claim amount for %s", holder)
	}
	amt, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("merkle: claim amount for %s overflows uint256", holder)
	}
	idx := uint256.NewInt(index).Bytes32()
	val := amt.Bytes32()

	leaf := make([]byte, 0, 84)
	leaf = append(leaf, idx[:]...)
	leaf = append(leaf, holder.Bytes()...)
	leaf = append(leaf, val[:]...)
	return leaf, nil
}

// BuildDistribution assigns every holder a stable leaf index, commits the
// claim set into a Merkle tree and generates one inclusion proof per holder.
//
// Index order is deterministic: descending amount, ties broken by ascending
// address. The index doubles as the leaf discriminator, so two holders with
// equal amounts still hash to distinct leaves.
func BuildDistribution(allocations map[common.Address]*big.Int) (*Distribution, error) {
	if len(allocations) == 0 {
		return nil, errors.New("merkle: empty allocation table")
	}

	holders := make([]common.Address, 0, len(allocations))
	for holder := range allocations {
		holders = append(holders, holder)
	}
	sort.Slice(holders, func(i, j int) bool {
		cmp := allocations[holders[i]].Cmp(allocations[holders[j]])
		if cmp != 0 {
			return cmp > 0
		}
		return bytes.Compare(holders[i][:], holders[j][:]) < 0
	})

	leaves := make([]common.Hash, len(holders))
	total := new(big.Int)
	for i, holder := range holders {
		packed, err := PackLeaf(uint64(i), holder, allocations[holder])
		if err != nil {
			return nil, err
		}
		leaves[i] = Keccak256Hash(packed)
		total.Add(total, allocations[holder])
	}

	tree, err := NewTree(leaves)
	if err != nil {
		return nil, err
	}

	claims := make(map[common.Address]Claim, len(holders))
	for i, holder := range holders {
		proof, err := tree.Proof(leaves[i])
		if err != nil {
			return nil, fmt.Errorf("merkle: proof for %s: %w", holder, err)
		}
		claims[holder] = Claim{
			Index:  uint64(i),
			Amount: (*hexutil.Big)(allocations[holder]),
			Proof:  proof,
		}
	}

	return &Distribution{
		MerkleRoot: tree.Root(),
		TokenTotal: (*hexutil.Big)(total),
		Claims:     claims,
	}, nil
}
