package snapshot

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// callABI covers every contract call the pipeline issues: the bonding-curve
// valuation oracle, the supply probe behind the archive-node check and the
// two pool-shape probes. Only packing and unpacking happen locally, so one
// combined ABI serves all target contracts.
const callABIJSON = `[
  {"type":"function","name":"calculateContinuousBurnReturn","stateMutability":"view","inputs":[{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"factory","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getColor","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]}
]`

var callABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(callABIJSON))
	if err != nil {
		panic(fmt.Sprintf("snapshot: parse call ABI: %v", err))
	}
	callABI = parsed
}

// mustPack packs call data for a method whose arguments are known valid.
func mustPack(method string, args ...any) []byte {
	data, err := callABI.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("snapshot: pack %s: %v", method, err))
	}
	return data
}

func burnReturnData(amount *big.Int) []byte {
	return mustPack("calculateContinuousBurnReturn", amount)
}

func totalSupplyData() []byte {
	return mustPack("totalSupply")
}

func factoryData() []byte {
	return mustPack("factory")
}

func getColorData() []byte {
	return mustPack("getColor")
}

func unpackUint(method string, data []byte) (*big.Int, error) {
	out, err := callABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: unpack %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("snapshot: unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

func unpackAddress(method string, data []byte) (common.Address, error) {
	out, err := callABI.Unpack(method, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("snapshot: unpack %s: %w", method, err)
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("snapshot: unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

func unpackBytes32(method string, data []byte) ([32]byte, error) {
	out, err := callABI.Unpack(method, data)
	if err != nil {
		return [32]byte{}, fmt.Errorf("snapshot: unpack %s: %w", method, err)
	}
	v, ok := out[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("snapshot: unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}
