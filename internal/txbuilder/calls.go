package txbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// PackBalanceOf encodes a balanceOf(owner) eth_call.
func PackBalanceOf(owner common.Address) ([]byte, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, model.WrapDriverError("encode balanceOf", err)
	}
	return data, nil
}

// PackAllowance encodes an allowance(owner, spender) eth_call.
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, model.WrapDriverError("encode allowance", err)
	}
	return data, nil
}

// UnpackUint256 decodes a single uint256 return value, the shape both
// balanceOf and allowance return.
func UnpackUint256(data []byte) (*big.Int, error) {
	values, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, model.WrapDriverError("decode uint256 result", err)
	}
	if len(values) != 1 {
		return nil, model.NewDriverError("expected a single uint256 return value")
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, model.NewDriverError("uint256 return value has unexpected type")
	}
	return amount, nil
}
