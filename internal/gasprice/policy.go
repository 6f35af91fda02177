// Package gasprice implements the driver's legacy gas-price policy: the
// initial price on first broadcast, and the mandatory bump price on resend
// (spec §4.2). There is no EIP-1559 fee market here by design (spec §1).
package gasprice

import (
	"math/big"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

var (
	queueJumperDivisor   = big.NewInt(1000) // node_price/1000 > 1000 gates the bump
	queueJumperBumpWei   = big.NewInt(1000)
	rinkebyMultiplierNum = big.NewInt(1200)
	rinkebyMultiplierDen = big.NewInt(1000)
	bumpFloorNum         = big.NewInt(111)
	bumpFloorDen         = big.NewInt(100)
)

// Policy resolves gas prices for a single network, under a fixed sidechain
// Method/Priority configuration (read once from the environment at
// startup — spec §6).
type Policy struct {
	Network  model.Network
	Method   Method
	Priority Priority
}

// adjustNodePrice applies the flat queue-jumper bump and, on Rinkeby, the
// 20% testnet multiplier — in that order, matching the original driver's
// prepare_erc20_transfer (queue-jumper bump happens on the raw node price
// before the testnet multiplier is applied).
func adjustNodePrice(network model.Network, nodePrice *big.Int) *big.Int {
	price := new(big.Int).Set(nodePrice)

	quotient := new(big.Int).Div(price, queueJumperDivisor)
	if quotient.Cmp(queueJumperDivisor) > 0 {
		price.Add(price, queueJumperBumpWei)
	}

	if network == model.Rinkeby {
		price.Mul(price, rinkebyMultiplierNum)
		price.Div(price, rinkebyMultiplierDen)
	}

	return price
}

// InitialPrice computes the gas price to use on a record's first broadcast.
//
// On non-sidechain networks it is max(adjusted node price, starting gas
// price on the record), capped by maxGasPrice when set. On the Polygon
// sidechain, static and dynamic mode both start from the configured
// priority tier's ladder rung (dynamic mode's ceiling lives in maxGasPrice
// instead of the ladder's top rung).
func (p Policy) InitialPrice(nodePrice, startingGasPrice, maxGasPrice *big.Int) *big.Int {
	if p.Network.IsSidechain() {
		price := StartingPrice(p.Priority)
		if maxGasPrice != nil && price.Cmp(maxGasPrice) > 0 {
			return new(big.Int).Set(maxGasPrice)
		}
		return price
	}

	adjusted := adjustNodePrice(p.Network, nodePrice)
	price := adjusted
	if startingGasPrice != nil && startingGasPrice.Cmp(price) > 0 {
		price = new(big.Int).Set(startingGasPrice)
	}
	if maxGasPrice != nil && price.Cmp(maxGasPrice) > 0 {
		price = new(big.Int).Set(maxGasPrice)
	}
	return price
}

// bumpFloor returns ceil(previous * 1.11): the minimum new price a node
// will accept as a replacement for previous (spec §4.2, invariant 4 §8).
func bumpFloor(previous *big.Int) *big.Int {
	num := new(big.Int).Mul(previous, bumpFloorNum)
	floor := new(big.Int).Div(num, bumpFloorDen)
	rem := new(big.Int).Mod(num, bumpFloorDen)
	if rem.Sign() != 0 {
		floor.Add(floor, big.NewInt(1))
	}
	return floor
}

// BumpPrice computes the next gas price for a ResendAndBumpGas tick.
//
// The 11% floor always applies first. In static sidechain mode the result
// rounds up to the next ladder rung above that floor, falling back to the
// floor itself once above the highest rung. In dynamic mode (and on every
// non-sidechain network) maxGasPrice is honored only when it does not
// violate the floor — correctness (guaranteed node acceptance) beats
// budget.
func (p Policy) BumpPrice(previous *big.Int) *big.Int {
	floor := bumpFloor(previous)

	if p.Network.IsSidechain() && p.Method == Static {
		if rung := NextRungAbove(p.Priority, floor); rung != nil {
			return rung
		}
		return floor
	}

	return floor
}
