package gasprice

import (
	"math/big"
)

// Priority selects which Polygon-family gas-price rung to start from.
// Rungs are expressed in gwei, matching the original driver's constants
// exactly (a zero-index placeholder keeps parity with the Rust arrays,
// where index 0 is never selected as a starting price).
type Priority int

const (
	Slow Priority = iota
	Fast
	Express
)

// Method picks between the static priority ladder and the dynamic,
// percentage-bumped sidechain gas model.
type Method int

const (
	Dynamic Method = iota
	Static
)

var (
	laddersSlow    = []float64{0.0, 10.01, 15.01, 20.01, 25.01, 30.01}
	laddersFast    = []float64{0.0, 30.01, 40.01}
	laddersExpress = []float64{0.0, 60.01, 100.01}
)

func ladder(p Priority) []float64 {
	switch p {
	case Fast:
		return laddersFast
	case Express:
		return laddersExpress
	default:
		return laddersSlow
	}
}

// ParsePriority maps an env-var value ("slow", "fast", "express") onto a
// Priority, defaulting to Slow for anything unrecognized (spec §6).
func ParsePriority(s string) Priority {
	switch s {
	case "fast":
		return Fast
	case "express":
		return Express
	default:
		return Slow
	}
}

// ParseMethod maps an env-var value ("static", "dynamic") onto a Method,
// defaulting to Dynamic (spec §6).
func ParseMethod(s string) Method {
	if s == "static" {
		return Static
	}
	return Dynamic
}

func (p Priority) String() string {
	switch p {
	case Fast:
		return "fast"
	case Express:
		return "express"
	default:
		return "slow"
	}
}

// gweiFloatToWei converts a gwei float constant from the ladder to an
// integer wei value. The ladder constants all have at most 2 decimal
// digits, so scaling by 1e9 (gwei to wei) before truncating keeps full
// precision.
func gweiFloatToWei(gwei float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9))
	wei, _ := scaled.Int(nil)
	return wei
}

// StartingPrice returns the priority tier's starting wei price: rung index
// 1 of the ladder (index 0 is a zero placeholder never used as a start).
func StartingPrice(p Priority) *big.Int {
	return gweiFloatToWei(ladder(p)[1])
}

// MaximumPrice returns the priority tier's ceiling wei price: the highest
// rung on the ladder.
func MaximumPrice(p Priority) *big.Int {
	l := ladder(p)
	return gweiFloatToWei(l[len(l)-1])
}

// NextRungAbove returns the smallest ladder rung strictly greater than
// floor, or nil if floor is at or above the highest rung.
func NextRungAbove(p Priority, floor *big.Int) *big.Int {
	for _, gwei := range ladder(p) {
		if gwei == 0 {
			continue
		}
		rung := gweiFloatToWei(gwei)
		if rung.Cmp(floor) > 0 {
			return rung
		}
	}
	return nil
}

func (m Method) String() string {
	if m == Static {
		return "static"
	}
	return "dynamic"
}
