package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// maxPackedAmount is 2^96 - 1: the packed word only has 12 bytes for the
// amount, so anything above this does not round-trip (invariant 7,
// spec §8). Computed with uint256 rather than math/big since it is itself a
// 256-bit wire quantity, the same type the packed word's amount field is.
var maxPackedAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 96), uint256.NewInt(1))

// packWord bit-packs (recipient, amount) into a single 32-byte word:
// word[0:20] = recipient, word[20:32] = amount big-endian. A negative amount
// or one at or above 2^96 is rejected with an error; this is the wire format
// golemTransferDirectPacked/golemTransferIndirectPacked expect (spec §6).
func packWord(recipient common.Address, amount *big.Int) ([32]byte, error) {
	var word [32]byte
	if amount.Sign() < 0 {
		return word, fmt.Errorf("amount %s does not fit in 96 bits", amount)
	}
	u, overflow := uint256.FromBig(amount)
	if overflow || u.Cmp(maxPackedAmount) > 0 {
		return word, fmt.Errorf("amount %s does not fit in 96 bits", amount)
	}
	copy(word[:20], recipient[:])
	full := u.Bytes32()
	copy(word[20:32], full[20:32])
	return word, nil
}

// unpackWord is the inverse of packWord, used by tests to check the
// round-trip invariant.
func unpackWord(word [32]byte) (common.Address, *big.Int) {
	var recipient common.Address
	copy(recipient[:], word[:20])
	amount := new(uint256.Int).SetBytes(word[20:32]).ToBig()
	return recipient, amount
}
