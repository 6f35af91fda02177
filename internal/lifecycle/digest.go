// Package lifecycle implements the Lifecycle Engine (spec §4.4-§4.5): the
// send pass that turns Created/ResendAndBumpGas records into broadcast
// transactions, and the reconciliation pass that turns broadcast hashes into
// Confirmed/Failed terminal states.
package lifecycle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

var encodeRaw = model.EncodeRawTransaction
var decodeRaw = model.DecodeRawTransaction

func chainIDBig(chainID uint64) *big.Int {
	return new(big.Int).SetUint64(chainID)
}

// toEthTx converts a RawTransaction into the go-ethereum legacy transaction
// type used to compute the EIP-155 signing digest and, once signed, the
// bytes actually broadcast.
func toEthTx(raw *model.RawTransaction) *types.Transaction {
	return types.NewTransaction(raw.Nonce.Uint64(), *raw.To, raw.Value, raw.Gas.Uint64(), raw.GasPrice, raw.Data)
}

// signingDigest is the Keccak-256 of the EIP-155 RLP encoding the Signer
// must sign (spec §6). go-ethereum's EIP155Signer computes exactly this
// digest, so it is reused instead of hand-rolling RLP + Keccak256.
func signingDigest(raw *model.RawTransaction, chainID uint64) []byte {
	tx := toEthTx(raw)
	signer := types.NewEIP155Signer(chainIDBig(chainID))
	return signer.Hash(tx).Bytes()
}

// applySignature combines a RawTransaction with an externally produced
// 65-byte (r, s, v) signature into a signed, broadcast-ready transaction.
func applySignature(raw *model.RawTransaction, chainID uint64, sig []byte) (*types.Transaction, error) {
	tx := toEthTx(raw)
	signer := types.NewEIP155Signer(chainIDBig(chainID))
	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return nil, model.WrapDriverError("apply signature", err)
	}
	return signed, nil
}
