package lifecycle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// Reconcile checks every broadcast-but-not-yet-terminal record against the
// chain and advances it to Confirmed/Failed once enough confirmations have
// accumulated (spec §4.5). Re-running on an already-Confirmed record is a
// no-op because ListUnfinished never returns terminal records (invariant 8).
func (e *Engine) Reconcile(ctx context.Context) error {
	records, err := e.Store.ListUnfinished(ctx, e.Network.Network)
	if err != nil {
		return err
	}

	currentBlock, err := e.Chain.BlockNumber(ctx)
	if err != nil {
		return model.WrapDriverError("block number", err)
	}

	for _, rec := range records {
		hashes := rec.OnchainHashes()
		if len(hashes) == 0 {
			continue
		}
		if err := e.reconcileOne(ctx, rec, hashes, currentBlock); err != nil {
			log.Warn("reconcile tick failed", "tx_id", rec.TxID, "err", err)
		}
	}
	return nil
}

// reconcileOne checks hashes most-recent-first: the latest broadcast is the
// one most likely to have landed, but an earlier replaced hash can still be
// the one a node actually mined (scenario S4).
func (e *Engine) reconcileOne(ctx context.Context, rec *model.TransactionRecord, hashes []string, currentBlock uint64) error {
	for i := len(hashes) - 1; i >= 0; i-- {
		hash := hashes[i]
		receipt, err := e.Chain.TransactionReceipt(ctx, common.HexToHash(hash))
		if err != nil {
			continue // not found yet, or transient RPC error: try next tick
		}

		confirmations := confirmationsFor(receipt, currentBlock)
		if confirmations < e.Network.RequiredConfirmations {
			continue
		}

		if receipt.Status == types.ReceiptStatusSuccessful {
			return e.Store.TransactionConfirmed(ctx, rec.TxID, hash, receipt.GasUsed)
		}
		return e.Store.TransactionConfirmedAndFailed(ctx, rec.TxID, hash, receipt.GasUsed, "transaction reverted on-chain")
	}
	return nil
}

func confirmationsFor(receipt *types.Receipt, currentBlock uint64) uint64 {
	if receipt.BlockNumber == nil {
		return 0
	}
	landed := receipt.BlockNumber.Uint64()
	if currentBlock < landed {
		return 0
	}
	return currentBlock - landed + 1
}
