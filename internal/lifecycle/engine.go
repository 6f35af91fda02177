package lifecycle

import (
	"context"
	"encoding/hex"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/shopspring/decimal"

	"github.com/Atlas16A/yagna-erc20-driver/internal/dao"
	"github.com/Atlas16A/yagna-erc20-driver/internal/gasprice"
	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
	"github.com/Atlas16A/yagna-erc20-driver/internal/rpcerr"
	"github.com/Atlas16A/yagna-erc20-driver/internal/signer"
)

// ChainClient is the subset of chain.Client the lifecycle engine needs.
type ChainClient interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Engine drives send passes and reconciliation passes for a single network.
type Engine struct {
	Store   dao.Persistence
	Signer  signer.Signer
	Chain   ChainClient
	Policy  gasprice.Policy
	Network model.NetworkConfig
}

// SendPass processes every Created or ResendAndBumpGas record for the
// engine's network in ascending (sender, nonce) order, enforcing per-sender gas-price
// monotonicity within the pass (spec §5, invariant 3, scenario S5).
func (e *Engine) SendPass(ctx context.Context) error {
	records, err := e.Store.ListUnfinished(ctx, e.Network.Network)
	if err != nil {
		return err
	}

	lastPricePerSender := make(map[string]*big.Int)

	for _, rec := range records {
		if rec.Status != model.Created && rec.Status != model.ResendAndBumpGas {
			continue
		}

		price, err := e.resolvePrice(ctx, rec)
		if err != nil {
			log.Warn("resolve gas price failed", "tx_id", rec.TxID, "err", err)
			continue
		}

		if floor, ok := lastPricePerSender[rec.Sender]; ok && price.Cmp(floor) < 0 {
			log.Debug("skipping send to preserve batch monotonicity", "tx_id", rec.TxID, "price", price, "floor", floor)
			continue
		}

		if err := e.ensureGasAffordable(ctx, rec, price); err != nil {
			log.Warn("insufficient native balance for gas, deferring", "tx_id", rec.TxID, "err", err)
			continue
		}
		lastPricePerSender[rec.Sender] = price

		if err := e.sendOne(ctx, rec, price); err != nil {
			log.Warn("send tick failed", "tx_id", rec.TxID, "err", err)
		}
	}

	return nil
}

// ensureGasAffordable checks gas_limit*price against the sender's current
// native balance (spec §7's Insufficient-balance class, recovered from the
// original driver's has_enough_eth_for_gas): a send pass defers rather than
// fails the record outright, since the balance may be topped up before the
// next tick.
func (e *Engine) ensureGasAffordable(ctx context.Context, rec *model.TransactionRecord, price *big.Int) error {
	cost := new(big.Int).Mul(price, new(big.Int).SetUint64(rec.GasLimit))
	balance, err := e.Chain.BalanceAt(ctx, common.HexToAddress(rec.Sender), nil)
	if err != nil {
		return model.WrapDriverError("balance for gas affordability check", err)
	}
	if cost.Cmp(balance) > 0 {
		return model.NewDriverError("not enough native balance for gas")
	}
	return nil
}

func (e *Engine) resolvePrice(ctx context.Context, rec *model.TransactionRecord) (*big.Int, error) {
	if rec.Status == model.ResendAndBumpGas {
		previous := rec.StartingGasPrice
		if rec.CurrentGasPrice != nil {
			previous = *rec.CurrentGasPrice
		}
		return e.Policy.BumpPrice(previous.BigInt()), nil
	}

	nodePrice, err := e.Chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, model.WrapDriverError("suggest gas price", err)
	}
	var maxPrice *big.Int
	if rec.MaxGasPrice != nil {
		maxPrice = rec.MaxGasPrice.BigInt()
	}
	return e.Policy.InitialPrice(nodePrice, rec.StartingGasPrice.BigInt(), maxPrice), nil
}

// sendOne re-serializes rec at price, signs it, persists it
// (durability-before-effect, invariant 5), and broadcasts it.
func (e *Engine) sendOne(ctx context.Context, rec *model.TransactionRecord, price *big.Int) error {
	raw, err := decodeRaw(rec.Encoded)
	if err != nil {
		return e.failCorrupted(ctx, rec, err)
	}
	raw.GasPrice = price

	encoded, err := encodeRaw(raw)
	if err != nil {
		return e.failCorrupted(ctx, rec, err)
	}

	priceDecimal := decimal.NewFromBigInt(price, 0)
	digest := signingDigest(raw, e.Network.ChainID)
	sig, err := e.Signer.Sign(ctx, common.HexToAddress(rec.Sender), digest)
	if err != nil {
		return model.WrapDriverError("sign transaction", err)
	}

	if err := e.Store.UpdateTxFields(ctx, rec.TxID, encoded, hex.EncodeToString(sig), priceDecimal); err != nil {
		return err
	}

	signedTx, err := applySignature(raw, e.Network.ChainID, sig)
	if err != nil {
		return err
	}

	if err := e.Chain.SendTransaction(ctx, signedTx); err != nil {
		return e.handleBroadcastError(ctx, rec, priceDecimal, err)
	}

	hash := signedTx.Hash().Hex()
	if err := e.Store.TransactionSent(ctx, rec.TxID, hash, priceDecimal); err != nil {
		return err
	}
	log.Info("transaction broadcast", "tx_id", rec.TxID, "hash", hash, "gas_price", price)
	return nil
}

// handleBroadcastError classifies the broadcast error and performs the
// transition spec §7 assigns to its class.
func (e *Engine) handleBroadcastError(ctx context.Context, rec *model.TransactionRecord, priceDecimal decimal.Decimal, broadcastErr error) error {
	switch rpcerr.Classify(broadcastErr) {
	case rpcerr.ClassNonceTooLow:
		return e.Store.TransactionFailedWithNonceTooLow(ctx, rec.TxID, broadcastErr.Error())
	case rpcerr.ClassAlreadyKnown:
		return e.Store.RetrySendTransaction(ctx, rec.TxID, priceDecimal)
	default:
		return e.Store.TransactionFailedSend(ctx, rec.TxID, rec.ResentTimes+1, broadcastErr.Error())
	}
}

func (e *Engine) failCorrupted(ctx context.Context, rec *model.TransactionRecord, cause error) error {
	const corruptMsg = "encoded transaction is corrupt"
	log.Error(corruptMsg, "tx_id", rec.TxID, "err", cause)
	return e.Store.TransactionFailedSend(ctx, rec.TxID, rec.ResentTimes, corruptMsg)
}
