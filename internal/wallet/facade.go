// Package wallet implements the Wallet Facade (spec §4.4): balance queries,
// wallet initialization (approval bootstrapping), and TransactionRecord
// creation on behalf of an external orchestrator.
package wallet

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Atlas16A/yagna-erc20-driver/internal/dao"
	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
	"github.com/Atlas16A/yagna-erc20-driver/internal/nonce"
	"github.com/Atlas16A/yagna-erc20-driver/internal/txbuilder"
)

const (
	approvalGrace    = 30 * time.Second
	approvalInterval = 10 * time.Second
	approvalTimeout  = 500 * time.Second
)

// ChainClient is the subset of chain.Client the facade needs for balance and
// allowance reads.
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Sleeper abstracts the approval poll's waits so tests don't block on real
// time; production wiring uses ContextSleep.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep waits for d or ctx cancellation, whichever comes first.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Facade is the per-network entry point an orchestrator calls into.
type Facade struct {
	Chain   ChainClient
	Nonce   *nonce.Manager
	Builder *txbuilder.Builder
	Store   dao.Persistence
	Network model.NetworkConfig
	Sleep   Sleeper
}

// New builds a Facade with a real ContextSleep; tests replace Sleep with a
// faster Sleeper.
func New(chain ChainClient, nonceMgr *nonce.Manager, builder *txbuilder.Builder, store dao.Persistence, network model.NetworkConfig) *Facade {
	return &Facade{Chain: chain, Nonce: nonceMgr, Builder: builder, Store: store, Network: network, Sleep: ContextSleep}
}

func (f *Facade) tokenAddress() common.Address {
	return common.HexToAddress(f.Network.TokenContractAddress)
}

// NativeBalance returns owner's native-currency balance (for paying gas).
func (f *Facade) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := f.Chain.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, model.WrapDriverError("native balance", err)
	}
	return bal, nil
}

// TokenBalance returns owner's ERC20 token balance.
func (f *Facade) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := txbuilder.PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	to := f.tokenAddress()
	result, err := f.Chain.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, model.WrapDriverError("call balanceOf", err)
	}
	return txbuilder.UnpackUint256(result)
}

// Allowance returns the multi-transfer contract's current spending
// allowance over owner's tokens.
func (f *Facade) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if f.Network.MultiTransferContract == nil {
		return nil, model.NewDriverError("network has no multi-transfer contract configured")
	}
	spender := common.HexToAddress(*f.Network.MultiTransferContract)
	data, err := txbuilder.PackAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	to := f.tokenAddress()
	result, err := f.Chain.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, model.WrapDriverError("call allowance", err)
	}
	return txbuilder.UnpackUint256(result)
}

var halfMaxUint256 = new(big.Int).Rsh(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 1)

// Init bootstraps SEND-mode usage of owner's account (spec §4.4): it rejects
// accounts that cannot possibly pay, and ensures the multi-transfer contract
// holds a practically-unlimited allowance before returning.
func (f *Facade) Init(ctx context.Context, owner common.Address) error {
	tokenBal, err := f.TokenBalance(ctx, owner)
	if err != nil {
		return err
	}
	if tokenBal.Sign() == 0 {
		return model.NewDriverError("zero token balance")
	}

	nativeBal, err := f.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}
	if nativeBal.Sign() == 0 {
		return model.NewDriverError("zero native balance: cannot pay gas")
	}

	allowance, err := f.Allowance(ctx, owner)
	if err != nil {
		return err
	}
	if allowance.Cmp(halfMaxUint256) >= 0 {
		return nil
	}

	if _, err := f.MakeApprove(ctx, owner); err != nil {
		return err
	}
	return f.pollAllowance(ctx, owner)
}

func (f *Facade) sleep() Sleeper {
	if f.Sleep != nil {
		return f.Sleep
	}
	return ContextSleep
}

func (f *Facade) pollAllowance(ctx context.Context, owner common.Address) error {
	sleep := f.sleep()
	if err := sleep(ctx, approvalGrace); err != nil {
		return model.WrapDriverError("approval grace wait", err)
	}

	elapsed := approvalGrace
	for elapsed < approvalTimeout {
		allowance, err := f.Allowance(ctx, owner)
		if err != nil {
			return err
		}
		if allowance.Cmp(halfMaxUint256) >= 0 {
			return nil
		}
		if err := sleep(ctx, approvalInterval); err != nil {
			return model.WrapDriverError("approval poll wait", err)
		}
		elapsed += approvalInterval
	}

	log.Warn("approval poll timed out, proceeding anyway", "owner", owner.Hex())
	return nil
}

// newRecord fills in the fields every TxType shares.
func newRecord(txID, sender string, nonceVal uint64, raw *model.RawTransaction, amountBaseUnits *big.Int, txType model.TxType, network model.Network) (*model.TransactionRecord, error) {
	encoded, err := model.EncodeRawTransaction(raw)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &model.TransactionRecord{
		TxID:             txID,
		Sender:           sender,
		Nonce:            nonceVal,
		CreatedAt:        now,
		LastActionAt:     now,
		StartingGasPrice: decimal.NewFromBigInt(raw.GasPrice, 0),
		GasLimit:         raw.Gas.Uint64(),
		AmountBaseUnits:  amountBaseUnits,
		Encoded:          encoded,
		Status:           model.Created,
		TxType:           txType,
		Network:          network,
	}, nil
}

// MakeTransfer resolves a nonce, builds a transfer, and persists a Created
// record for the lifecycle engine to pick up.
func (f *Facade) MakeTransfer(ctx context.Context, sender, recipient common.Address, amount *big.Int, maxGasPrice *big.Int) (*model.TransactionRecord, error) {
	n, err := f.Nonce.Next(ctx, sender, f.Network.Network)
	if err != nil {
		return nil, err
	}
	raw, err := f.Builder.Transfer(ctx, n, recipient, amount, nil, maxGasPrice)
	if err != nil {
		return nil, err
	}
	rec, err := newRecord(uuid.NewString(), sender.Hex(), n, raw, amount, model.Transfer, f.Network.Network)
	if err != nil {
		return nil, err
	}
	if err := f.Store.InsertRawTransaction(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MakeMultiTransfer resolves a nonce, builds a multi-transfer, and persists
// a Created record.
func (f *Facade) MakeMultiTransfer(ctx context.Context, sender common.Address, recipients []common.Address, amounts []*big.Int, maxGasPrice *big.Int) (*model.TransactionRecord, error) {
	n, err := f.Nonce.Next(ctx, sender, f.Network.Network)
	if err != nil {
		return nil, err
	}
	raw, err := f.Builder.MultiTransfer(ctx, n, sender, recipients, amounts, nil, maxGasPrice)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a)
	}
	rec, err := newRecord(uuid.NewString(), sender.Hex(), n, raw, total, model.MultiTransfer, f.Network.Network)
	if err != nil {
		return nil, err
	}
	if err := f.Store.InsertRawTransaction(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MakeApprove resolves a nonce, builds an Approve transaction, and persists
// a Created record.
func (f *Facade) MakeApprove(ctx context.Context, sender common.Address) (*model.TransactionRecord, error) {
	n, err := f.Nonce.Next(ctx, sender, f.Network.Network)
	if err != nil {
		return nil, err
	}
	raw, err := f.Builder.Approve(ctx, n)
	if err != nil {
		return nil, err
	}
	rec, err := newRecord(uuid.NewString(), sender.Hex(), n, raw, big.NewInt(0), model.Approve, f.Network.Network)
	if err != nil {
		return nil, err
	}
	if err := f.Store.InsertRawTransaction(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Fund requests a faucet drip on a testnet. Mainnet has no faucet and must
// never be asked for one (a recovered guard from the original driver).
func (f *Facade) Fund(ctx context.Context, sender common.Address) (*model.TransactionRecord, error) {
	if f.Network.Network == model.Mainnet {
		return nil, model.NewDriverError("faucet requests are not permitted on mainnet")
	}
	n, err := f.Nonce.Next(ctx, sender, f.Network.Network)
	if err != nil {
		return nil, err
	}
	raw, err := f.Builder.Faucet(ctx, n)
	if err != nil {
		return nil, err
	}
	rec, err := newRecord(uuid.NewString(), sender.Hex(), n, raw, big.NewInt(0), model.Faucet, f.Network.Network)
	if err != nil {
		return nil, err
	}
	if err := f.Store.InsertRawTransaction(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
