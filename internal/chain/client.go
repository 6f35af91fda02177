// Package chain provides the ChainClient abstraction over a single
// Ethereum-family JSON-RPC endpoint, and a process-wide pool that memoizes
// one client per RPC URL (spec §4.6, §9).
package chain

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client captures exactly the ethclient.Client methods the driver needs.
// *ethclient.Client satisfies this interface; tests substitute a narrower
// mock, the same shape every geth-edu exercise interface takes.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// Dialer opens a Client for a given RPC URL. Production wiring passes
// ethclient.DialContext; tests pass a constructor returning a fake.
type Dialer func(ctx context.Context, rpcURL string) (Client, error)
