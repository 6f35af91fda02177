// Package txbuilder constructs RawTransactions for the four operations the
// driver supports: transfer, multi-transfer, approve, and faucet (spec
// §4.3).
package txbuilder

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Atlas16A/yagna-erc20-driver/internal/gasprice"
	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

const (
	transferGasLimit         = 55_000
	transferGasLimitSidechain = 100_000
	approveGasLimit          = 200_000
	faucetGasLimit           = 90_000
	multiTransferGasMargin   = 20_000
)

// gasMultiplierNum/Den give gas_price = node.gas_price * 1.5, shared by
// Approve and Faucet (spec §4.3).
var (
	gasMultiplierNum = big.NewInt(15)
	gasMultiplierDen = big.NewInt(10)
)

// ChainClient is the subset of chain.Client the builder needs.
type ChainClient interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// Builder constructs RawTransactions against a single network's token,
// multi-transfer, and faucet contracts.
type Builder struct {
	Chain   ChainClient
	Network model.NetworkConfig
	Policy  gasprice.Policy
}

func (b *Builder) tokenAddress() common.Address {
	return common.HexToAddress(b.Network.TokenContractAddress)
}

// Transfer builds a transfer(recipient, amount) call against the token
// contract.
func (b *Builder) Transfer(ctx context.Context, nonce uint64, recipient common.Address, amount, startingGasPrice, maxGasPrice *big.Int) (*model.RawTransaction, error) {
	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, model.WrapDriverError("encode transfer", err)
	}

	gasPrice, err := b.resolveLegacyGasPrice(ctx, startingGasPrice, maxGasPrice)
	if err != nil {
		return nil, err
	}

	gasLimit := uint64(transferGasLimit)
	if b.Network.Network.IsSidechain() {
		gasLimit = transferGasLimitSidechain
	}

	to := b.tokenAddress()
	return &model.RawTransaction{
		Nonce:    new(big.Int).SetUint64(nonce),
		To:       &to,
		Value:    big.NewInt(0),
		GasPrice: gasPrice,
		Gas:      new(big.Int).SetUint64(gasLimit),
		Data:     data,
	}, nil
}

// MultiTransfer builds a golemTransferDirectPacked/golemTransferIndirectPacked
// call, selecting the method by nonce parity (spec §4.3, §9: an intentional
// A/B selector, not a load-balancing optimization).
func (b *Builder) MultiTransfer(ctx context.Context, nonce uint64, from common.Address, recipients []common.Address, amounts []*big.Int, startingGasPrice, maxGasPrice *big.Int) (*model.RawTransaction, error) {
	if len(recipients) != len(amounts) {
		return nil, model.NewDriverError("recipients and amounts length mismatch")
	}

	packed := make([][32]byte, len(recipients))
	sum := new(big.Int)
	for i, recipient := range recipients {
		word, err := packWord(recipient, amounts[i])
		if err != nil {
			return nil, model.WrapDriverError("pack multi-transfer word", err)
		}
		packed[i] = word
		sum.Add(sum, amounts[i])
	}

	direct := nonce%2 == 0
	contract := b.multiTransferAddress()

	var data []byte
	var err error
	var estimateData []byte
	if direct {
		estimateData, err = multiTransferABI.Pack("golemTransferDirectPacked", packed)
	} else {
		estimateData, err = multiTransferABI.Pack("golemTransferIndirectPacked", packed, sum)
	}
	if err != nil {
		return nil, model.WrapDriverError("encode multi-transfer", err)
	}
	data = estimateData

	gasEstimate, err := b.Chain.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &contract,
		Data: estimateData,
	})
	if err != nil {
		return nil, model.WrapDriverError("estimate multi-transfer gas", err)
	}

	log.Info("multi-transfer method selected", "direct", direct, "gas_estimate", gasEstimate, "nonce", nonce)

	gasPrice, err := b.resolveLegacyGasPrice(ctx, startingGasPrice, maxGasPrice)
	if err != nil {
		return nil, err
	}

	gasLimit := gasEstimate + multiTransferGasMargin

	return &model.RawTransaction{
		Nonce:    new(big.Int).SetUint64(nonce),
		To:       &contract,
		Value:    big.NewInt(0),
		GasPrice: gasPrice,
		Gas:      new(big.Int).SetUint64(gasLimit),
		Data:     data,
	}, nil
}

// Approve builds an approve(multiTransferContract, MaxUint256) call, so the
// multi-transfer contract never needs a second approval.
func (b *Builder) Approve(ctx context.Context, nonce uint64) (*model.RawTransaction, error) {
	spender := b.multiTransferAddress()
	data, err := erc20ABI.Pack("approve", spender, abiMaxUint256())
	if err != nil {
		return nil, model.WrapDriverError("encode approve", err)
	}

	gasPrice, err := b.gasMultipliedNodePrice(ctx)
	if err != nil {
		return nil, err
	}

	to := b.tokenAddress()
	return &model.RawTransaction{
		Nonce:    new(big.Int).SetUint64(nonce),
		To:       &to,
		Value:    big.NewInt(0),
		GasPrice: gasPrice,
		Gas:      big.NewInt(approveGasLimit),
		Data:     data,
	}, nil
}

// Faucet builds a create() call against the network's faucet contract.
// Callers must not invoke this on Mainnet (spec recovered feature: the
// faucet is testnet-only — wallet.Facade enforces this before calling in).
func (b *Builder) Faucet(ctx context.Context, nonce uint64) (*model.RawTransaction, error) {
	if b.Network.FaucetContractAddress == nil {
		return nil, model.NewDriverError("network has no faucet contract configured")
	}
	data, err := faucetABI.Pack("create")
	if err != nil {
		return nil, model.WrapDriverError("encode faucet create", err)
	}

	gasPrice, err := b.gasMultipliedNodePrice(ctx)
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(*b.Network.FaucetContractAddress)
	return &model.RawTransaction{
		Nonce:    new(big.Int).SetUint64(nonce),
		To:       &to,
		Value:    big.NewInt(0),
		GasPrice: gasPrice,
		Gas:      big.NewInt(faucetGasLimit),
		Data:     data,
	}, nil
}

func (b *Builder) multiTransferAddress() common.Address {
	if b.Network.MultiTransferContract == nil {
		return common.Address{}
	}
	return common.HexToAddress(*b.Network.MultiTransferContract)
}

// resolveLegacyGasPrice applies the general gas policy (spec §4.2) for
// Transfer/MultiTransfer construction.
func (b *Builder) resolveLegacyGasPrice(ctx context.Context, startingGasPrice, maxGasPrice *big.Int) (*big.Int, error) {
	nodePrice, err := b.Chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, model.WrapDriverError("suggest gas price", err)
	}
	return b.Policy.InitialPrice(nodePrice, startingGasPrice, maxGasPrice), nil
}

// gasMultipliedNodePrice is the fixed 1.5x-node-price rule Approve and
// Faucet both use, independent of the general ladder/legacy policy.
func (b *Builder) gasMultipliedNodePrice(ctx context.Context) (*big.Int, error) {
	nodePrice, err := b.Chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, model.WrapDriverError("suggest gas price", err)
	}
	price := new(big.Int).Mul(nodePrice, gasMultiplierNum)
	price.Div(price, gasMultiplierDen)
	return price, nil
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func abiMaxUint256() *big.Int {
	return new(big.Int).Set(maxUint256)
}
