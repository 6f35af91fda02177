package lifecycle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// transferEventSignature is keccak256("Transfer(address,address,uint256)"),
// the topic every ERC20 Transfer log carries.
var transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// BlockTimeClient is the subset of chain.Client VerifyTransfer needs to
// resolve a receipt's block timestamp.
type BlockTimeClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// VerifyTransfer decodes a confirmed receipt's Transfer event into
// PaymentDetails, matching it against tokenContract so unrelated logs in the
// same receipt (from other contracts the tx happened to touch) are ignored.
// The landing block's header is fetched to populate PaymentDetails.Date.
func VerifyTransfer(ctx context.Context, chain BlockTimeClient, receipt *types.Receipt, tokenContract common.Address) (*model.PaymentDetails, error) {
	for _, logEntry := range receipt.Logs {
		if logEntry.Address != tokenContract {
			continue
		}
		if len(logEntry.Topics) != 3 || logEntry.Topics[0] != transferEventSignature {
			continue
		}

		sender := common.BytesToAddress(logEntry.Topics[1].Bytes())
		recipient := common.BytesToAddress(logEntry.Topics[2].Bytes())
		amount := new(big.Int).SetBytes(logEntry.Data)

		var date *time.Time
		if header, err := chain.HeaderByNumber(ctx, receipt.BlockNumber); err == nil {
			t := time.Unix(int64(header.Time), 0).UTC()
			date = &t
		}

		return &model.PaymentDetails{
			Sender:    sender,
			Recipient: recipient,
			Amount:    amount,
			Date:      date,
		}, nil
	}
	return nil, model.NewDriverError("no matching Transfer event in receipt")
}

// VerifyTransfer fetches hash's receipt and decodes its Transfer event
// against the engine's token contract (spec §4.5, externally callable
// verification).
func (e *Engine) VerifyTransfer(ctx context.Context, hash common.Hash) (*model.PaymentDetails, error) {
	receipt, err := e.Chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, model.WrapDriverError("fetch receipt for verification", err)
	}
	return VerifyTransfer(ctx, e.Chain, receipt, common.HexToAddress(e.Network.TokenContractAddress))
}
