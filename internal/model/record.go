package model

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TxType identifies which on-chain call a TransactionRecord was built for.
type TxType int

const (
	Transfer TxType = iota
	MultiTransfer
	Approve
	Faucet
)

func (t TxType) String() string {
	switch t {
	case Transfer:
		return "transfer"
	case MultiTransfer:
		return "multi_transfer"
	case Approve:
		return "approve"
	case Faucet:
		return "faucet"
	default:
		return "unknown"
	}
}

// TxStatus is the lifecycle state of a TransactionRecord. Transitions are
// made by the lifecycle engine through the dao transition helpers.
type TxStatus int

const (
	Created TxStatus = iota
	Sent
	Pending
	ResendAndBumpGas
	Confirmed
	Failed
	NonceTooLow
	ErrorSent
)

func (s TxStatus) String() string {
	switch s {
	case Created:
		return "created"
	case Sent:
		return "sent"
	case Pending:
		return "pending"
	case ResendAndBumpGas:
		return "resend_and_bump_gas"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case NonceTooLow:
		return "nonce_too_low"
	case ErrorSent:
		return "error_sent"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a sink state: once reached, no further
// transitions are made for the owning record (invariant 6, spec §8).
func (s TxStatus) Terminal() bool {
	switch s {
	case Confirmed, Failed, NonceTooLow:
		return true
	default:
		return false
	}
}

// RawTransaction is the builder's output, serialized verbatim into a
// TransactionRecord's Encoded field. Value is always zero for ERC20 calls:
// the transfer amount travels inside Data, not as native currency.
type RawTransaction struct {
	Nonce    *big.Int        `json:"nonce"`
	To       *common.Address `json:"to"`
	Value    *big.Int        `json:"value"`
	GasPrice *big.Int        `json:"gas_price"`
	Gas      *big.Int        `json:"gas"`
	Data     []byte          `json:"data"`
}

// TransactionRecord is the durable unit the lifecycle engine operates on.
// It is created once by the wallet facade and mutated only by the lifecycle
// engine and DAO helpers; it is never deleted — it is the audit log.
type TransactionRecord struct {
	TxID   string
	Sender string // hex address as written by common.Address.Hex() (EIP-55 mixed case, not lowercased)
	Nonce  uint64

	CreatedAt    time.Time
	LastActionAt time.Time
	SentAt       *time.Time
	ConfirmedAt  *time.Time

	StartingGasPrice decimal.Decimal
	CurrentGasPrice  *decimal.Decimal
	MaxGasPrice      *decimal.Decimal
	GasLimit         uint64
	FinalGasUsed     *uint64

	AmountBaseUnits *big.Int
	AmountToken     *decimal.Decimal

	Encoded        string // serialized RawTransaction
	Signature      string // detached signature, hex-encoded
	TmpOnchainTxs  string // semicolon-joined hash history, append-only
	FinalTx        *string

	Status      TxStatus
	TxType      TxType
	Network     Network
	LastErrorMsg *string
	ResentTimes  int
}

// EncodeRawTransaction serializes a RawTransaction for storage in a
// TransactionRecord's Encoded field.
func EncodeRawTransaction(raw *RawTransaction) (string, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return "", WrapDriverError("encode raw transaction", err)
	}
	return string(b), nil
}

// DecodeRawTransaction is the inverse of EncodeRawTransaction.
func DecodeRawTransaction(encoded string) (*RawTransaction, error) {
	var raw RawTransaction
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return nil, WrapDriverError("decode raw transaction", err)
	}
	return &raw, nil
}

// OnchainHashes splits TmpOnchainTxs into its component hashes, oldest first.
func (r *TransactionRecord) OnchainHashes() []string {
	if r.TmpOnchainTxs == "" {
		return nil
	}
	return strings.Split(r.TmpOnchainTxs, ";")
}

// AppendOnchainHash returns the TmpOnchainTxs value after appending hash,
// preserving every hash ever broadcast for this record (invariant 2, §8).
func AppendOnchainHash(existing, hash string) string {
	if existing == "" {
		return hash
	}
	return existing + ";" + hash
}

// NextNonceInfo is the transient result of a nonce lookup: what the remote
// node reports (pending and latest transaction counts) plus what the local
// store has already claimed for this (sender, network).
type NextNonceInfo struct {
	NetworkNoncePending uint64
	NetworkNonceLatest  uint64
	DBNoncePending      *uint64
}

// PaymentDetails is the decoded result of verifying a confirmed transfer's
// receipt: the ERC20 Transfer event's indexed sender/recipient and its
// big-endian amount payload.
type PaymentDetails struct {
	Sender    common.Address
	Recipient common.Address
	Amount    *big.Int
	Date      *time.Time
}

// TransactionChainStatus collates what the chain currently reports about a
// single broadcast hash.
type TransactionChainStatus struct {
	ExistsOnChain bool
	Pending       bool
	Confirmed     bool
	Succeeded     bool
	GasUsed       *uint64
	GasPrice      *big.Int
}

// DriverError is the single opaque error kind every domain operation
// returns: a human-readable message, classified by the caller (the
// lifecycle engine, at the driver-loop boundary) via internal/rpcerr.
type DriverError struct {
	msg   string
	cause error
}

func NewDriverError(msg string) *DriverError {
	return &DriverError{msg: msg}
}

func WrapDriverError(msg string, cause error) *DriverError {
	return &DriverError{msg: msg, cause: cause}
}

func (e *DriverError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *DriverError) Unwrap() error {
	return e.cause
}
