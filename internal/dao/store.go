// Package dao defines the persistence boundary the lifecycle engine and
// wallet facade depend on (spec §6), and a concrete modernc.org/sqlite
// adapter for it. TransactionRecord is the audit log: rows are inserted
// once and only ever mutated through the transition helpers below, never
// deleted.
package dao

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// Persistence is the interface the lifecycle engine, nonce manager, and
// wallet facade consume. Every transition method is named for the state
// change it performs, not for the SQL underneath it.
type Persistence interface {
	// InsertRawTransaction persists a freshly built record in the Created
	// state. TxID must be unique; callers generate it before calling in.
	InsertRawTransaction(ctx context.Context, rec *model.TransactionRecord) error

	// GetLastDBNoncePending returns the highest nonce already claimed by a
	// non-terminal record for (sender, network), or nil if none exists.
	// Satisfies nonce.Store.
	GetLastDBNoncePending(ctx context.Context, sender string, network model.Network) (*uint64, error)

	// GetByID fetches a single record by its tx id.
	GetByID(ctx context.Context, txID string) (*model.TransactionRecord, error)

	// ListUnfinished returns every non-terminal record for network, ordered
	// by ascending nonce within each sender — the order the lifecycle
	// engine's send pass requires (spec §5).
	ListUnfinished(ctx context.Context, network model.Network) ([]*model.TransactionRecord, error)

	// UpdateTxFields persists the re-serialized transaction and its gas
	// price before broadcast (invariant 5, spec §8: durability-before-effect).
	UpdateTxFields(ctx context.Context, txID, encoded, signature string, currentGasPrice decimal.Decimal) error

	// TransactionSent records a successful broadcast: appends hash to the
	// hash history and transitions to Sent.
	TransactionSent(ctx context.Context, txID, hash string, gasPrice decimal.Decimal) error

	// TransactionFailedSend records a transient broadcast failure:
	// stores resent_times and last_error_msg without changing status, so
	// a Created or ResendAndBumpGas record is retried on the next send pass.
	TransactionFailedSend(ctx context.Context, txID string, resentTimes int, msg string) error

	// TransactionFailedWithNonceTooLow demotes a record to ErrorSent if it
	// has a prior broadcast hash, or terminates it as NonceTooLow otherwise
	// (spec §7).
	TransactionFailedWithNonceTooLow(ctx context.Context, txID, msg string) error

	// TransactionConfirmedAndFailed records a receipt that landed but
	// reverted (status = 0): terminal Failed, with the landed hash and gas
	// used recorded for the audit trail.
	TransactionConfirmedAndFailed(ctx context.Context, txID, hash string, gasUsed uint64, msg string) error

	// TransactionConfirmed records a receipt that landed and succeeded:
	// terminal Confirmed, with the landed hash and gas used recorded.
	TransactionConfirmed(ctx context.Context, txID, hash string, gasUsed uint64) error

	// RetrySendTransaction transitions a record to ResendAndBumpGas, setting
	// current_gas_price to bump ahead of the next send pass picking it up.
	RetrySendTransaction(ctx context.Context, txID string, bump decimal.Decimal) error
}
