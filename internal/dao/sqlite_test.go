package dao

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestRecord(txID, sender string, nonce uint64) *model.TransactionRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.TransactionRecord{
		TxID:             txID,
		Sender:           sender,
		Nonce:            nonce,
		CreatedAt:        now,
		LastActionAt:     now,
		StartingGasPrice: decimal.NewFromInt(20_000_000_000),
		GasLimit:         55_000,
		AmountBaseUnits:  big.NewInt(1_000_000),
		Encoded:          "deadbeef",
		Status:           model.Created,
		TxType:           model.Transfer,
		Network:          model.Mainnet,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := newTestRecord("tx-1", "0xabc", 7)

	if err := store.InsertRawTransaction(ctx, rec); err != nil {
		t.Fatalf("InsertRawTransaction: %v", err)
	}

	got, err := store.GetByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Sender != "0xabc" || got.Nonce != 7 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Status != model.Created {
		t.Fatalf("expected Created status, got %s", got.Status)
	}
}

func TestGetLastDBNoncePendingIgnoresTerminalRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	r1 := newTestRecord("tx-1", "0xabc", 5)
	r1.Status = model.Confirmed
	r2 := newTestRecord("tx-2", "0xabc", 6)
	r2.Status = model.Sent

	if err := store.InsertRawTransaction(ctx, r1); err != nil {
		t.Fatalf("insert r1: %v", err)
	}
	if err := store.InsertRawTransaction(ctx, r2); err != nil {
		t.Fatalf("insert r2: %v", err)
	}

	got, err := store.GetLastDBNoncePending(ctx, "0xabc", model.Mainnet)
	if err != nil {
		t.Fatalf("GetLastDBNoncePending: %v", err)
	}
	if got == nil || *got != 6 {
		t.Fatalf("expected pending nonce 6 (confirmed nonce 5 excluded), got %v", got)
	}
}

func TestTransactionSentAppendsHashHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := newTestRecord("tx-1", "0xabc", 7)
	if err := store.InsertRawTransaction(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.TransactionSent(ctx, "tx-1", "0xH1", decimal.NewFromInt(30_000_000_000)); err != nil {
		t.Fatalf("TransactionSent H1: %v", err)
	}
	if err := store.TransactionSent(ctx, "tx-1", "0xH2", decimal.NewFromInt(40_000_000_000)); err != nil {
		t.Fatalf("TransactionSent H2: %v", err)
	}

	got, err := store.GetByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	hashes := got.OnchainHashes()
	if len(hashes) != 2 || hashes[0] != "0xH1" || hashes[1] != "0xH2" {
		t.Fatalf("expected [0xH1 0xH2], got %v", hashes)
	}
	if got.Status != model.Sent {
		t.Fatalf("expected Sent status, got %s", got.Status)
	}
}

func TestNonceTooLowDemotesWhenPriorHashExists(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := newTestRecord("tx-1", "0xabc", 5)
	if err := store.InsertRawTransaction(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.TransactionSent(ctx, "tx-1", "0xH1", decimal.NewFromInt(20_000_000_000)); err != nil {
		t.Fatalf("TransactionSent: %v", err)
	}

	if err := store.TransactionFailedWithNonceTooLow(ctx, "tx-1", "nonce too low"); err != nil {
		t.Fatalf("TransactionFailedWithNonceTooLow: %v", err)
	}

	got, err := store.GetByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.ErrorSent {
		t.Fatalf("expected ErrorSent (has prior hash), got %s", got.Status)
	}
}

func TestNonceTooLowTerminatesWithNoPriorHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := newTestRecord("tx-1", "0xabc", 5)
	if err := store.InsertRawTransaction(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.TransactionFailedWithNonceTooLow(ctx, "tx-1", "nonce too low"); err != nil {
		t.Fatalf("TransactionFailedWithNonceTooLow: %v", err)
	}

	got, err := store.GetByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.NonceTooLow {
		t.Fatalf("expected terminal NonceTooLow (no prior hash), got %s", got.Status)
	}
}

func TestListUnfinishedOrdersBySenderThenNonce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []*model.TransactionRecord{
		newTestRecord("tx-6", "0xabc", 6),
		newTestRecord("tx-4", "0xabc", 4),
		newTestRecord("tx-done", "0xabc", 3),
	} {
		if err := store.InsertRawTransaction(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", rec.TxID, err)
		}
	}
	if err := store.TransactionConfirmed(ctx, "tx-done", "0xHdone", 21_000); err != nil {
		t.Fatalf("TransactionConfirmed: %v", err)
	}

	got, err := store.ListUnfinished(ctx, model.Mainnet)
	if err != nil {
		t.Fatalf("ListUnfinished: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 unfinished records, got %d", len(got))
	}
	if got[0].Nonce != 4 || got[1].Nonce != 6 {
		t.Fatalf("expected nonces [4 6], got [%d %d]", got[0].Nonce, got[1].Nonce)
	}
}

func TestRetrySendTransactionSetsResendStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := newTestRecord("tx-1", "0xabc", 5)
	if err := store.InsertRawTransaction(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	bump := decimal.NewFromInt(33_310_000_000)
	if err := store.RetrySendTransaction(ctx, "tx-1", bump); err != nil {
		t.Fatalf("RetrySendTransaction: %v", err)
	}

	got, err := store.GetByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.ResendAndBumpGas {
		t.Fatalf("expected ResendAndBumpGas, got %s", got.Status)
	}
	if got.CurrentGasPrice == nil || !got.CurrentGasPrice.Equal(bump) {
		t.Fatalf("expected current_gas_price %s, got %v", bump, got.CurrentGasPrice)
	}
}
