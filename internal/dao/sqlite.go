package dao

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS transaction_records (
	tx_id              TEXT PRIMARY KEY,
	sender             TEXT NOT NULL,
	nonce              INTEGER NOT NULL,
	created_at         TEXT NOT NULL,
	last_action_at     TEXT NOT NULL,
	sent_at            TEXT,
	confirmed_at       TEXT,
	starting_gas_price TEXT NOT NULL,
	current_gas_price  TEXT,
	max_gas_price      TEXT,
	gas_limit          INTEGER NOT NULL,
	final_gas_used     INTEGER,
	amount_base_units  TEXT NOT NULL,
	amount_token       TEXT,
	encoded            TEXT NOT NULL,
	signature          TEXT NOT NULL DEFAULT '',
	tmp_onchain_txs    TEXT NOT NULL DEFAULT '',
	final_tx           TEXT,
	status             INTEGER NOT NULL,
	tx_type            INTEGER NOT NULL,
	network            INTEGER NOT NULL,
	last_error_msg     TEXT,
	resent_times       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transaction_records_sender_network
	ON transaction_records (sender, network, nonce);
`

// Store is a modernc.org/sqlite-backed Persistence. A single *sql.DB is
// shared by every caller; sqlite's own file locking serializes writers.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to a sqlite database at dataSourceName (a file
// path, or ":memory:" for tests) and ensures the schema exists.
func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, model.WrapDriverError("open sqlite store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, model.WrapDriverError("migrate sqlite store", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func timeStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullableTimeStr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return timeStr(*t)
}

func nullableDecimalStr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableStr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func (s *Store) InsertRawTransaction(ctx context.Context, rec *model.TransactionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_records (
			tx_id, sender, nonce, created_at, last_action_at, sent_at, confirmed_at,
			starting_gas_price, current_gas_price, max_gas_price, gas_limit, final_gas_used,
			amount_base_units, amount_token, encoded, signature, tmp_onchain_txs, final_tx,
			status, tx_type, network, last_error_msg, resent_times
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TxID, rec.Sender, rec.Nonce, timeStr(rec.CreatedAt), timeStr(rec.LastActionAt),
		nullableTimeStr(rec.SentAt), nullableTimeStr(rec.ConfirmedAt),
		rec.StartingGasPrice.String(), nullableDecimalStr(rec.CurrentGasPrice), nullableDecimalStr(rec.MaxGasPrice),
		rec.GasLimit, rec.FinalGasUsed,
		rec.AmountBaseUnits.String(), nullableDecimalStr(rec.AmountToken),
		rec.Encoded, rec.Signature, rec.TmpOnchainTxs, nullableStr(rec.FinalTx),
		int(rec.Status), int(rec.TxType), int(rec.Network), nullableStr(rec.LastErrorMsg), rec.ResentTimes,
	)
	if err != nil {
		return model.WrapDriverError("insert raw transaction", err)
	}
	return nil
}

func (s *Store) GetLastDBNoncePending(ctx context.Context, sender string, network model.Network) (*uint64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT MAX(nonce) FROM transaction_records
		WHERE sender = ? AND network = ? AND status NOT IN (?, ?, ?)`,
		sender, int(network), int(model.Confirmed), int(model.Failed), int(model.NonceTooLow),
	)
	var max sql.NullInt64
	if err := row.Scan(&max); err != nil {
		return nil, model.WrapDriverError("get last db nonce pending", err)
	}
	if !max.Valid {
		return nil, nil
	}
	v := uint64(max.Int64)
	return &v, nil
}

func (s *Store) GetByID(ctx context.Context, txID string) (*model.TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE tx_id = ?`, txID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, model.WrapDriverError("get transaction by id", err)
	}
	return rec, nil
}

func (s *Store) ListUnfinished(ctx context.Context, network model.Network) ([]*model.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE network = ? AND status NOT IN (?, ?, ?)
		ORDER BY sender ASC, nonce ASC`,
		int(network), int(model.Confirmed), int(model.Failed), int(model.NonceTooLow),
	)
	if err != nil {
		return nil, model.WrapDriverError("list unfinished transactions", err)
	}
	defer rows.Close()

	var records []*model.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, model.WrapDriverError("scan unfinished transaction", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapDriverError("list unfinished transactions", err)
	}
	return records, nil
}

func (s *Store) UpdateTxFields(ctx context.Context, txID, encoded, signature string, currentGasPrice decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET encoded = ?, signature = ?, current_gas_price = ?, last_action_at = ?
		WHERE tx_id = ?`,
		encoded, signature, currentGasPrice.String(), timeStr(now()), txID,
	)
	if err != nil {
		return model.WrapDriverError("update tx fields", err)
	}
	return nil
}

func (s *Store) TransactionSent(ctx context.Context, txID, hash string, gasPrice decimal.Decimal) error {
	existing, err := s.currentOnchainHashes(ctx, txID)
	if err != nil {
		return err
	}
	appended := model.AppendOnchainHash(existing, hash)

	_, err = s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET status = ?, current_gas_price = ?, tmp_onchain_txs = ?, sent_at = ?, last_action_at = ?
		WHERE tx_id = ?`,
		int(model.Sent), gasPrice.String(), appended, timeStr(now()), timeStr(now()), txID,
	)
	if err != nil {
		return model.WrapDriverError("transaction sent", err)
	}
	return nil
}

func (s *Store) TransactionFailedSend(ctx context.Context, txID string, resentTimes int, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET resent_times = ?, last_error_msg = ?, last_action_at = ?
		WHERE tx_id = ?`,
		resentTimes, msg, timeStr(now()), txID,
	)
	if err != nil {
		return model.WrapDriverError("transaction failed send", err)
	}
	return nil
}

// maxNonceTooLowRescueResends caps how many times a record that has a prior
// broadcast hash gets demoted to ErrorSent (for the reconciler to rescue)
// instead of terminating outright (spec §4.5).
const maxNonceTooLowRescueResends = 5

func (s *Store) TransactionFailedWithNonceTooLow(ctx context.Context, txID, msg string) error {
	existing, resentTimes, err := s.onchainHashesAndResentTimes(ctx, txID)
	if err != nil {
		return err
	}

	status := model.NonceTooLow
	if existing != "" && resentTimes < maxNonceTooLowRescueResends {
		status = model.ErrorSent
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET status = ?, last_error_msg = ?, last_action_at = ?
		WHERE tx_id = ?`,
		int(status), msg, timeStr(now()), txID,
	)
	if err != nil {
		return model.WrapDriverError("transaction failed with nonce too low", err)
	}
	return nil
}

func (s *Store) TransactionConfirmedAndFailed(ctx context.Context, txID, hash string, gasUsed uint64, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET status = ?, final_tx = ?, final_gas_used = ?, confirmed_at = ?, last_error_msg = ?, last_action_at = ?
		WHERE tx_id = ?`,
		int(model.Failed), hash, gasUsed, timeStr(now()), msg, timeStr(now()), txID,
	)
	if err != nil {
		return model.WrapDriverError("transaction confirmed and failed", err)
	}
	return nil
}

func (s *Store) TransactionConfirmed(ctx context.Context, txID, hash string, gasUsed uint64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET status = ?, final_tx = ?, final_gas_used = ?, confirmed_at = ?, last_action_at = ?
		WHERE tx_id = ?`,
		int(model.Confirmed), hash, gasUsed, timeStr(now()), timeStr(now()), txID,
	)
	if err != nil {
		return model.WrapDriverError("transaction confirmed", err)
	}
	return nil
}

func (s *Store) RetrySendTransaction(ctx context.Context, txID string, bump decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET status = ?, current_gas_price = ?, last_action_at = ?
		WHERE tx_id = ?`,
		int(model.ResendAndBumpGas), bump.String(), timeStr(now()), txID,
	)
	if err != nil {
		return model.WrapDriverError("retry send transaction", err)
	}
	return nil
}

func (s *Store) currentOnchainHashes(ctx context.Context, txID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT tmp_onchain_txs FROM transaction_records WHERE tx_id = ?`, txID)
	var existing string
	if err := row.Scan(&existing); err != nil {
		return "", model.WrapDriverError("read onchain hash history", err)
	}
	return existing, nil
}

func (s *Store) onchainHashesAndResentTimes(ctx context.Context, txID string) (string, int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT tmp_onchain_txs, resent_times FROM transaction_records WHERE tx_id = ?`, txID)
	var existing string
	var resentTimes int
	if err := row.Scan(&existing, &resentTimes); err != nil {
		return "", 0, model.WrapDriverError("read onchain hash history", err)
	}
	return existing, resentTimes, nil
}

// now is a seam so tests could substitute a fixed clock; production always
// uses wall-clock time.
var now = time.Now

const selectColumns = `
SELECT tx_id, sender, nonce, created_at, last_action_at, sent_at, confirmed_at,
	starting_gas_price, current_gas_price, max_gas_price, gas_limit, final_gas_used,
	amount_base_units, amount_token, encoded, signature, tmp_onchain_txs, final_tx,
	status, tx_type, network, last_error_msg, resent_times
FROM transaction_records`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*model.TransactionRecord, error) {
	var rec model.TransactionRecord
	var createdAt, lastActionAt string
	var sentAt, confirmedAt sql.NullString
	var currentGasPrice, maxGasPrice, amountToken sql.NullString
	var finalGasUsed sql.NullInt64
	var finalTx, lastErrorMsg sql.NullString
	var startingGasPrice, amountBaseUnits string
	var status, txType, network int

	err := row.Scan(
		&rec.TxID, &rec.Sender, &rec.Nonce, &createdAt, &lastActionAt, &sentAt, &confirmedAt,
		&startingGasPrice, &currentGasPrice, &maxGasPrice, &rec.GasLimit, &finalGasUsed,
		&amountBaseUnits, &amountToken, &rec.Encoded, &rec.Signature, &rec.TmpOnchainTxs, &finalTx,
		&status, &txType, &network, &lastErrorMsg, &rec.ResentTimes,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.LastActionAt, err = time.Parse(time.RFC3339Nano, lastActionAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_action_at: %w", err)
	}
	if sentAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, sentAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse sent_at: %w", err)
		}
		rec.SentAt = &t
	}
	if confirmedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, confirmedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse confirmed_at: %w", err)
		}
		rec.ConfirmedAt = &t
	}

	rec.StartingGasPrice, err = decimal.NewFromString(startingGasPrice)
	if err != nil {
		return nil, fmt.Errorf("parse starting_gas_price: %w", err)
	}
	if currentGasPrice.Valid {
		d, err := decimal.NewFromString(currentGasPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parse current_gas_price: %w", err)
		}
		rec.CurrentGasPrice = &d
	}
	if maxGasPrice.Valid {
		d, err := decimal.NewFromString(maxGasPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parse max_gas_price: %w", err)
		}
		rec.MaxGasPrice = &d
	}
	if amountToken.Valid {
		d, err := decimal.NewFromString(amountToken.String)
		if err != nil {
			return nil, fmt.Errorf("parse amount_token: %w", err)
		}
		rec.AmountToken = &d
	}

	amount, ok := new(big.Int).SetString(amountBaseUnits, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount_base_units: %q", amountBaseUnits)
	}
	rec.AmountBaseUnits = amount

	if finalGasUsed.Valid {
		v := uint64(finalGasUsed.Int64)
		rec.FinalGasUsed = &v
	}
	if finalTx.Valid {
		v := finalTx.String
		rec.FinalTx = &v
	}
	if lastErrorMsg.Valid {
		v := lastErrorMsg.String
		rec.LastErrorMsg = &v
	}

	rec.Status = model.TxStatus(status)
	rec.TxType = model.TxType(txType)
	rec.Network = model.Network(network)

	return &rec, nil
}
