package lifecycle

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/Atlas16A/yagna-erc20-driver/internal/dao"
	"github.com/Atlas16A/yagna-erc20-driver/internal/gasprice"
	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
	"github.com/Atlas16A/yagna-erc20-driver/internal/signer"
)

type mockChain struct {
	suggested    *big.Int
	blockNumber  uint64
	receipts     map[common.Hash]*types.Receipt
	sendErrs     []error
	sendCalls    int
	broadcastTxs []*types.Transaction
	balance      *big.Int // defaults to a very large balance when unset
}

func (m *mockChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if m.balance != nil {
		return m.balance, nil
	}
	return new(big.Int).Lsh(big.NewInt(1), 100), nil
}

func (m *mockChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.suggested, nil
}

func (m *mockChain) BlockNumber(ctx context.Context) (uint64, error) {
	return m.blockNumber, nil
}

func (m *mockChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, ok := m.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (m *mockChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.broadcastTxs = append(m.broadcastTxs, tx)
	var err error
	if m.sendCalls < len(m.sendErrs) {
		err = m.sendErrs[m.sendCalls]
	}
	m.sendCalls++
	return err
}

func (m *mockChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (m *mockChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Time: 1_700_000_000}, nil
}

func newTestEngine(t *testing.T, network model.NetworkConfig, policy gasprice.Policy, chain *mockChain) (*Engine, *dao.Store, *signer.LocalSigner, common.Address) {
	t.Helper()
	store, err := dao.Open(":memory:")
	if err != nil {
		t.Fatalf("dao.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	sign := signer.NewLocalSigner(key)

	engine := &Engine{
		Store:   store,
		Signer:  sign,
		Chain:   chain,
		Policy:  policy,
		Network: network,
	}
	return engine, store, sign, sender
}

func insertRecord(t *testing.T, store *dao.Store, txID string, sender common.Address, nonce uint64, startingGwei int64, network model.Network) *model.TransactionRecord {
	t.Helper()
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	raw := &model.RawTransaction{
		Nonce:    new(big.Int).SetUint64(nonce),
		To:       &to,
		Value:    big.NewInt(0),
		GasPrice: big.NewInt(1), // placeholder, overwritten on send
		Gas:      big.NewInt(55_000),
		Data:     []byte{0xde, 0xad, 0xbe, 0xef},
	}
	encoded, err := encodeRaw(raw)
	if err != nil {
		t.Fatalf("encodeRaw: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &model.TransactionRecord{
		TxID:             txID,
		Sender:           sender.Hex(),
		Nonce:            nonce,
		CreatedAt:        now,
		LastActionAt:     now,
		StartingGasPrice: decimal.NewFromInt(startingGwei * 1_000_000_000),
		GasLimit:         55_000,
		AmountBaseUnits:  big.NewInt(1_000_000),
		Encoded:          encoded,
		Status:           model.Created,
		TxType:           model.Transfer,
		Network:          network,
	}
	if err := store.InsertRawTransaction(context.Background(), rec); err != nil {
		t.Fatalf("InsertRawTransaction: %v", err)
	}
	return rec
}

func fetchRecord(t *testing.T, store *dao.Store, txID string) *model.TransactionRecord {
	t.Helper()
	rec, err := store.GetByID(context.Background(), txID)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", txID, err)
	}
	return rec
}

// S1 — single transfer, happy path: broadcast, then confirm once enough
// confirmations accumulate.
func TestSendThenReconcileHappyPath(t *testing.T) {
	network := model.NetworkConfig{
		Network:               model.Mumbai,
		ChainID:               80001,
		RequiredConfirmations: 3,
		TokenContractAddress:  "0x0000000000000000000000000000000000042",
	}
	policy := gasprice.Policy{Network: model.Mumbai, Method: gasprice.Static, Priority: gasprice.Fast}
	chain := &mockChain{suggested: big.NewInt(1), blockNumber: 100, receipts: map[common.Hash]*types.Receipt{}}
	engine, store, _, sender := newTestEngine(t, network, policy, chain)

	insertRecord(t, store, "tx-1", sender, 7, 1, model.Mumbai)

	if err := engine.SendPass(context.Background()); err != nil {
		t.Fatalf("SendPass: %v", err)
	}

	rec := fetchRecord(t, store, "tx-1")
	if rec.Status != model.Sent {
		t.Fatalf("expected Sent after broadcast, got %s", rec.Status)
	}
	hashes := rec.OnchainHashes()
	if len(hashes) != 1 {
		t.Fatalf("expected one broadcast hash, got %v", hashes)
	}
	h1 := hashes[0]

	chain.receipts[common.HexToHash(h1)] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
		GasUsed:     21_000,
	}

	// Only 1 confirmation so far (currentBlock 100, landed at 100):
	// confirmations = 100-100+1 = 1 < required 3.
	if err := engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile (insufficient confirmations): %v", err)
	}
	rec = fetchRecord(t, store, "tx-1")
	if rec.Status != model.Sent {
		t.Fatalf("expected still Sent with insufficient confirmations, got %s", rec.Status)
	}

	chain.blockNumber = 102 // confirmations = 102-100+1 = 3
	if err := engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile (sufficient confirmations): %v", err)
	}
	rec = fetchRecord(t, store, "tx-1")
	if rec.Status != model.Confirmed {
		t.Fatalf("expected Confirmed, got %s", rec.Status)
	}
	if rec.FinalTx == nil || *rec.FinalTx != h1 {
		t.Fatalf("expected final_tx %s, got %v", h1, rec.FinalTx)
	}
	if rec.FinalGasUsed == nil || *rec.FinalGasUsed != 21_000 {
		t.Fatalf("expected final_gas_used 21000, got %v", rec.FinalGasUsed)
	}

	// Invariant 8: re-running reconciliation on a Confirmed record is a no-op.
	if err := engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile (idempotent): %v", err)
	}
	rec2 := fetchRecord(t, store, "tx-1")
	if rec2.Status != model.Confirmed || *rec2.FinalTx != h1 {
		t.Fatalf("expected unchanged confirmed record, got %+v", rec2)
	}
}

// S2 — gas bump on stall: static sidechain fast priority starts at 30.01
// gwei; after a stall, the next pass bumps to 40.01 gwei (the next rung
// above the 11% floor) and appends a second hash.
func TestSendPassBumpsGasOnResend(t *testing.T) {
	network := model.NetworkConfig{Network: model.Mumbai, ChainID: 80001, RequiredConfirmations: 1}
	policy := gasprice.Policy{Network: model.Mumbai, Method: gasprice.Static, Priority: gasprice.Fast}
	chain := &mockChain{suggested: big.NewInt(1), receipts: map[common.Hash]*types.Receipt{}}
	engine, store, _, sender := newTestEngine(t, network, policy, chain)

	insertRecord(t, store, "tx-1", sender, 8, 1, model.Mumbai)

	if err := engine.SendPass(context.Background()); err != nil {
		t.Fatalf("first SendPass: %v", err)
	}
	rec := fetchRecord(t, store, "tx-1")
	wantFirst := gasprice.StartingPrice(gasprice.Fast)
	if rec.CurrentGasPrice == nil || rec.CurrentGasPrice.BigInt().Cmp(wantFirst) != 0 {
		t.Fatalf("expected first price %s, got %v", wantFirst, rec.CurrentGasPrice)
	}

	// Orchestrator marks the record stalled.
	if err := store.RetrySendTransaction(context.Background(), "tx-1", *rec.CurrentGasPrice); err != nil {
		t.Fatalf("RetrySendTransaction: %v", err)
	}

	if err := engine.SendPass(context.Background()); err != nil {
		t.Fatalf("second SendPass: %v", err)
	}
	rec = fetchRecord(t, store, "tx-1")
	wantSecond := gasprice.NextRungAbove(gasprice.Fast, bumpFloorForTest(wantFirst))
	if rec.CurrentGasPrice == nil || rec.CurrentGasPrice.BigInt().Cmp(wantSecond) != 0 {
		t.Fatalf("expected bumped price %s, got %v", wantSecond, rec.CurrentGasPrice)
	}
	hashes := rec.OnchainHashes()
	if len(hashes) != 2 {
		t.Fatalf("expected two hashes after bump, got %v", hashes)
	}
	if rec.Status != model.Sent {
		t.Fatalf("expected Sent after successful resend, got %s", rec.Status)
	}
}

func bumpFloorForTest(previous *big.Int) *big.Int {
	num := new(big.Int).Mul(previous, big.NewInt(111))
	floor := new(big.Int).Div(num, big.NewInt(100))
	rem := new(big.Int).Mod(num, big.NewInt(100))
	if rem.Sign() != 0 {
		floor.Add(floor, big.NewInt(1))
	}
	return floor
}

// S3 — "already known" race: the node rejects the first broadcast as
// already-known; the engine transitions to ResendAndBumpGas without
// changing price, and the next pass broadcasts at the bumped price.
func TestSendPassHandlesAlreadyKnown(t *testing.T) {
	network := model.NetworkConfig{Network: model.Mainnet, ChainID: 1, RequiredConfirmations: 1}
	policy := gasprice.Policy{Network: model.Mainnet, Method: gasprice.Dynamic}
	chain := &mockChain{
		suggested: big.NewInt(1), // avoid the queue-jumper bump so prices are exact
		receipts:  map[common.Hash]*types.Receipt{},
		sendErrs:  []error{errAlreadyKnown{}},
	}
	engine, store, _, sender := newTestEngine(t, network, policy, chain)

	rec := insertRecord(t, store, "tx-1", sender, 9, 20, model.Mainnet)
	_ = rec

	if err := engine.SendPass(context.Background()); err != nil {
		t.Fatalf("first SendPass: %v", err)
	}
	got := fetchRecord(t, store, "tx-1")
	if got.Status != model.ResendAndBumpGas {
		t.Fatalf("expected ResendAndBumpGas after already-known, got %s", got.Status)
	}
	if len(got.OnchainHashes()) != 0 {
		t.Fatalf("expected no broadcast hash recorded for a rejected send, got %v", got.OnchainHashes())
	}

	if err := engine.SendPass(context.Background()); err != nil {
		t.Fatalf("second SendPass: %v", err)
	}
	got = fetchRecord(t, store, "tx-1")
	if got.Status != model.Sent {
		t.Fatalf("expected Sent after resend succeeds, got %s", got.Status)
	}
	wantPrice := big.NewInt(22_200_000_000) // ceil(20 gwei * 1.11)
	if got.CurrentGasPrice.BigInt().Cmp(wantPrice) != 0 {
		t.Fatalf("expected bumped price %s, got %s", wantPrice, got.CurrentGasPrice)
	}
}

// Recovered feature: a send pass defers (does not fail) a record whose
// gas cost exceeds the sender's current native balance.
func TestSendPassDefersWhenBalanceInsufficientForGas(t *testing.T) {
	network := model.NetworkConfig{Network: model.Mainnet, ChainID: 1, RequiredConfirmations: 1}
	policy := gasprice.Policy{Network: model.Mainnet, Method: gasprice.Dynamic}
	chain := &mockChain{suggested: big.NewInt(1), receipts: map[common.Hash]*types.Receipt{}, balance: big.NewInt(1)}
	engine, store, _, sender := newTestEngine(t, network, policy, chain)

	insertRecord(t, store, "tx-1", sender, 1, 20, model.Mainnet)

	if err := engine.SendPass(context.Background()); err != nil {
		t.Fatalf("SendPass: %v", err)
	}
	rec := fetchRecord(t, store, "tx-1")
	if rec.Status != model.Created {
		t.Fatalf("expected record untouched when balance is insufficient, got %s", rec.Status)
	}
	if len(chain.broadcastTxs) != 0 {
		t.Fatalf("expected no broadcast attempt, got %d", len(chain.broadcastTxs))
	}
}

type errAlreadyKnown struct{}

func (errAlreadyKnown) Error() string { return "already known" }

// S5 — batch send monotonicity: within one pass, a record whose resolved
// price is lower than an earlier-nonce record's price in the same pass is
// skipped rather than broadcast at a lower price.
func TestSendPassEnforcesMonotonicityWithinPass(t *testing.T) {
	network := model.NetworkConfig{Network: model.Mainnet, ChainID: 1, RequiredConfirmations: 1}
	policy := gasprice.Policy{Network: model.Mainnet, Method: gasprice.Dynamic}
	chain := &mockChain{suggested: big.NewInt(1), receipts: map[common.Hash]*types.Receipt{}}
	engine, store, _, sender := newTestEngine(t, network, policy, chain)

	insertRecord(t, store, "tx-4", sender, 4, 25, model.Mainnet)
	insertRecord(t, store, "tx-5", sender, 5, 22, model.Mainnet)
	insertRecord(t, store, "tx-6", sender, 6, 30, model.Mainnet)

	if err := engine.SendPass(context.Background()); err != nil {
		t.Fatalf("SendPass: %v", err)
	}

	r4 := fetchRecord(t, store, "tx-4")
	r5 := fetchRecord(t, store, "tx-5")
	r6 := fetchRecord(t, store, "tx-6")

	if r4.Status != model.Sent {
		t.Fatalf("expected nonce 4 sent, got %s", r4.Status)
	}
	if r5.Status != model.Created {
		t.Fatalf("expected nonce 5 skipped (price below pass floor), got %s", r5.Status)
	}
	if r6.Status != model.Sent {
		t.Fatalf("expected nonce 6 sent, got %s", r6.Status)
	}
}
