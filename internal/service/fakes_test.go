package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
	"github.com/pumpsly/duelcore/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDuelStore is an in-memory DuelStore with the same check-and-set
// semantics as the SQL implementation.
type fakeDuelStore struct {
	mu    sync.Mutex
	duels map[uuid.UUID]domain.Duel
}

func newFakeDuelStore() *fakeDuelStore {
	return &fakeDuelStore{duels: map[uuid.UUID]domain.Duel{}}
}

func (f *fakeDuelStore) Create(ctx context.Context, d domain.Duel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duels[d.ID] = d
	return nil
}

func (f *fakeDuelStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Duel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.duels[id]
	if !ok {
		return domain.Duel{}, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDuelStore) GetByDuelID(ctx context.Context, duelID uint64) (domain.Duel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.duels {
		if d.DuelID == duelID {
			return d, nil
		}
	}
	return domain.Duel{}, domain.ErrNotFound
}

func (f *fakeDuelStore) Update(ctx context.Context, d domain.Duel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.duels[d.ID]; !ok {
		return domain.ErrNotFound
	}
	f.duels[d.ID] = d
	return nil
}

func (f *fakeDuelStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DuelStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.duels[id]
	if !ok || d.Status != from {
		return domain.ErrInvalidState
	}
	d.Status = to
	f.duels[id] = d
	return nil
}

func (f *fakeDuelStore) ClaimPendingSlot(ctx context.Context, id uuid.UUID, player2 string, amount uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.duels[id]
	if !ok || d.Status != domain.DuelStatusPending || d.Player2 != nil {
		return domain.ErrDuelFull
	}
	d.Player2 = &player2
	d.Player2Amount = &amount
	d.Status = domain.DuelStatusMatched
	f.duels[id] = d
	return nil
}

func (f *fakeDuelStore) ListByStatus(ctx context.Context, status domain.DuelStatus, opts domain.ListOpts) ([]domain.Duel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Duel
	for _, d := range f.duels {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDuelStore) ListByPlayer(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Duel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Duel
	for _, d := range f.duels {
		if d.Player1 == wallet || (d.Player2 != nil && *d.Player2 == wallet) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDuelStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Duel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Duel
	for _, d := range f.duels {
		if d.Status == domain.DuelStatusPending && d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
			out = append(out, d)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeEscrowStore enforces the unique tx-hash constraint in memory.
type fakeEscrowStore struct {
	mu      sync.Mutex
	entries map[string]domain.EscrowTransaction
}

func newFakeEscrowStore() *fakeEscrowStore {
	return &fakeEscrowStore{entries: map[string]domain.EscrowTransaction{}}
}

func (f *fakeEscrowStore) Insert(ctx context.Context, e domain.EscrowTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[e.TxHash]; ok {
		return domain.ErrAlreadyExists
	}
	f.entries[e.TxHash] = e
	return nil
}

func (f *fakeEscrowStore) Confirm(ctx context.Context, txHash string) error {
	return f.setStatus(txHash, domain.EscrowConfirmed)
}

func (f *fakeEscrowStore) MarkFailed(ctx context.Context, txHash string) error {
	return f.setStatus(txHash, domain.EscrowFailed)
}

func (f *fakeEscrowStore) setStatus(txHash string, status domain.EscrowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[txHash]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	f.entries[txHash] = e
	return nil
}

func (f *fakeEscrowStore) GetByTxHash(ctx context.Context, txHash string) (domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[txHash]
	if !ok {
		return domain.EscrowTransaction{}, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeEscrowStore) HasPayout(ctx context.Context, duelID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.DuelID == nil || *e.DuelID != duelID || e.Status == domain.EscrowFailed {
			continue
		}
		if e.Type == domain.EscrowPayout || e.Type == domain.EscrowRefund {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEscrowStore) ListByDuel(ctx context.Context, duelID uuid.UUID) ([]domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EscrowTransaction
	for _, e := range f.entries {
		if e.DuelID != nil && *e.DuelID == duelID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEscrowStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EscrowTransaction
	for _, e := range f.entries {
		if e.Wallet == wallet {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeConfirmationStore struct {
	mu    sync.Mutex
	confs map[string]domain.TransactionConfirmation
}

func newFakeConfirmationStore() *fakeConfirmationStore {
	return &fakeConfirmationStore{confs: map[string]domain.TransactionConfirmation{}}
}

func (f *fakeConfirmationStore) Upsert(ctx context.Context, c domain.TransactionConfirmation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confs[c.TxHash] = c
	return nil
}

func (f *fakeConfirmationStore) GetByTxHash(ctx context.Context, txHash string) (domain.TransactionConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.confs[txHash]
	if !ok {
		return domain.TransactionConfirmation{}, domain.ErrNotFound
	}
	return c, nil
}

type fakeResultStore struct {
	mu      sync.Mutex
	results map[uuid.UUID]domain.DuelResult
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: map[uuid.UUID]domain.DuelResult{}}
}

func (f *fakeResultStore) Insert(ctx context.Context, r domain.DuelResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.results[r.DuelID]; ok {
		return domain.ErrAlreadyExists
	}
	f.results[r.DuelID] = r
	return nil
}

func (f *fakeResultStore) GetByDuelID(ctx context.Context, duelID uuid.UUID) (domain.DuelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[duelID]
	if !ok {
		return domain.DuelResult{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeResultStore) ListByPlayer(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.DuelResult, error) {
	return nil, nil
}

type fakeStatsStore struct {
	mu      sync.Mutex
	applied int
}

func (f *fakeStatsStore) ApplyResult(ctx context.Context, r domain.DuelResult, wagered uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied++
	return nil
}

func (f *fakeStatsStore) Get(ctx context.Context, wallet string) (domain.DuelStats, error) {
	return domain.DuelStats{}, domain.ErrNotFound
}

func (f *fakeStatsStore) TopByWins(ctx context.Context, limit int) ([]domain.DuelStats, error) {
	return nil, nil
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakePriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: map[string]float64{}}
}

func (f *fakePriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
	return nil
}

func (f *fakePriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (f *fakePriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, s := range symbols {
		if p, _, err := f.GetPrice(ctx, s); err == nil {
			out[s] = p
		}
	}
	return out, nil
}

type fakeLockManager struct{}

func (f *fakeLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events [][]byte
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

// fakeVerifier returns canned confirmations per tx hash.
type fakeVerifier struct {
	mu      sync.Mutex
	confs   map[string]*domain.TransactionConfirmation
	pending map[string]bool
	failed  map[string]bool
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		confs:   map[string]*domain.TransactionConfirmation{},
		pending: map[string]bool{},
		failed:  map[string]bool{},
	}
}

func (f *fakeVerifier) Verify(ctx context.Context, txHash string, minConfirmations uint64) (*domain.TransactionConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed[txHash] {
		return nil, domain.ErrVerificationFailed
	}
	if f.pending[txHash] {
		return nil, domain.ErrVerificationPending
	}
	if c, ok := f.confs[txHash]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrVerificationPending
}

func (f *fakeVerifier) confirm(txHash string, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, txHash)
	f.confs[txHash] = &domain.TransactionConfirmation{
		TxHash:        txHash,
		Sender:        solana.NewWallet().PublicKey().String(),
		Receiver:      solana.NewWallet().PublicKey().String(),
		Amount:        amount,
		Confirmations: 32,
		VerifiedAt:    time.Now(),
	}
}

// fakeChainReader serves canned program accounts.
type fakeChainReader struct {
	mu    sync.Mutex
	duels map[uint64]*ledger.DuelAccount
	pools map[uint64]*ledger.PoolAccount
}

func newFakeChainReader() *fakeChainReader {
	return &fakeChainReader{
		duels: map[uint64]*ledger.DuelAccount{},
		pools: map[uint64]*ledger.PoolAccount{},
	}
}

func (f *fakeChainReader) Duel(ctx context.Context, duelID uint64) (*ledger.DuelAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.duels[duelID]
	if !ok {
		return nil, errors.New("duel account not found")
	}
	return d, nil
}

func (f *fakeChainReader) Pool(ctx context.Context, marketID uint64) (*ledger.PoolAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[marketID]
	if !ok {
		return nil, errors.New("pool account not found")
	}
	return p, nil
}

// fakeSubmitter records submitted settlement instructions.
type fakeSubmitter struct {
	mu       sync.Mutex
	starts   int
	resolves int
	cancels  int
}

func (f *fakeSubmitter) StartDuel(ctx context.Context, duelID, entryPrice uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return "sig-start", nil
}

func (f *fakeSubmitter) ResolveDuel(ctx context.Context, duelID, exitPrice uint64, winnerID uint8, player1, player2 solana.PublicKey) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	return "sig-resolve", nil
}

func (f *fakeSubmitter) CancelDuel(ctx context.Context, duelID uint64, player1 solana.PublicKey) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return "sig-cancel", nil
}
