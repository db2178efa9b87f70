package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
	"github.com/pumpsly/duelcore/internal/ledger"
)

type fakePoolStore struct {
	mu     sync.Mutex
	pools  map[uuid.UUID]domain.Pool
	trades map[string]domain.Trade
}

func newFakePoolStore() *fakePoolStore {
	return &fakePoolStore{
		pools:  map[uuid.UUID]domain.Pool{},
		trades: map[string]domain.Trade{},
	}
}

func (f *fakePoolStore) Create(ctx context.Context, pool domain.Pool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pools {
		if p.Address == pool.Address || p.MarketID == pool.MarketID {
			return domain.ErrAlreadyExists
		}
	}
	f.pools[pool.ID] = pool
	return nil
}

func (f *fakePoolStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePoolStore) GetByAddress(ctx context.Context, address string) (domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pools {
		if p.Address == address {
			return p, nil
		}
	}
	return domain.Pool{}, domain.ErrNotFound
}

func (f *fakePoolStore) UpdateReserves(ctx context.Context, id uuid.UUID, yesReserve, noReserve uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.YesReserve = yesReserve
	p.NoReserve = noReserve
	f.pools[id] = p
	return nil
}

func (f *fakePoolStore) Resolve(ctx context.Context, id uuid.UUID, outcome domain.Outcome, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.PoolStatusActive {
		return domain.ErrInvalidState
	}
	p.Status = domain.PoolStatusResolved
	p.WinningOutcome = &outcome
	p.ResolvedAt = &at
	f.pools[id] = p
	return nil
}

func (f *fakePoolStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Pool
	for _, p := range f.pools {
		if p.Status == domain.PoolStatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePoolStore) InsertTrade(ctx context.Context, trade domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.trades[trade.Signature]; ok {
		return domain.ErrAlreadyExists
	}
	f.trades[trade.Signature] = trade
	return nil
}

func (f *fakePoolStore) GetTradeBySignature(ctx context.Context, signature string) (domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trades[signature]
	if !ok {
		return domain.Trade{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *fakePoolStore) ListTrades(ctx context.Context, poolID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Trade
	for _, t := range f.trades {
		if t.PoolID == poolID {
			out = append(out, t)
		}
	}
	return out, nil
}

type poolFixture struct {
	svc      *PoolService
	store    *fakePoolStore
	verifier *fakeVerifier
	reader   *fakeChainReader
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	f := &poolFixture{
		store:    newFakePoolStore(),
		verifier: newFakeVerifier(),
		reader:   newFakeChainReader(),
	}
	f.svc = NewPoolService(
		f.store, &fakeAuditStore{}, f.verifier, f.reader, &fakeBus{},
		solana.NewWallet().PublicKey(), 1, testLogger(),
	)
	return f
}

func (f *poolFixture) seedChainPool(marketID, yes, no uint64) {
	f.reader.pools[marketID] = &ledger.PoolAccount{
		MarketID:         marketID,
		Authority:        solana.NewWallet().PublicKey(),
		TokenMint:        solana.NewWallet().PublicKey(),
		YesReserve:       yes,
		NoReserve:        no,
		BaseYesLiquidity: yes,
		BaseNoLiquidity:  no,
		FeeBps:           100,
		Status:           ledger.ChainPoolActive,
	}
}

func TestPoolCreateReadsChainReserves(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.seedChainPool(7, 5_000_000, 4_000_000)

	pool, err := f.svc.Create(ctx, 7, "will it rain tomorrow", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if pool.YesReserve != 5_000_000 || pool.NoReserve != 4_000_000 {
		t.Errorf("reserves = %d/%d, want chain values 5000000/4000000", pool.YesReserve, pool.NoReserve)
	}
	if pool.Status != domain.PoolStatusActive {
		t.Errorf("status = %s, want %s", pool.Status, domain.PoolStatusActive)
	}

	// Creating the same market again returns the existing row.
	again, err := f.svc.Create(ctx, 7, "will it rain tomorrow", "init-sig")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if again.ID != pool.ID {
		t.Errorf("second create returned %s, want original %s", again.ID, pool.ID)
	}
}

func TestPoolCreateRequiresVerifiedInit(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.seedChainPool(3, 1_000, 1_000)
	f.verifier.pending["init-sig"] = true

	if _, err := f.svc.Create(ctx, 3, "q", "init-sig"); !errors.Is(err, domain.ErrVerificationPending) {
		t.Errorf("err = %v, want ErrVerificationPending", err)
	}
}

func TestPoolQuoteRefreshesFromChain(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.seedChainPool(9, 1_000_000, 1_000_000)

	pool, err := f.svc.Create(ctx, 9, "q", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The chain moved underneath the snapshot.
	f.reader.pools[9].YesReserve = 800_000
	f.reader.pools[9].NoReserve = 1_250_000

	quote, err := f.svc.Quote(ctx, pool.ID, 10_000, domain.TradeBuyYes, 50)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.NewNoReserve <= 1_250_000 {
		t.Errorf("quote did not price off refreshed reserves: new NO reserve %d", quote.NewNoReserve)
	}

	got, _ := f.store.GetByID(ctx, pool.ID)
	if got.YesReserve != 800_000 || got.NoReserve != 1_250_000 {
		t.Errorf("snapshot = %d/%d, want synced 800000/1250000", got.YesReserve, got.NoReserve)
	}
}

func TestPoolQuoteFallsBackToSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.seedChainPool(4, 1_000_000, 1_000_000)

	pool, err := f.svc.Create(ctx, 4, "q", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	delete(f.reader.pools, 4)

	if _, err := f.svc.Quote(ctx, pool.ID, 10_000, domain.TradeBuyYes, 0); err != nil {
		t.Errorf("Quote with unreachable chain: %v", err)
	}
}

func TestRecordTradeIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.verifier.confirm("swap-sig", 10_000)
	f.seedChainPool(2, 1_000_000, 1_000_000)

	pool, err := f.svc.Create(ctx, 2, "q", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	trader := solana.NewWallet().PublicKey().String()

	trade, err := f.svc.RecordTrade(ctx, pool.ID, trader, domain.TradeBuyYes, 10_000, "swap-sig")
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	again, err := f.svc.RecordTrade(ctx, pool.ID, trader, domain.TradeBuyYes, 10_000, "swap-sig")
	if err != nil {
		t.Fatalf("second RecordTrade: %v", err)
	}
	if again.ID != trade.ID {
		t.Errorf("replay returned trade %s, want original %s", again.ID, trade.ID)
	}

	trades, _ := f.store.ListTrades(ctx, pool.ID, domain.ListOpts{})
	if len(trades) != 1 {
		t.Errorf("trades stored = %d, want 1", len(trades))
	}

	got, _ := f.store.GetByID(ctx, pool.ID)
	if got.YesReserve == pool.YesReserve && got.NoReserve == pool.NoReserve {
		t.Error("reserve snapshot unchanged after recorded trade")
	}
}

func TestRecordTradeRequiresVerifiedSignature(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.seedChainPool(5, 1_000_000, 1_000_000)

	pool, err := f.svc.Create(ctx, 5, "q", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.verifier.failed["bad-sig"] = true

	if _, err := f.svc.RecordTrade(ctx, pool.ID, solana.NewWallet().PublicKey().String(), domain.TradeBuyYes, 10_000, "bad-sig"); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Errorf("err = %v, want ErrVerificationFailed", err)
	}
	trades, _ := f.store.ListTrades(ctx, pool.ID, domain.ListOpts{})
	if len(trades) != 0 {
		t.Errorf("trades stored = %d, want 0 after failed verification", len(trades))
	}
}

func TestPoolResolveOnce(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.seedChainPool(6, 1_000_000, 1_000_000)

	pool, err := f.svc.Create(ctx, 6, "q", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.Resolve(ctx, pool.ID, "MAYBE"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("bad outcome: err = %v, want ErrInvalidAmount", err)
	}
	if err := f.svc.Resolve(ctx, pool.ID, domain.OutcomeYes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := f.svc.Resolve(ctx, pool.ID, domain.OutcomeNo); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second resolve: err = %v, want ErrInvalidState", err)
	}

	got, _ := f.store.GetByID(ctx, pool.ID)
	if got.Status != domain.PoolStatusResolved || got.WinningOutcome == nil || *got.WinningOutcome != domain.OutcomeYes {
		t.Errorf("pool = %s/%v, want RESOLVED/YES", got.Status, got.WinningOutcome)
	}

	// Resolved pools no longer quote or record trades.
	if _, err := f.svc.Quote(ctx, pool.ID, 1_000, domain.TradeBuyYes, 0); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("quote on resolved pool: err = %v, want ErrInvalidState", err)
	}
}

func TestPoolClaimReReadsChainState(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.seedChainPool(9, 1_000_000, 1_000_000)

	pool, err := f.svc.Create(ctx, 9, "q", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.verifier.confirm("claim-sig", 4_200)

	// Local resolution alone is not enough; the chain account still says
	// active, so the claim must be refused.
	if err := f.svc.Resolve(ctx, pool.ID, domain.OutcomeYes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := f.svc.Claim(ctx, pool.ID, "w1", "claim-sig"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("claim with active chain state: err = %v, want ErrInvalidState", err)
	}

	f.reader.pools[9].Status = ledger.ChainPoolResolved
	amount, err := f.svc.Claim(ctx, pool.ID, "w1", "claim-sig")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if amount != 4_200 {
		t.Errorf("amount = %d, want 4200", amount)
	}
}

func TestPoolClaimRequiresVerifiedSignature(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	f.verifier.confirm("init-sig", 1)
	f.seedChainPool(10, 1_000_000, 1_000_000)

	pool, err := f.svc.Create(ctx, 10, "q", "init-sig")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.reader.pools[10].Status = ledger.ChainPoolResolved

	if _, err := f.svc.Claim(ctx, pool.ID, "w1", "bad-sig"); !errors.Is(err, domain.ErrVerificationPending) {
		t.Errorf("unverified claim: err = %v, want ErrVerificationPending", err)
	}
}
