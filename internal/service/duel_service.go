package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
	"github.com/pumpsly/duelcore/internal/ledger"
	"github.com/pumpsly/duelcore/internal/metrics"
)

// ChainReader fetches decoded program accounts from the ledger.
type ChainReader interface {
	Duel(ctx context.Context, duelID uint64) (*ledger.DuelAccount, error)
	Pool(ctx context.Context, marketID uint64) (*ledger.PoolAccount, error)
}

// SettlementSubmitter drives the duel program's settlement instructions.
type SettlementSubmitter interface {
	StartDuel(ctx context.Context, duelID, entryPrice uint64) (string, error)
	ResolveDuel(ctx context.Context, duelID, exitPrice uint64, winnerID uint8, player1, player2 solana.PublicKey) (string, error)
	CancelDuel(ctx context.Context, duelID uint64, player1 solana.PublicKey) (string, error)
}

// escrowLedger is the slice of the escrow service the duel controller uses.
type escrowLedger interface {
	Record(ctx context.Context, entry domain.EscrowTransaction) (domain.EscrowTransaction, error)
	Confirm(ctx context.Context, txHash string) (*domain.TransactionConfirmation, error)
	MarkFailed(ctx context.Context, txHash string) error
	HasPayout(ctx context.Context, duelID uuid.UUID) (bool, error)
	ListByDuel(ctx context.Context, duelID uuid.UUID) ([]domain.EscrowTransaction, error)
}

// DuelConfig carries the tunables of the duel lifecycle.
type DuelConfig struct {
	FeeBps       uint16
	JoinWindow   time.Duration
	Countdown    time.Duration
	DuelDuration time.Duration
	// priceScale converts feed prices to the integer representation the
	// on-chain program stores.
	PriceScale float64
}

// DuelService owns the duel lifecycle from creation through settlement.
//
// State machine: PENDING -> MATCHED -> WAITING_DEPOSIT ->
// CONFIRMING_TRANSACTIONS -> COUNTDOWN -> ACTIVE -> FINISHED -> RESOLVED,
// with EXPIRED reachable from PENDING and CANCELLED from PENDING or EXPIRED
// once the join window has lapsed. Terminal states never transition again.
type DuelService struct {
	duels   domain.DuelStore
	escrow  escrowLedger
	results domain.ResultStore
	stats   domain.StatsStore
	audit   domain.AuditStore
	prices  domain.PriceCache
	locks   domain.LockManager
	bus     domain.SignalBus

	reader    ChainReader
	submitter SettlementSubmitter

	cfg    DuelConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewDuelService creates a DuelService with all required dependencies.
func NewDuelService(
	duels domain.DuelStore,
	escrow *EscrowService,
	results domain.ResultStore,
	stats domain.StatsStore,
	audit domain.AuditStore,
	prices domain.PriceCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	reader ChainReader,
	submitter SettlementSubmitter,
	cfg DuelConfig,
	logger *slog.Logger,
) *DuelService {
	return &DuelService{
		duels:     duels,
		escrow:    escrow,
		results:   results,
		stats:     stats,
		audit:     audit,
		prices:    prices,
		locks:     locks,
		bus:       bus,
		reader:    reader,
		submitter: submitter,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// priceSymbol maps the duel currency to a feed symbol.
func priceSymbol(currency int16) string {
	if currency == 1 {
		return "PUMP"
	}
	return "SOL"
}

// Create opens a new duel for the given creator and stake. The creator's
// deposit transaction is verified first; a duel is never persisted without
// verified funds behind it.
func (s *DuelService) Create(ctx context.Context, player1 string, betAmount uint64, currency int16, direction domain.Direction, signature string) (domain.Duel, error) {
	if betAmount == 0 {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: bet amount must be positive", domain.ErrInvalidAmount)
	}
	if _, err := solana.PublicKeyFromBase58(player1); err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: invalid wallet %q", domain.ErrInvalidAmount, player1)
	}
	if signature == "" {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: deposit signature is required", domain.ErrInvalidAmount)
	}

	conf, err := s.escrow.Confirm(ctx, signature)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: create deposit: %w", err)
	}
	if conf.Amount < betAmount {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: deposit %d below stake %d", domain.ErrInvalidAmount, conf.Amount, betAmount)
	}

	now := s.now()
	expires := now.Add(s.cfg.JoinWindow)
	duel := domain.Duel{
		ID:        uuid.New(),
		DuelID:    rand.Uint64(),
		Player1:   player1,
		BetAmount: betAmount,
		Currency:  currency,
		Direction: direction,
		Status:    domain.DuelStatusPending,
		TxHash:    &signature,
		CreatedAt: now,
		ExpiresAt: &expires,
	}

	if err := s.duels.Create(ctx, duel); err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: create: %w", err)
	}

	if _, err := s.escrow.Record(ctx, domain.EscrowTransaction{
		DuelID:   &duel.ID,
		Wallet:   player1,
		Type:     domain.EscrowDeposit,
		Amount:   betAmount,
		Currency: currency,
		TxHash:   signature,
		Status:   domain.EscrowConfirmed,
	}); err != nil {
		return domain.Duel{}, err
	}

	s.publish(ctx, "duels", "duel_created", duel.ID, map[string]any{
		"duel_id": duel.DuelID,
		"player1": duel.Player1,
		"amount":  duel.BetAmount,
	})
	return duel, nil
}

// Join fills the open slot of a pending duel. The challenger's deposit is
// verified before the slot is taken; an unfunded join leaves the duel open.
// The database does the check-and-set, so exactly one of two racing joins
// wins; the loser gets ErrDuelFull, which matches ErrInvalidState.
func (s *DuelService) Join(ctx context.Context, id uuid.UUID, player2 string, amount uint64, signature string) (domain.Duel, error) {
	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: join: %w", err)
	}
	if !duel.Joinable(s.now()) {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: duel %s not joinable", domain.ErrInvalidState, id)
	}
	if player2 == duel.Player1 {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: cannot join own duel", domain.ErrInvalidState)
	}
	if amount != duel.BetAmount {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: stake %d does not match %d", domain.ErrInvalidAmount, amount, duel.BetAmount)
	}
	if _, err := solana.PublicKeyFromBase58(player2); err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: invalid wallet %q", domain.ErrInvalidAmount, player2)
	}
	if signature == "" {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: deposit signature is required", domain.ErrInvalidAmount)
	}

	conf, err := s.escrow.Confirm(ctx, signature)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: join deposit: %w", err)
	}
	if conf.Amount < duel.BetAmount {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: deposit %d below stake %d", domain.ErrInvalidAmount, conf.Amount, duel.BetAmount)
	}

	if err := s.duels.ClaimPendingSlot(ctx, id, player2, amount); err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: join: %w", err)
	}
	if _, err := s.escrow.Record(ctx, domain.EscrowTransaction{
		DuelID:   &duel.ID,
		Wallet:   player2,
		Type:     domain.EscrowDeposit,
		Amount:   duel.BetAmount,
		Currency: duel.Currency,
		TxHash:   signature,
		Status:   domain.EscrowConfirmed,
	}); err != nil {
		return domain.Duel{}, err
	}

	// Both slots are funded; walk the deposit states and let confirmation
	// take the duel to countdown.
	for _, step := range [][2]domain.DuelStatus{
		{domain.DuelStatusMatched, domain.DuelStatusWaitingDeposit},
		{domain.DuelStatusWaitingDeposit, domain.DuelStatusConfirmingTransaction},
	} {
		if err := s.duels.UpdateStatus(ctx, id, step[0], step[1]); err != nil && !errors.Is(err, domain.ErrInvalidState) {
			return domain.Duel{}, fmt.Errorf("duel_service: join: %w", err)
		}
	}
	if err := s.ConfirmDeposits(ctx, id); err != nil {
		return domain.Duel{}, err
	}

	duel, err = s.duels.GetByID(ctx, id)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: join reload: %w", err)
	}

	s.publish(ctx, "duels", "duel_matched", id, map[string]any{
		"player2": player2,
	})
	return duel, nil
}

// SubmitDeposit books a replacement deposit transaction into the escrow
// ledger and moves the duel into confirmation. Deposits are normally
// verified at create and join time; this path covers a transaction that
// later failed and was re-sent. Submitting the same tx hash again is
// harmless.
func (s *DuelService) SubmitDeposit(ctx context.Context, id uuid.UUID, wallet, txHash string) error {
	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("duel_service: deposit: %w", err)
	}
	switch duel.Status {
	case domain.DuelStatusWaitingDeposit, domain.DuelStatusConfirmingTransaction:
	default:
		return fmt.Errorf("duel_service: %w: duel %s is %s", domain.ErrInvalidState, id, duel.Status)
	}
	if wallet != duel.Player1 && (duel.Player2 == nil || wallet != *duel.Player2) {
		return fmt.Errorf("duel_service: %w: wallet %s is not a participant", domain.ErrInvalidState, wallet)
	}

	if _, err := s.escrow.Record(ctx, domain.EscrowTransaction{
		DuelID:   &duel.ID,
		Wallet:   wallet,
		Type:     domain.EscrowDeposit,
		Amount:   duel.BetAmount,
		Currency: duel.Currency,
		TxHash:   txHash,
		Status:   domain.EscrowPending,
	}); err != nil {
		return err
	}

	if err := s.duels.UpdateStatus(ctx, id, domain.DuelStatusWaitingDeposit, domain.DuelStatusConfirmingTransaction); err != nil && !errors.Is(err, domain.ErrInvalidState) {
		return fmt.Errorf("duel_service: deposit: %w", err)
	}

	return s.ConfirmDeposits(ctx, id)
}

// ConfirmDeposits re-verifies the duel's pending deposits against the
// ledger and advances to COUNTDOWN once both players' funds are confirmed.
// Callers may invoke it repeatedly; verification is idempotent and pending
// deposits simply stay pending.
func (s *DuelService) ConfirmDeposits(ctx context.Context, id uuid.UUID) error {
	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("duel_service: confirm deposits: %w", err)
	}
	if duel.Status != domain.DuelStatusConfirmingTransaction {
		return nil
	}

	entries, err := s.escrow.ListByDuel(ctx, id)
	if err != nil {
		return err
	}

	confirmed := map[string]bool{}
	for _, e := range entries {
		if e.Type != domain.EscrowDeposit {
			continue
		}
		switch e.Status {
		case domain.EscrowConfirmed:
			confirmed[e.Wallet] = true
			continue
		case domain.EscrowFailed:
			continue
		}

		conf, err := s.escrow.Confirm(ctx, e.TxHash)
		if err != nil {
			if errors.Is(err, domain.ErrVerificationPending) {
				continue
			}
			if errors.Is(err, domain.ErrVerificationFailed) {
				s.logger.WarnContext(ctx, "deposit verification failed",
					slog.String("duel", id.String()),
					slog.String("tx_hash", e.TxHash),
					slog.String("error", err.Error()),
				)
				continue
			}
			return err
		}
		if conf.Amount < duel.BetAmount {
			s.logger.WarnContext(ctx, "deposit amount below stake",
				slog.String("duel", id.String()),
				slog.String("tx_hash", e.TxHash),
				slog.Uint64("amount", conf.Amount),
				slog.Uint64("stake", duel.BetAmount),
			)
			// An underfunded transaction can never back this duel.
			if err := s.escrow.MarkFailed(ctx, e.TxHash); err != nil {
				return err
			}
			continue
		}
		confirmed[e.Wallet] = true
	}

	if duel.Player2 == nil || !confirmed[duel.Player1] || !confirmed[*duel.Player2] {
		return nil
	}

	if err := s.duels.UpdateStatus(ctx, id, domain.DuelStatusConfirmingTransaction, domain.DuelStatusCountdown); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return nil
		}
		return fmt.Errorf("duel_service: confirm deposits: %w", err)
	}

	s.publish(ctx, "duels", "duel_countdown", id, nil)
	return nil
}

// Start locks the entry price and flips a countdown duel to active, on
// chain first and then locally.
func (s *DuelService) Start(ctx context.Context, id uuid.UUID) (domain.Duel, error) {
	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: start: %w", err)
	}
	if duel.Status != domain.DuelStatusCountdown {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: duel %s is %s", domain.ErrInvalidState, id, duel.Status)
	}

	price, _, err := s.prices.GetPrice(ctx, priceSymbol(duel.Currency))
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: entry price: %w", err)
	}

	if _, err := s.submitter.StartDuel(ctx, duel.DuelID, s.scalePrice(price)); err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: start on chain: %w", err)
	}

	now := s.now()
	duel.Status = domain.DuelStatusActive
	duel.EntryPrice = &price
	duel.StartedAt = &now
	if err := s.duels.Update(ctx, duel); err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: start: %w", err)
	}

	s.publish(ctx, "duels", "duel_started", id, map[string]any{
		"entry_price": price,
	})
	return duel, nil
}

// Resolve settles an active duel: reads the exit price, decides the winner,
// submits the on-chain settlement and books the payout. The per-duel lock
// and the payout guard together make a second resolution a no-op.
func (s *DuelService) Resolve(ctx context.Context, id uuid.UUID) (domain.Duel, error) {
	unlock, err := s.locks.Acquire(ctx, "duel:"+id.String(), 30*time.Second)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: resolve: %w", err)
	}
	defer unlock()

	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: resolve: %w", err)
	}
	if duel.Status != domain.DuelStatusActive && duel.Status != domain.DuelStatusFinished {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: duel %s is %s", domain.ErrInvalidState, id, duel.Status)
	}
	if duel.EntryPrice == nil || duel.Player2 == nil {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: duel %s missing entry price or player", domain.ErrInvalidState, id)
	}

	if has, err := s.escrow.HasPayout(ctx, id); err != nil {
		return domain.Duel{}, err
	} else if has {
		return domain.Duel{}, fmt.Errorf("duel_service: %w", domain.ErrPayoutExists)
	}

	exitPrice := duel.ExitPrice
	if exitPrice == nil {
		p, _, err := s.prices.GetPrice(ctx, priceSymbol(duel.Currency))
		if err != nil {
			return domain.Duel{}, fmt.Errorf("duel_service: exit price: %w", err)
		}
		exitPrice = &p
	}

	if duel.Status == domain.DuelStatusActive {
		duel.Status = domain.DuelStatusFinished
		duel.ExitPrice = exitPrice
		if err := s.duels.Update(ctx, duel); err != nil {
			return domain.Duel{}, fmt.Errorf("duel_service: resolve: %w", err)
		}
	}

	return s.settle(ctx, duel, *exitPrice)
}

// settle pays out a finished duel and writes the immutable result.
func (s *DuelService) settle(ctx context.Context, duel domain.Duel, exitPrice float64) (domain.Duel, error) {
	entry := *duel.EntryPrice
	winner, loser, winnerID := decideWinner(duel, entry, exitPrice)

	player1Key, err := solana.PublicKeyFromBase58(duel.Player1)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: settle: %w", err)
	}
	player2Key, err := solana.PublicKeyFromBase58(*duel.Player2)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: settle: %w", err)
	}

	now := s.now()
	pot := duel.Pot()
	fee := pot * uint64(s.cfg.FeeBps) / 10_000

	if winner == nil {
		// Push: both stakes go back, no fee taken.
		sig, err := s.submitter.CancelDuel(ctx, duel.DuelID, player1Key)
		if err != nil {
			return domain.Duel{}, fmt.Errorf("duel_service: refund on chain: %w", err)
		}
		for i, wallet := range []string{duel.Player1, *duel.Player2} {
			if _, err := s.escrow.Record(ctx, domain.EscrowTransaction{
				DuelID:   &duel.ID,
				Wallet:   wallet,
				Type:     domain.EscrowRefund,
				Amount:   duel.BetAmount,
				Currency: duel.Currency,
				TxHash:   fmt.Sprintf("%s:refund:%d", sig, i+1),
				Status:   domain.EscrowPending,
			}); err != nil {
				return domain.Duel{}, err
			}
		}
		fee = 0
	} else {
		sig, err := s.submitter.ResolveDuel(ctx, duel.DuelID, s.scalePrice(exitPrice), winnerID, player1Key, player2Key)
		if err != nil {
			return domain.Duel{}, fmt.Errorf("duel_service: resolve on chain: %w", err)
		}
		if _, err := s.escrow.Record(ctx, domain.EscrowTransaction{
			DuelID:   &duel.ID,
			Wallet:   *winner,
			Type:     domain.EscrowPayout,
			Amount:   pot - fee,
			Currency: duel.Currency,
			TxHash:   sig,
			Status:   domain.EscrowPending,
		}); err != nil {
			return domain.Duel{}, err
		}
		if fee > 0 {
			if _, err := s.escrow.Record(ctx, domain.EscrowTransaction{
				DuelID:   &duel.ID,
				Wallet:   *winner,
				Type:     domain.EscrowFee,
				Amount:   fee,
				Currency: duel.Currency,
				TxHash:   sig + ":fee",
				Status:   domain.EscrowPending,
			}); err != nil {
				return domain.Duel{}, err
			}
		}
	}

	amountWon := uint64(0)
	if winner != nil {
		amountWon = pot - fee
	}
	result := domain.DuelResult{
		ID:          uuid.New(),
		DuelID:      duel.ID,
		Winner:      winner,
		Loser:       loser,
		AmountWon:   amountWon,
		FeeAmount:   fee,
		Currency:    duel.Currency,
		EntryPrice:  entry,
		ExitPrice:   exitPrice,
		PriceChange: exitPrice - entry,
		Direction:   duel.Direction,
		WasCorrect:  winner != nil && *winner == duel.Player1,
		CreatedAt:   now,
	}
	if err := s.results.Insert(ctx, result); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return domain.Duel{}, fmt.Errorf("duel_service: store result: %w", err)
	}
	if err := s.stats.ApplyResult(ctx, result, duel.BetAmount); err != nil {
		s.logger.WarnContext(ctx, "duel_service: stats update failed",
			slog.String("duel", duel.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if winner == nil {
		metrics.Settlements.WithLabelValues("push").Inc()
	} else {
		metrics.Settlements.WithLabelValues("won").Inc()
	}

	duel.Status = domain.DuelStatusResolved
	duel.Winner = winner
	duel.ExitPrice = &exitPrice
	duel.ResolvedAt = &now
	if err := s.duels.Update(ctx, duel); err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: settle: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "duel_resolved", map[string]any{
		"duel":       duel.ID.String(),
		"winner":     winner,
		"amount_won": amountWon,
		"fee":        fee,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "duel_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}
	s.publish(ctx, "duels", "duel_resolved", duel.ID, map[string]any{
		"winner":     winner,
		"exit_price": exitPrice,
	})
	return duel, nil
}

// Claim settles a duel on behalf of its winner after the fact. The on-chain
// account is re-read and decoded first; settlement proceeds only when the
// chain agrees the duel finished and no payout is booked yet.
func (s *DuelService) Claim(ctx context.Context, id uuid.UUID, wallet string) (domain.Duel, error) {
	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: claim: %w", err)
	}
	if wallet != duel.Player1 && (duel.Player2 == nil || wallet != *duel.Player2) {
		return domain.Duel{}, fmt.Errorf("duel_service: %w: wallet %s is not a participant", domain.ErrInvalidState, wallet)
	}

	onchain, err := s.reader.Duel(ctx, duel.DuelID)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: claim chain read: %w", err)
	}
	switch onchain.Status {
	case ledger.ChainDuelActive, ledger.ChainDuelFinished:
	default:
		return domain.Duel{}, fmt.Errorf("duel_service: %w: chain status %d", domain.ErrInvalidState, onchain.Status)
	}

	return s.Resolve(ctx, id)
}

// Cancel withdraws a duel that found no challenger. Only the creator may
// cancel, and only once the join window has elapsed; the check-and-set on
// the status makes it succeed exactly once. The creator's verified deposit
// is refunded.
func (s *DuelService) Cancel(ctx context.Context, id uuid.UUID, wallet string) error {
	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("duel_service: cancel: %w", err)
	}
	if wallet != duel.Player1 {
		return fmt.Errorf("duel_service: %w: only the creator may cancel", domain.ErrInvalidState)
	}
	switch duel.Status {
	case domain.DuelStatusPending, domain.DuelStatusExpired:
	default:
		return fmt.Errorf("duel_service: %w: duel %s is %s", domain.ErrInvalidState, id, duel.Status)
	}
	if duel.Player2 != nil {
		return fmt.Errorf("duel_service: %w: duel %s already has a challenger", domain.ErrInvalidState, id)
	}
	if duel.ExpiresAt != nil && s.now().Before(*duel.ExpiresAt) {
		return fmt.Errorf("duel_service: %w: join window for duel %s is still open", domain.ErrInvalidState, id)
	}

	if err := s.duels.UpdateStatus(ctx, id, duel.Status, domain.DuelStatusCancelled); err != nil {
		return fmt.Errorf("duel_service: cancel: %w", err)
	}

	// Refund the creator's deposit if one was already confirmed.
	entries, err := s.escrow.ListByDuel(ctx, id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Type != domain.EscrowDeposit || e.Wallet != duel.Player1 || e.Status != domain.EscrowConfirmed {
			continue
		}
		player1Key, err := solana.PublicKeyFromBase58(duel.Player1)
		if err != nil {
			return fmt.Errorf("duel_service: cancel: %w", err)
		}
		sig, err := s.submitter.CancelDuel(ctx, duel.DuelID, player1Key)
		if err != nil {
			return fmt.Errorf("duel_service: cancel on chain: %w", err)
		}
		if _, err := s.escrow.Record(ctx, domain.EscrowTransaction{
			DuelID:   &duel.ID,
			Wallet:   duel.Player1,
			Type:     domain.EscrowRefund,
			Amount:   e.Amount,
			Currency: duel.Currency,
			TxHash:   sig,
			Status:   domain.EscrowPending,
		}); err != nil {
			return err
		}
		break
	}

	metrics.Settlements.WithLabelValues("cancelled").Inc()
	s.publish(ctx, "duels", "duel_cancelled", id, nil)
	return nil
}

// ExpirePending flips pending duels whose join window has closed. The
// sweeper calls this periodically; it returns how many duels were expired.
func (s *DuelService) ExpirePending(ctx context.Context, limit int) (int, error) {
	expired, err := s.duels.ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("duel_service: list expired: %w", err)
	}

	n := 0
	for _, duel := range expired {
		if err := s.duels.UpdateStatus(ctx, duel.ID, domain.DuelStatusPending, domain.DuelStatusExpired); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			return n, fmt.Errorf("duel_service: expire %s: %w", duel.ID, err)
		}
		n++
		metrics.Settlements.WithLabelValues("expired").Inc()
		s.publish(ctx, "duels", "duel_expired", duel.ID, nil)
	}
	return n, nil
}

// Get returns a duel by ID.
func (s *DuelService) Get(ctx context.Context, id uuid.UUID) (domain.Duel, error) {
	duel, err := s.duels.GetByID(ctx, id)
	if err != nil {
		return domain.Duel{}, fmt.Errorf("duel_service: get %s: %w", id, err)
	}
	return duel, nil
}

// ListByStatus returns duels in a given state with pagination.
func (s *DuelService) ListByStatus(ctx context.Context, status domain.DuelStatus, opts domain.ListOpts) ([]domain.Duel, error) {
	duels, err := s.duels.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("duel_service: list %s: %w", status, err)
	}
	return duels, nil
}

// ListByPlayer returns a wallet's duels with pagination.
func (s *DuelService) ListByPlayer(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Duel, error) {
	duels, err := s.duels.ListByPlayer(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("duel_service: list for %q: %w", wallet, err)
	}
	return duels, nil
}

// scalePrice converts a float feed price to the program's integer units.
func (s *DuelService) scalePrice(price float64) uint64 {
	scale := s.cfg.PriceScale
	if scale == 0 {
		scale = 1e6
	}
	return uint64(price * scale)
}

// decideWinner applies player 1's direction call to the price move. A flat
// price is a push: no winner, both stakes refunded.
func decideWinner(duel domain.Duel, entry, exit float64) (winner, loser *string, winnerID uint8) {
	if exit == entry {
		return nil, nil, 0
	}
	up := exit > entry
	player1Wins := (duel.Direction == domain.DirectionUp) == up
	if player1Wins {
		return &duel.Player1, duel.Player2, 1
	}
	return duel.Player2, &duel.Player1, 2
}

// publish emits a lifecycle event on the signal bus; failures are logged,
// never propagated.
func (s *DuelService) publish(ctx context.Context, channel, event string, id uuid.UUID, extra map[string]any) {
	payload := map[string]any{
		"event": event,
		"id":    id.String(),
		"ts":    s.now().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "duel_service: publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
