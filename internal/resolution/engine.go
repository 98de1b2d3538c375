// Package resolution fecha enquetes: marca vencedoras e perdedoras, paga os vencedores
// e move a enquete para CLOSED. Payouts são aplicados no máximo uma vez por aposta.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/shared/lock"
	"github.com/radieske/poll-betting-platform/internal/shared/metrics"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/wallet"
	"github.com/radieske/poll-betting-platform/pkg/contracts/events"
)

// Publisher recebe o evento de enquete resolvida.
type Publisher interface {
	PublishPollResolved(ctx context.Context, e events.PollResolved) error
}

// PayoutResult é o desfecho de uma aposta vencedora.
// Applied indica que o crédito aconteceu nesta execução (false se já estava pago).
type PayoutResult struct {
	BetID   int64
	UserID  string
	Amount  int64
	Applied bool
}

// BetFailure é uma aposta que não pôde ser marcada ou paga.
type BetFailure struct {
	BetID  int64
	UserID string
	Stage  string // "flag" ou "payout"
	Err    error
}

// Summary resume uma resolução.
type Summary struct {
	PollID        int64
	WinningOption string
	WinnersCount  int
	TotalPaidOut  int64
	TotalBets     int
	Payouts       []PayoutResult
	Failures      []BetFailure
	Resumed       bool
}

func (s *Summary) FailedPayouts() int { return len(s.Failures) }

// DefaultLeaseTTL é o prazo sem heartbeat após o qual uma resolução é considerada parada.
const DefaultLeaseTTL = 2 * time.Minute

type Engine struct {
	log      *zap.Logger
	store    ledger.Store
	wallet   *wallet.Service
	stats    *stats.Aggregator
	running  *lock.Keyed
	locker   Locker
	leaseTTL time.Duration
	publ     Publisher
	metrics  *metrics.Platform
}

type Option func(*Engine)

// WithLocker ativa o lock distribuído por enquete antes da reivindicação no store.
func WithLocker(l Locker) Option { return func(e *Engine) { e.locker = l } }

// WithLeaseTTL define o TTL do lock distribuído e o prazo de heartbeat da reivindicação.
// O heartbeat roda a cada terço do TTL enquanto a liquidação estiver em andamento.
func WithLeaseTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.leaseTTL = d
		}
	}
}

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publ = p } }

func WithMetrics(m *metrics.Platform) Option { return func(e *Engine) { e.metrics = m } }

func NewEngine(log *zap.Logger, store ledger.Store, w *wallet.Service, agg *stats.Aggregator, opts ...Option) *Engine {
	e := &Engine{log: log, store: store, wallet: w, stats: agg, running: lock.NewKeyed(), leaseTTL: DefaultLeaseTTL}
	for _, o := range opts {
		o(e)
	}
	return e
}

func lockKey(pollID int64) string { return "poll-resolution:" + strconv.FormatInt(pollID, 10) }

// ResolvePoll resolve a enquete com a opção vencedora.
// Uma segunda chamada numa enquete CLOSED falha com ErrAlreadyClosed sem tocar em saldos.
// Enquanto outra resolução estiver viva (heartbeat dentro do TTL) a chamada falha com
// ErrResolutionInProgress; uma resolução parada é retomada se a opção for a mesma.
func (e *Engine) ResolvePoll(ctx context.Context, pollID int64, winningOption string) (*Summary, error) {
	sum, err := e.resolvePoll(ctx, pollID, winningOption)
	e.metrics.Resolution(outcomeLabel(err))
	return sum, err
}

func (e *Engine) resolvePoll(ctx context.Context, pollID int64, winningOption string) (*Summary, error) {
	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !poll.HasOption(winningOption) {
		return nil, ledger.ErrInvalidOption
	}
	if poll.Status.Terminal() {
		return nil, ledger.ErrAlreadyClosed
	}

	unlock, ok := e.running.TryLock(lockKey(pollID))
	if !ok {
		return nil, ledger.ErrResolutionInProgress
	}
	defer unlock()

	var lease Lease
	if e.locker != nil {
		lease, err = e.locker.Acquire(ctx, lockKey(pollID), e.leaseTTL)
		if errors.Is(err, ErrLockHeld) {
			return nil, ledger.ErrResolutionInProgress
		}
		if err != nil {
			// o lock é só a primeira barreira; a reivindicação no store continua garantindo exclusividade
			e.log.Warn("resolution lock unavailable; relying on store claim", zap.Int64("poll_id", pollID), zap.Error(err))
			lease = nil
		} else {
			defer lease.Release()
		}
	}

	claimed, err := e.store.ClaimResolution(ctx, pollID, winningOption)
	if err != nil {
		return nil, err
	}
	resumed := false
	if !claimed {
		cur, err := e.store.GetPoll(ctx, pollID)
		if err != nil {
			return nil, err
		}
		if cur.Status.Terminal() || cur.WinningOption != winningOption {
			return nil, ledger.ErrAlreadyClosed
		}
		took, err := e.store.TakeOverResolution(ctx, pollID, winningOption, e.leaseTTL)
		if err != nil {
			return nil, err
		}
		if !took {
			return nil, ledger.ErrResolutionInProgress
		}
		resumed = true
		e.log.Info("resuming interrupted resolution", zap.Int64("poll_id", pollID), zap.String("winning_option", winningOption))
	}

	// daqui em diante a resolução segue mesmo se o cliente desistir da requisição
	sctx := context.WithoutCancel(ctx)
	stop := e.heartbeat(sctx, pollID, lease)
	defer stop()
	return e.settle(sctx, pollID, winningOption, resumed)
}

// heartbeat renova a reivindicação no store e o lock distribuído até stop ser chamado.
func (e *Engine) heartbeat(ctx context.Context, pollID int64, lease Lease) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(max(e.leaseTTL/3, time.Millisecond))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			if err := e.store.RenewResolution(ctx, pollID); err != nil && ctx.Err() == nil {
				e.log.Warn("resolution heartbeat failed", zap.Int64("poll_id", pollID), zap.Error(err))
			}
			if lease == nil {
				continue
			}
			if err := lease.Extend(ctx, e.leaseTTL); err != nil && ctx.Err() == nil {
				e.log.Warn("resolution lock extend failed", zap.Int64("poll_id", pollID), zap.Error(err))
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Resume retoma uma resolução reivindicada e não fechada, com a opção já gravada.
func (e *Engine) Resume(ctx context.Context, poll ledger.Poll) (*Summary, error) {
	if !poll.ResolutionClaimed() {
		return nil, fmt.Errorf("poll %d has no claimed resolution: %w", poll.ID, ledger.ErrInvalidInput)
	}
	return e.ResolvePoll(ctx, poll.ID, poll.WinningOption)
}

func (e *Engine) settle(ctx context.Context, pollID int64, winningOption string, resumed bool) (*Summary, error) {
	sum := &Summary{PollID: pollID, WinningOption: winningOption, Resumed: resumed}
	seen := map[int64]bool{}

	// relista até estabilizar para pegar apostas gravadas durante a resolução
	for {
		bets, err := e.store.ListBetsByPoll(ctx, pollID)
		if err != nil {
			return nil, fmt.Errorf("list bets: %w", err)
		}
		fresh := 0
		for _, b := range bets {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			fresh++
			e.settleBet(ctx, sum, b, winningOption)
		}
		if fresh == 0 {
			break
		}
	}

	if err := e.store.ClosePoll(ctx, pollID); err != nil {
		return nil, fmt.Errorf("close poll: %w", err)
	}
	e.stats.Invalidate(ctx, pollID)

	if len(sum.Failures) > 0 {
		e.log.Warn("poll resolved with failures",
			zap.Int64("poll_id", pollID), zap.Int("failures", len(sum.Failures)))
	}
	e.log.Info("poll resolved",
		zap.Int64("poll_id", pollID),
		zap.String("winning_option", winningOption),
		zap.Int("winners", sum.WinnersCount),
		zap.Int64("total_paid_out", sum.TotalPaidOut),
		zap.Int("total_bets", sum.TotalBets),
		zap.Bool("resumed", resumed),
	)
	e.publish(ctx, sum)
	return sum, nil
}

// settleBet marca a aposta e, se vencedora, paga. Falhas são acumuladas no resumo.
func (e *Engine) settleBet(ctx context.Context, sum *Summary, b ledger.Bet, winningOption string) {
	sum.TotalBets++
	want := ledger.Loser
	if b.OptionText == winningOption {
		want = ledger.Winner
		sum.WinnersCount++
	}

	if b.Resolution != want {
		if err := e.store.SetBetResolution(ctx, b.ID, want); err != nil {
			e.fail(sum, b, "flag", err)
			return
		}
	}
	if want != ledger.Winner {
		return
	}

	_, applied, err := e.wallet.CreditPayout(ctx, b.ID)
	if err != nil {
		e.fail(sum, b, "payout", err)
		return
	}
	if applied {
		e.metrics.Payout(b.PotentialPayout)
	}
	sum.TotalPaidOut += b.PotentialPayout
	sum.Payouts = append(sum.Payouts, PayoutResult{
		BetID: b.ID, UserID: b.UserID, Amount: b.PotentialPayout, Applied: applied,
	})
}

func (e *Engine) fail(sum *Summary, b ledger.Bet, stage string, err error) {
	e.metrics.SettlementFailure(stage)
	e.log.Error("bet settlement failed",
		zap.Int64("poll_id", b.PollID), zap.Int64("bet_id", b.ID),
		zap.String("user_id", b.UserID), zap.String("stage", stage), zap.Error(err))
	sum.Failures = append(sum.Failures, BetFailure{BetID: b.ID, UserID: b.UserID, Stage: stage, Err: err})
}

// SettlePending reprocessa apostas de enquetes fechadas que ficaram sem marca ou sem payout.
// Devolve quantas foram concluídas nesta passada.
func (e *Engine) SettlePending(ctx context.Context, limit int) (int, error) {
	bets, err := e.store.ListPendingSettlements(ctx, limit)
	if err != nil {
		return 0, err
	}
	polls := map[int64]*ledger.Poll{}
	done := 0
	for _, b := range bets {
		p, ok := polls[b.PollID]
		if !ok {
			if p, err = e.store.GetPoll(ctx, b.PollID); err != nil {
				e.log.Warn("pending settlement: poll lookup failed", zap.Int64("poll_id", b.PollID), zap.Error(err))
				continue
			}
			polls[b.PollID] = p
		}
		if !p.ResolutionClaimed() {
			continue
		}
		sum := &Summary{PollID: p.ID, WinningOption: p.WinningOption}
		e.settleBet(ctx, sum, b, p.WinningOption)
		if len(sum.Failures) == 0 {
			done++
		}
	}
	return done, nil
}

func (e *Engine) publish(ctx context.Context, sum *Summary) {
	if e.publ == nil {
		return
	}
	err := e.publ.PublishPollResolved(ctx, events.PollResolved{
		PollID:        sum.PollID,
		WinningOption: sum.WinningOption,
		WinnersCount:  sum.WinnersCount,
		TotalPaidOut:  sum.TotalPaidOut,
		TotalBets:     sum.TotalBets,
		FailedPayouts: sum.FailedPayouts(),
	})
	if err != nil {
		e.log.Warn("publish poll_resolved failed", zap.Int64("poll_id", sum.PollID), zap.Error(err))
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, ledger.ErrResolutionInProgress):
		return "in_progress"
	case errors.Is(err, ledger.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
