// Package betting registra apostas em enquetes: débito do saldo, inserção da aposta
// e atualização do agregado, com crédito compensatório quando a inserção falha.
package betting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/shared/metrics"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/wallet"
	"github.com/radieske/poll-betting-platform/pkg/contracts/events"
)

// PayoutMultiplier é o payout fixo "dobro ou nada", independente do formato do pool.
const PayoutMultiplier = 2

// Publisher recebe o evento de aposta registrada. Falhas não afetam a aposta.
type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// Result é a aposta criada mais o saldo do usuário após o débito.
type Result struct {
	Bet        ledger.Bet
	NewBalance int64
}

type Engine struct {
	log     *zap.Logger
	store   ledger.Store
	wallet  *wallet.Service
	stats   *stats.Aggregator
	publ    Publisher
	metrics *metrics.Platform
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publ = p } }

func WithMetrics(m *metrics.Platform) Option { return func(e *Engine) { e.metrics = m } }

func NewEngine(log *zap.Logger, store ledger.Store, w *wallet.Service, agg *stats.Aggregator, opts ...Option) *Engine {
	e := &Engine{log: log, store: store, wallet: w, stats: agg}
	for _, o := range opts {
		o(e)
	}
	return e
}

// PotentialPayout calcula o payout fixado na criação da aposta.
func PotentialPayout(amount int64) int64 { return amount * PayoutMultiplier }

// PlaceBet valida, debita e registra a aposta.
// O débito vem imediatamente antes da inserção para encurtar a janela de falha parcial.
func (e *Engine) PlaceBet(ctx context.Context, userID string, pollID int64, optionText string, amount int64) (*Result, error) {
	res, err := e.placeBet(ctx, userID, pollID, optionText, amount)
	e.metrics.BetPlaced(resultLabel(err), amount)
	return res, err
}

func (e *Engine) placeBet(ctx context.Context, userID string, pollID int64, optionText string, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", ledger.ErrInvalidInput)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("userId required: %w", ledger.ErrInvalidInput)
	}

	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !poll.HasOption(optionText) {
		return nil, ledger.ErrInvalidOption
	}
	if poll.Status.Terminal() || poll.ResolutionClaimed() {
		return nil, ledger.ErrPollClosed
	}

	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	payout := PotentialPayout(amount)
	pollRef := "poll:" + strconv.FormatInt(pollID, 10)

	newBalance, err := e.wallet.AdjustBalance(ctx, userID, -amount, ledger.EntryBetDebit, pollRef)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, &ledger.InsufficientFundsError{Balance: newBalance, Required: amount}
		}
		return nil, err
	}

	bet, err := e.store.InsertBet(ctx, ledger.NewBet{
		PollID:          pollID,
		UserID:          userID,
		OptionText:      optionText,
		Amount:          amount,
		PotentialPayout: payout,
	})
	if err != nil {
		e.compensate(ctx, userID, pollID, amount, pollRef, err)
		// a resolução foi reivindicada entre a checagem e a inserção
		if errors.Is(err, ledger.ErrPollClosed) {
			return nil, ledger.ErrPollClosed
		}
		return nil, fmt.Errorf("insert bet: %w", ledger.ErrSettlementFailure)
	}

	if err := e.store.IncrementPollTotal(ctx, pollID, amount); err != nil {
		// aposta e débito já estão gravados; o agregado é recalculável a partir das apostas
		e.log.Error("poll total increment failed",
			zap.Int64("poll_id", pollID), zap.Int64("bet_id", bet.ID), zap.Error(err))
	}
	e.stats.Invalidate(ctx, pollID)

	e.publish(ctx, bet, newBalance)

	return &Result{Bet: *bet, NewBalance: newBalance}, nil
}

// compensate devolve o valor debitado quando a aposta não pôde ser gravada.
func (e *Engine) compensate(ctx context.Context, userID string, pollID, amount int64, ref string, cause error) {
	if errors.Is(cause, ledger.ErrPollClosed) {
		e.log.Info("poll closed after debit; refunding",
			zap.String("user_id", userID), zap.Int64("poll_id", pollID), zap.Int64("amount", amount))
	} else {
		e.metrics.SettlementFailure("insert_bet")
		e.log.Error("bet insert failed after debit; refunding",
			zap.String("user_id", userID), zap.Int64("poll_id", pollID), zap.Int64("amount", amount), zap.Error(cause))
	}

	// contexto próprio: o estorno precisa acontecer mesmo se a requisição foi cancelada
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := e.wallet.AdjustBalance(rctx, userID, amount, ledger.EntryBetRefund, ref); err != nil {
		e.metrics.SettlementFailure("refund")
		e.log.Error("compensating refund failed",
			zap.String("user_id", userID), zap.Int64("poll_id", pollID), zap.Int64("amount", amount), zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, bet *ledger.Bet, newBalance int64) {
	if e.publ == nil {
		return
	}
	err := e.publ.PublishBetPlaced(ctx, events.BetPlaced{
		BetID:           bet.ID,
		PollID:          bet.PollID,
		UserID:          bet.UserID,
		OptionText:      bet.OptionText,
		Amount:          bet.Amount,
		PotentialPayout: bet.PotentialPayout,
		NewBalance:      newBalance,
	})
	if err != nil {
		e.log.Warn("publish bet_placed failed", zap.Int64("bet_id", bet.ID), zap.Error(err))
	}
}

// UserBets lista as apostas de um usuário numa enquete.
func (e *Engine) UserBets(ctx context.Context, userID string, pollID int64) ([]ledger.Bet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("userId required: %w", ledger.ErrInvalidInput)
	}
	return e.store.ListBetsByUserAndPoll(ctx, userID, pollID)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrPollClosed):
		return "poll_closed"
	default:
		return "error"
	}
}
