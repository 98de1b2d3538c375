// Package wallet é o serviço de saldo: leitura e ajuste atômico por usuário.
package wallet

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
)

// Service expõe operações de saldo sobre o ledger.Store.
type Service struct {
	log   *zap.Logger
	store ledger.Store
}

func NewService(log *zap.Logger, store ledger.Store) *Service {
	return &Service{log: log, store: store}
}

// GetBalance devolve o saldo atual do usuário.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("userId required: %w", ledger.ErrInvalidInput)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// AdjustBalance aplica delta (positivo credita, negativo debita) e devolve o novo saldo.
// Com ErrInsufficientFunds o saldo retornado é o atual, sem alteração.
func (s *Service) AdjustBalance(ctx context.Context, userID string, delta int64, entryType, ref string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("userId required: %w", ledger.ErrInvalidInput)
	}
	if entryType == "" {
		entryType = ledger.EntryAdjustment
	}
	bal, err := s.store.AdjustBalance(ctx, userID, delta, entryType, ref)
	if err != nil {
		return bal, err
	}
	s.log.Debug("balance adjusted",
		zap.String("user_id", userID),
		zap.Int64("delta", delta),
		zap.String("entry_type", entryType),
		zap.Int64("new_balance", bal),
	)
	return bal, nil
}

// Deposit credita um valor positivo (operação administrativa).
func (s *Service) Deposit(ctx context.Context, userID string, amount int64, ref string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive: %w", ledger.ErrInvalidInput)
	}
	return s.AdjustBalance(ctx, userID, amount, ledger.EntryAdjustment, ref)
}

// CreditPayout aplica o payout de uma aposta vencedora no máximo uma vez.
func (s *Service) CreditPayout(ctx context.Context, betID int64) (int64, bool, error) {
	return s.store.CreditPayout(ctx, betID)
}

// Entries lista os lançamentos mais recentes do usuário.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.ListEntries(ctx, userID, limit)
}
