// Package recovery retoma resoluções interrompidas e conclui liquidações pendentes.
package recovery

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/resolution"
)

// StalledLister lista enquetes com resolução reivindicada, não fechada e sem heartbeat recente
type StalledLister interface {
	ListStalledResolutions(ctx context.Context, staleAfter time.Duration) ([]ledger.Poll, error)
}

// Resolver é o subconjunto do resolution.Engine usado pelo scanner
type Resolver interface {
	Resume(ctx context.Context, poll ledger.Poll) (*resolution.Summary, error)
	SettlePending(ctx context.Context, limit int) (int, error)
}

// Report resume uma passada do scanner
type Report struct {
	Resumed      int
	ResumeErrors int
	Settled      int
}

// Scanner roda periodicamente as duas etapas de recuperação.
type Scanner struct {
	Log      *zap.Logger
	Store    StalledLister
	Resolver Resolver
	Interval time.Duration
	Batch    int // limite de apostas pendentes por passada
	// StaleAfter deve ser o mesmo lease TTL do resolution.Engine
	StaleAfter time.Duration

	OnPass func(Report) // métricas
}

// Run executa uma passada imediatamente e depois a cada Interval, até o contexto ser cancelado
func (s *Scanner) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.Log.Warn("recovery pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce retoma as resoluções paradas e depois reprocessa apostas pendentes de enquetes fechadas.
func (s *Scanner) RunOnce(ctx context.Context) (Report, error) {
	var rep Report

	staleAfter := s.StaleAfter
	if staleAfter <= 0 {
		staleAfter = resolution.DefaultLeaseTTL
	}
	stalled, err := s.Store.ListStalledResolutions(ctx, staleAfter)
	if err != nil {
		return rep, err
	}
	for _, p := range stalled {
		sum, err := s.Resolver.Resume(ctx, p)
		switch {
		case err == nil:
			rep.Resumed++
			s.Log.Info("resolution resumed",
				zap.Int64("poll_id", p.ID),
				zap.String("winning_option", p.WinningOption),
				zap.Int("winners", sum.WinnersCount),
				zap.Int("failed_payouts", sum.FailedPayouts()),
			)
		case errors.Is(err, ledger.ErrResolutionInProgress), errors.Is(err, ledger.ErrAlreadyClosed):
			// outra instância está resolvendo ou acabou de fechar
			s.Log.Debug("resolution not resumed", zap.Int64("poll_id", p.ID), zap.Error(err))
		default:
			rep.ResumeErrors++
			s.Log.Error("resume resolution failed", zap.Int64("poll_id", p.ID), zap.Error(err))
		}
	}

	n, err := s.Resolver.SettlePending(ctx, s.Batch)
	rep.Settled = n
	if n > 0 {
		s.Log.Info("pending settlements completed", zap.Int("count", n))
	}
	if s.OnPass != nil {
		s.OnPass(rep)
	}
	return rep, err
}
