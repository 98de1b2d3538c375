package metrics

import "github.com/prometheus/client_golang/prometheus"

// Platform agrupa os coletores de negócio compartilhados pelos engines.
// Um *Platform nil é válido e não registra nada (útil em testes).
type Platform struct {
	betsPlaced         *prometheus.CounterVec
	betAmount          prometheus.Counter
	payouts            prometheus.Counter
	payoutAmount       prometheus.Counter
	settlementFailures *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	gameRounds         *prometheus.CounterVec
}

func NewPlatform(reg prometheus.Registerer) *Platform {
	p := &Platform{
		betsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poll_bets_placed_total", Help: "apostas por resultado",
		}, []string{"result"}),
		betAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poll_bet_amount_total", Help: "soma apostada",
		}),
		payouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poll_payouts_total", Help: "payouts aplicados",
		}),
		payoutAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poll_payout_amount_total", Help: "soma paga a vencedores",
		}),
		settlementFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poll_settlement_failures_total", Help: "falhas de liquidação por estágio",
		}, []string{"stage"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poll_resolutions_total", Help: "resoluções por resultado",
		}, []string{"result"}),
		gameRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_rounds_total", Help: "rodadas de mini-game por jogo e desfecho",
		}, []string{"game", "outcome"}),
	}
	reg.MustRegister(p.betsPlaced, p.betAmount, p.payouts, p.payoutAmount,
		p.settlementFailures, p.resolutions, p.gameRounds)
	return p
}

func (p *Platform) BetPlaced(result string, amount int64) {
	if p == nil {
		return
	}
	p.betsPlaced.WithLabelValues(result).Inc()
	if result == "ok" {
		p.betAmount.Add(float64(amount))
	}
}

func (p *Platform) Payout(amount int64) {
	if p == nil {
		return
	}
	p.payouts.Inc()
	p.payoutAmount.Add(float64(amount))
}

func (p *Platform) SettlementFailure(stage string) {
	if p == nil {
		return
	}
	p.settlementFailures.WithLabelValues(stage).Inc()
}

func (p *Platform) Resolution(result string) {
	if p == nil {
		return
	}
	p.resolutions.WithLabelValues(result).Inc()
}

func (p *Platform) GameRound(game string, won bool) {
	if p == nil {
		return
	}
	outcome := "loss"
	if won {
		outcome = "win"
	}
	p.gameRounds.WithLabelValues(game, outcome).Inc()
}
