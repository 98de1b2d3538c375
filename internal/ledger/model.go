package ledger

import (
	"slices"
	"strconv"
	"time"
)

// PollStatus representa o ciclo de vida de uma enquete.
// CLOSED é terminal: nenhuma transição sai dele.
type PollStatus string

const (
	PollPending PollStatus = "PENDING"
	PollOpen    PollStatus = "OPEN"
	PollClosed  PollStatus = "CLOSED"
)

// ParsePollStatus valida o status vindo de fora (payload HTTP ou banco).
func ParsePollStatus(s string) (PollStatus, bool) {
	switch PollStatus(s) {
	case PollPending, PollOpen, PollClosed:
		return PollStatus(s), true
	}
	return "", false
}

func (s PollStatus) Terminal() bool { return s == PollClosed }

// Resolution é o estado tri-valorado de uma aposta: sem resolução, vencedora ou perdedora.
type Resolution int

const (
	Unresolved Resolution = iota
	Winner
	Loser
)

func (r Resolution) String() string {
	switch r {
	case Winner:
		return "winner"
	case Loser:
		return "loser"
	default:
		return "unresolved"
	}
}

// IsWinner traduz para o formato persistido (is_winner nulo/true/false).
func (r Resolution) IsWinner() *bool {
	switch r {
	case Winner:
		v := true
		return &v
	case Loser:
		v := false
		return &v
	}
	return nil
}

// ResolutionFromIsWinner é o inverso de IsWinner.
func ResolutionFromIsWinner(v *bool) Resolution {
	if v == nil {
		return Unresolved
	}
	if *v {
		return Winner
	}
	return Loser
}

// UserBalance é o saldo inteiro de um usuário. Nunca fica negativo após uma operação bem-sucedida.
type UserBalance struct {
	UserID    string
	Username  string
	Balance   int64
	UpdatedAt time.Time
}

// Poll é a enquete sobre a qual as apostas são feitas.
type Poll struct {
	ID            int64
	Question      string
	Options       []string
	Category      string
	TotalBets     int64 // soma de amount de todas as apostas da enquete
	Status        PollStatus
	WinningOption string // vazio enquanto a resolução não foi reivindicada
	CreatedAt     time.Time
	EndsAt        *time.Time

	// ResolutionClaimedAt é o último heartbeat de quem resolve; zero sem reivindicação.
	ResolutionClaimedAt time.Time
}

func (p *Poll) HasOption(option string) bool {
	return slices.Contains(p.Options, option)
}

// ResolutionClaimed indica que alguém já reivindicou a resolução (winning_option gravado).
func (p *Poll) ResolutionClaimed() bool { return p.WinningOption != "" }

// Bet é uma aposta registrada. O payout potencial é fixado no momento da criação.
type Bet struct {
	ID              int64
	PollID          int64
	UserID          string
	OptionText      string
	Amount          int64
	PotentialPayout int64
	Resolution      Resolution
	PayoutApplied   bool
	CreatedAt       time.Time
}

// Entry é um lançamento no ledger, gravado junto de cada mudança de saldo.
type Entry struct {
	ID        int64
	UserID    string
	Type      string
	Amount    int64 // delta com sinal
	Ref       string
	CreatedAt time.Time
}

// Tipos de lançamento usados pelos serviços.
const (
	EntryBetDebit   = "BET_DEBIT"
	EntryBetRefund  = "BET_REFUND"
	EntryPayout     = "PAYOUT"
	EntryGameSettle = "GAME_SETTLE"
	EntryAdjustment = "ADJUSTMENT"
)

// BetRef é a referência gravada no ledger para lançamentos ligados a uma aposta.
func BetRef(betID int64) string { return "bet:" + strconv.FormatInt(betID, 10) }
