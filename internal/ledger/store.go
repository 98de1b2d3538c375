package ledger

import (
	"context"
	"time"
)

// NewPoll são os dados para criar uma enquete.
type NewPoll struct {
	Question string
	Options  []string
	Category string
	Status   PollStatus
	EndsAt   *time.Time
}

// NewBet são os dados para inserir uma aposta.
type NewBet struct {
	PollID          int64
	UserID          string
	OptionText      string
	Amount          int64
	PotentialPayout int64
}

// PollFilter filtra a listagem de enquetes. Campos vazios não filtram.
type PollFilter struct {
	Query    string
	Category string
}

// Store é o armazenamento durável de saldos, enquetes e apostas.
// Não assume transações multi-statement entre chamadas: cada método é atômico por si só.
type Store interface {
	// Saldos
	GetUser(ctx context.Context, userID string) (*UserBalance, error)
	// AdjustBalance aplica delta ao saldo de forma atômica por usuário.
	// Falha com ErrInsufficientFunds quando o saldo ficaria negativo.
	AdjustBalance(ctx context.Context, userID string, delta int64, entryType, ref string) (int64, error)
	// CreditPayout credita o payout de uma aposta vencedora e marca payout_applied
	// na mesma operação. Devolve applied=false quando o payout já tinha sido aplicado.
	CreditPayout(ctx context.Context, betID int64) (newBalance int64, applied bool, err error)
	ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error)

	// Enquetes
	CreatePoll(ctx context.Context, p NewPoll) (*Poll, error)
	GetPoll(ctx context.Context, pollID int64) (*Poll, error)
	ListPolls(ctx context.Context, f PollFilter) ([]Poll, error)
	DeletePoll(ctx context.Context, pollID int64) error
	// UpdatePollOptions troca as opções; falha com ErrOptionsLocked se já houver aposta.
	UpdatePollOptions(ctx context.Context, pollID int64, options []string) error
	IncrementPollTotal(ctx context.Context, pollID int64, amount int64) error
	// ClaimResolution grava winning_option e o instante da reivindicação somente se
	// ainda não houver opção gravada e o status não for terminal.
	ClaimResolution(ctx context.Context, pollID int64, winningOption string) (bool, error)
	// TakeOverResolution assume uma reivindicação com a mesma opção cujo último
	// heartbeat é mais antigo que staleAfter. Devolve false se ela ainda está viva.
	TakeOverResolution(ctx context.Context, pollID int64, winningOption string, staleAfter time.Duration) (bool, error)
	// RenewResolution atualiza o heartbeat da reivindicação.
	RenewResolution(ctx context.Context, pollID int64) error
	// ClosePoll move o status para CLOSED.
	ClosePoll(ctx context.Context, pollID int64) error
	// ListStalledResolutions devolve enquetes reivindicadas, não fechadas e sem heartbeat há mais de staleAfter.
	ListStalledResolutions(ctx context.Context, staleAfter time.Duration) ([]Poll, error)

	// Apostas
	// InsertBet falha com ErrPollClosed se a enquete estiver fechada ou com resolução reivindicada.
	InsertBet(ctx context.Context, b NewBet) (*Bet, error)
	ListBetsByPoll(ctx context.Context, pollID int64) ([]Bet, error)
	ListBetsByUserAndPoll(ctx context.Context, userID string, pollID int64) ([]Bet, error)
	SetBetResolution(ctx context.Context, betID int64, r Resolution) error
	// ListPendingSettlements devolve apostas de enquetes CLOSED ainda sem resolução
	// ou vencedoras sem payout aplicado, em ordem de id.
	ListPendingSettlements(ctx context.Context, limit int) ([]Bet, error)

	Ping(ctx context.Context) error
}
