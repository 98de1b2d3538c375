package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/poll-betting-platform/internal/ledger"
)

// Store implementa ledger.Store sobre Postgres.
// Mutações de saldo usam lock pessimista (SELECT ... FOR UPDATE) na linha do usuário,
// o que serializa débitos concorrentes do mesmo usuário entre processos.
type Store struct{ db *sql.DB }

var _ ledger.Store = (*Store)(nil)

func New(db *sql.DB) *Store { return &Store{db: db} }

// códigos SQLSTATE usados no mapeamento de erros
const (
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

func mapNotFound(err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (*ledger.UserBalance, error) {
	var u ledger.UserBalance
	err := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(username, ''), balance, updated_at FROM users WHERE id=$1`, userID).
		Scan(&u.UserID, &u.Username, &u.Balance, &u.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err, ledger.ErrUserNotFound)
	}
	return &u, nil
}

// AdjustBalance aplica delta ao saldo e registra o lançamento no ledger na mesma transação.
func (s *Store) AdjustBalance(ctx context.Context, userID string, delta int64, entryType, ref string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id=$1 FOR UPDATE`, userID).Scan(&balance); err != nil {
		return 0, mapNotFound(err, ledger.ErrUserNotFound)
	}
	if delta < 0 && balance+delta < 0 {
		return balance, ledger.ErrInsufficientFunds
	}

	var newBalance int64
	if err = tx.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + $1, updated_at = NOW() WHERE id=$2 RETURNING balance`,
		delta, userID).Scan(&newBalance); err != nil {
		return 0, err
	}
	if err = insertEntry(ctx, tx, userID, entryType, delta, ref); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// CreditPayout marca payout_applied e credita o saldo na mesma transação.
// Idempotente: se o payout já tiver sido aplicado, não faz nada.
func (s *Store) CreditPayout(ctx context.Context, betID int64) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var userID string
	var payout int64
	var isWinner sql.NullBool
	var applied bool
	if err = tx.QueryRowContext(ctx,
		`SELECT user_id, potential_payout, is_winner, payout_applied FROM bets WHERE id=$1 FOR UPDATE`, betID).
		Scan(&userID, &payout, &isWinner, &applied); err != nil {
		return 0, false, mapNotFound(err, ledger.ErrBetNotFound)
	}

	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id=$1 FOR UPDATE`, userID).Scan(&balance); err != nil {
		return 0, false, mapNotFound(err, ledger.ErrUserNotFound)
	}
	if applied || !isWinner.Valid || !isWinner.Bool {
		return balance, false, nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE bets SET payout_applied = TRUE WHERE id=$1`, betID); err != nil {
		return 0, false, err
	}
	if err = tx.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + $1, updated_at = NOW() WHERE id=$2 RETURNING balance`,
		payout, userID).Scan(&balance); err != nil {
		return 0, false, err
	}
	if err = insertEntry(ctx, tx, userID, ledger.EntryPayout, payout, ledger.BetRef(betID)); err != nil {
		return 0, false, err
	}
	if err = tx.Commit(); err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, userID, entryType string, amount int64, ref string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries(user_id, entry_type, amount, ref) VALUES($1,$2,$3,$4)`,
		userID, entryType, amount, ref)
	return err
}

func (s *Store) ListEntries(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, entry_type, amount, ref, created_at
		FROM ledger_entries
		WHERE user_id=$1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.Entry{}
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Ref, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreatePoll insere a enquete e suas opções; se as opções falharem, nada é gravado.
func (s *Store) CreatePoll(ctx context.Context, np ledger.NewPoll) (*ledger.Poll, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p := ledger.Poll{
		Question: np.Question,
		Options:  append([]string(nil), np.Options...),
		Category: np.Category,
		Status:   np.Status,
		EndsAt:   np.EndsAt,
	}
	if err = tx.QueryRowContext(ctx, `
		INSERT INTO polls(question, category, status, total_bets, ends_at)
		VALUES($1,$2,$3,0,$4)
		RETURNING id, created_at`,
		np.Question, np.Category, string(np.Status), nullTime(np.EndsAt)).Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, err
	}
	for i, opt := range np.Options {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO poll_options(poll_id, position, option_text) VALUES($1,$2,$3)`,
			p.ID, i, opt); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

const pollColumns = `id, question, COALESCE(category, ''), status, total_bets, COALESCE(winning_option, ''), created_at, ends_at, resolution_claimed_at`

func scanPoll(row interface{ Scan(...any) error }) (*ledger.Poll, error) {
	var p ledger.Poll
	var status string
	var endsAt, claimedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Question, &p.Category, &status, &p.TotalBets, &p.WinningOption, &p.CreatedAt, &endsAt, &claimedAt); err != nil {
		return nil, err
	}
	p.Status = ledger.PollStatus(status)
	if endsAt.Valid {
		t := endsAt.Time
		p.EndsAt = &t
	}
	if claimedAt.Valid {
		p.ResolutionClaimedAt = claimedAt.Time
	}
	return &p, nil
}

func (s *Store) GetPoll(ctx context.Context, pollID int64) (*ledger.Poll, error) {
	p, err := scanPoll(s.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE id=$1`, pollID))
	if err != nil {
		return nil, mapNotFound(err, ledger.ErrPollNotFound)
	}
	opts, err := s.optionsFor(ctx, []int64{pollID})
	if err != nil {
		return nil, err
	}
	p.Options = opts[pollID]
	return p, nil
}

func (s *Store) ListPolls(ctx context.Context, f ledger.PollFilter) ([]ledger.Poll, error) {
	q := `SELECT ` + pollColumns + ` FROM polls WHERE 1=1`
	args := []any{}
	// busca literal: % e _ digitados pelo usuário não viram curingas
	if v := strings.TrimSpace(f.Query); v != "" {
		args = append(args, v)
		q += ` AND position(lower($1) in lower(question)) > 0`
	}
	if f.Category != "" {
		args = append(args, f.Category)
		if len(args) == 1 {
			q += ` AND category = $1`
		} else {
			q += ` AND category = $2`
		}
	}
	q += ` ORDER BY created_at DESC, id DESC`
	return s.queryPolls(ctx, q, args...)
}

func (s *Store) queryPolls(ctx context.Context, q string, args ...any) ([]ledger.Poll, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.Poll{}
	ids := []int64{}
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	opts, err := s.optionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Options = opts[out[i].ID]
	}
	return out, nil
}

func (s *Store) optionsFor(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT poll_id, option_text FROM poll_options
		WHERE poll_id = ANY($1)
		ORDER BY poll_id, position`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var opt string
		if err := rows.Scan(&id, &opt); err != nil {
			return nil, err
		}
		out[id] = append(out[id], opt)
	}
	return out, rows.Err()
}

// DeletePoll remove a enquete; opções e apostas caem em cascata (ON DELETE CASCADE).
func (s *Store) DeletePoll(ctx context.Context, pollID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM polls WHERE id=$1`, pollID)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrPollNotFound)
}

func (s *Store) UpdatePollOptions(ctx context.Context, pollID int64, options []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	if err = tx.QueryRowContext(ctx, `SELECT id FROM polls WHERE id=$1 FOR UPDATE`, pollID).Scan(&id); err != nil {
		return mapNotFound(err, ledger.ErrPollNotFound)
	}
	var hasBets bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bets WHERE poll_id=$1)`, pollID).Scan(&hasBets); err != nil {
		return err
	}
	if hasBets {
		return ledger.ErrOptionsLocked
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM poll_options WHERE poll_id=$1`, pollID); err != nil {
		return err
	}
	for i, opt := range options {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO poll_options(poll_id, position, option_text) VALUES($1,$2,$3)`, pollID, i, opt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// IncrementPollTotal soma no agregado com UPDATE relativo, sem read-then-write.
func (s *Store) IncrementPollTotal(ctx context.Context, pollID int64, amount int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE polls SET total_bets = total_bets + $1 WHERE id=$2`, amount, pollID)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrPollNotFound)
}

// ClaimResolution é o portão de exclusividade da resolução: só um chamador
// consegue gravar winning_option enquanto a enquete não estiver fechada.
func (s *Store) ClaimResolution(ctx context.Context, pollID int64, winningOption string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE polls SET winning_option = $1, resolution_claimed_at = NOW()
		WHERE id = $2 AND winning_option IS NULL AND status <> 'CLOSED'`, winningOption, pollID)
	if err != nil {
		return false, err
	}
	return s.affectedOrMissing(ctx, res, pollID)
}

// TakeOverResolution compara o heartbeat com o relógio do banco, não com o do processo.
func (s *Store) TakeOverResolution(ctx context.Context, pollID int64, winningOption string, staleAfter time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE polls SET resolution_claimed_at = NOW()
		WHERE id = $1 AND winning_option = $2 AND status <> 'CLOSED'
		  AND (resolution_claimed_at IS NULL OR resolution_claimed_at <= NOW() - make_interval(secs => $3))`,
		pollID, winningOption, staleAfter.Seconds())
	if err != nil {
		return false, err
	}
	return s.affectedOrMissing(ctx, res, pollID)
}

func (s *Store) RenewResolution(ctx context.Context, pollID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE polls SET resolution_claimed_at = NOW() WHERE id=$1 AND winning_option IS NOT NULL`, pollID)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrPollNotFound)
}

// affectedOrMissing devolve true se o UPDATE condicional pegou a linha e
// ErrPollNotFound se a enquete não existe.
func (s *Store) affectedOrMissing(ctx context.Context, res sql.Result, pollID int64) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if err := s.requirePoll(ctx, pollID); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (s *Store) requirePoll(ctx context.Context, pollID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM polls WHERE id=$1)`, pollID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ledger.ErrPollNotFound
	}
	return nil
}

func (s *Store) ClosePoll(ctx context.Context, pollID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE polls SET status = 'CLOSED' WHERE id=$1`, pollID)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrPollNotFound)
}

func (s *Store) ListStalledResolutions(ctx context.Context, staleAfter time.Duration) ([]ledger.Poll, error) {
	return s.queryPolls(ctx, `SELECT `+pollColumns+` FROM polls
		WHERE winning_option IS NOT NULL AND status <> 'CLOSED'
		  AND (resolution_claimed_at IS NULL OR resolution_claimed_at <= NOW() - make_interval(secs => $1))
		ORDER BY id`, staleAfter.Seconds())
}

func (s *Store) InsertBet(ctx context.Context, nb ledger.NewBet) (*ledger.Bet, error) {
	b := ledger.Bet{
		PollID:          nb.PollID,
		UserID:          nb.UserID,
		OptionText:      nb.OptionText,
		Amount:          nb.Amount,
		PotentialPayout: nb.PotentialPayout,
		Resolution:      ledger.Unresolved,
	}
	// FOR SHARE serializa com ClaimResolution: ou a aposta entra antes da
	// reivindicação (e a resolução a enxerga), ou não entra.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bets(poll_id, user_id, option_text, amount, potential_payout, is_winner, payout_applied)
		SELECT p.id, $2, $3, $4, $5, NULL, FALSE
		FROM polls p
		WHERE p.id = $1 AND p.status <> 'CLOSED' AND p.winning_option IS NULL
		FOR SHARE
		RETURNING id, created_at`,
		nb.PollID, nb.UserID, nb.OptionText, nb.Amount, nb.PotentialPayout).Scan(&b.ID, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.requirePoll(ctx, nb.PollID); err != nil {
			return nil, err
		}
		return nil, ledger.ErrPollClosed
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqForeignKeyViolation:
				if strings.Contains(pqErr.Constraint, "user") {
					return nil, ledger.ErrUserNotFound
				}
				return nil, ledger.ErrPollNotFound
			case pqCheckViolation:
				return nil, ledger.ErrInvalidInput
			}
		}
		return nil, err
	}
	return &b, nil
}

const betColumns = `id, poll_id, user_id, option_text, amount, potential_payout, is_winner, payout_applied, created_at`

func (s *Store) ListBetsByPoll(ctx context.Context, pollID int64) ([]ledger.Bet, error) {
	return s.queryBets(ctx, `SELECT `+betColumns+` FROM bets WHERE poll_id=$1 ORDER BY id`, pollID)
}

func (s *Store) ListBetsByUserAndPoll(ctx context.Context, userID string, pollID int64) ([]ledger.Bet, error) {
	return s.queryBets(ctx, `SELECT `+betColumns+` FROM bets WHERE user_id=$1 AND poll_id=$2 ORDER BY id`, userID, pollID)
}

func (s *Store) queryBets(ctx context.Context, q string, args ...any) ([]ledger.Bet, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.Bet{}
	for rows.Next() {
		var b ledger.Bet
		var isWinner sql.NullBool
		if err := rows.Scan(&b.ID, &b.PollID, &b.UserID, &b.OptionText, &b.Amount, &b.PotentialPayout,
			&isWinner, &b.PayoutApplied, &b.CreatedAt); err != nil {
			return nil, err
		}
		if isWinner.Valid {
			v := isWinner.Bool
			b.Resolution = ledger.ResolutionFromIsWinner(&v)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) SetBetResolution(ctx context.Context, betID int64, r ledger.Resolution) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bets SET is_winner=$1 WHERE id=$2`, r.IsWinner(), betID)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrBetNotFound)
}

func (s *Store) ListPendingSettlements(ctx context.Context, limit int) ([]ledger.Bet, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryBets(ctx, `
		SELECT b.id, b.poll_id, b.user_id, b.option_text, b.amount, b.potential_payout,
		       b.is_winner, b.payout_applied, b.created_at
		FROM bets b
		JOIN polls p ON p.id = b.poll_id
		WHERE p.status = 'CLOSED'
		  AND (b.is_winner IS NULL OR (b.is_winner AND NOT b.payout_applied))
		ORDER BY b.id
		LIMIT $1`, limit)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
