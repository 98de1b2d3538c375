package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/shared/lock"
)

// Store implementa ledger.Store em memória. Usado em testes e no modo STORE_DRIVER=memory.
// Mutações de saldo são serializadas por usuário através de uma tabela de mutexes.
type Store struct {
	users *lock.Keyed

	mu      sync.RWMutex
	balance map[string]*ledger.UserBalance
	polls   map[int64]*ledger.Poll
	bets    map[int64]*ledger.Bet
	entries []ledger.Entry

	nextPollID  int64
	nextBetID   int64
	nextEntryID int64
	now         func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   lock.NewKeyed(),
		balance: make(map[string]*ledger.UserBalance),
		polls:   make(map[int64]*ledger.Poll),
		bets:    make(map[int64]*ledger.Bet),
		now:     time.Now,
	}
}

// SetClock troca a fonte de tempo do store.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutUser cria ou sobrescreve um usuário com o saldo informado.
func (s *Store) PutUser(userID, username string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance[userID] = &ledger.UserBalance{UserID: userID, Username: username, Balance: balance, UpdatedAt: s.now()}
}

func (s *Store) GetUser(_ context.Context, userID string) (*ledger.UserBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.balance[userID]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) AdjustBalance(_ context.Context, userID string, delta int64, entryType, ref string) (int64, error) {
	unlock := s.users.Lock(userID)
	defer unlock()

	s.mu.RLock()
	u, ok := s.balance[userID]
	var cur int64
	if ok {
		cur = u.Balance
	}
	s.mu.RUnlock()
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	if delta < 0 && cur+delta < 0 {
		return cur, ledger.ErrInsufficientFunds
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u.Balance = cur + delta
	u.UpdatedAt = s.now()
	s.appendEntryLocked(userID, entryType, delta, ref)
	return u.Balance, nil
}

func (s *Store) CreditPayout(_ context.Context, betID int64) (int64, bool, error) {
	s.mu.RLock()
	b, ok := s.bets[betID]
	var userID string
	if ok {
		userID = b.UserID
	}
	s.mu.RUnlock()
	if !ok {
		return 0, false, ledger.ErrBetNotFound
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.balance[userID]
	if !ok {
		return 0, false, ledger.ErrUserNotFound
	}
	if b.Resolution != ledger.Winner || b.PayoutApplied {
		return u.Balance, false, nil
	}
	b.PayoutApplied = true
	u.Balance += b.PotentialPayout
	u.UpdatedAt = s.now()
	s.appendEntryLocked(userID, ledger.EntryPayout, b.PotentialPayout, ledger.BetRef(betID))
	return u.Balance, true, nil
}

func (s *Store) ListEntries(_ context.Context, userID string, limit int) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []ledger.Entry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID != userID {
			continue
		}
		out = append(out, s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) appendEntryLocked(userID, entryType string, amount int64, ref string) {
	s.nextEntryID++
	s.entries = append(s.entries, ledger.Entry{
		ID:        s.nextEntryID,
		UserID:    userID,
		Type:      entryType,
		Amount:    amount,
		Ref:       ref,
		CreatedAt: s.now(),
	})
}

func (s *Store) CreatePoll(_ context.Context, p ledger.NewPoll) (*ledger.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPollID++
	poll := &ledger.Poll{
		ID:        s.nextPollID,
		Question:  p.Question,
		Options:   slices.Clone(p.Options),
		Category:  p.Category,
		Status:    p.Status,
		CreatedAt: s.now(),
		EndsAt:    p.EndsAt,
	}
	s.polls[poll.ID] = poll
	return clonePoll(poll), nil
}

func (s *Store) GetPoll(_ context.Context, pollID int64) (*ledger.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[pollID]
	if !ok {
		return nil, ledger.ErrPollNotFound
	}
	return clonePoll(p), nil
}

func (s *Store) ListPolls(_ context.Context, f ledger.PollFilter) ([]ledger.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := []ledger.Poll{}
	for _, p := range s.polls {
		if q != "" && !strings.Contains(strings.ToLower(p.Question), q) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, *clonePoll(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeletePoll(_ context.Context, pollID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[pollID]; !ok {
		return ledger.ErrPollNotFound
	}
	delete(s.polls, pollID)
	for id, b := range s.bets {
		if b.PollID == pollID {
			delete(s.bets, id)
		}
	}
	return nil
}

func (s *Store) UpdatePollOptions(_ context.Context, pollID int64, options []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return ledger.ErrPollNotFound
	}
	for _, b := range s.bets {
		if b.PollID == pollID {
			return ledger.ErrOptionsLocked
		}
	}
	p.Options = slices.Clone(options)
	return nil
}

func (s *Store) IncrementPollTotal(_ context.Context, pollID int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return ledger.ErrPollNotFound
	}
	p.TotalBets += amount
	return nil
}

func (s *Store) ClaimResolution(_ context.Context, pollID int64, winningOption string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return false, ledger.ErrPollNotFound
	}
	if p.Status.Terminal() || p.WinningOption != "" {
		return false, nil
	}
	p.WinningOption = winningOption
	p.ResolutionClaimedAt = s.now()
	return true, nil
}

func (s *Store) TakeOverResolution(_ context.Context, pollID int64, winningOption string, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return false, ledger.ErrPollNotFound
	}
	now := s.now()
	if p.Status.Terminal() || p.WinningOption != winningOption || !stale(p, now, staleAfter) {
		return false, nil
	}
	p.ResolutionClaimedAt = now
	return true, nil
}

func (s *Store) RenewResolution(_ context.Context, pollID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok || p.WinningOption == "" {
		return ledger.ErrPollNotFound
	}
	p.ResolutionClaimedAt = s.now()
	return nil
}

func stale(p *ledger.Poll, now time.Time, staleAfter time.Duration) bool {
	return !p.ResolutionClaimedAt.After(now.Add(-staleAfter))
}

func (s *Store) ClosePoll(_ context.Context, pollID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[pollID]
	if !ok {
		return ledger.ErrPollNotFound
	}
	p.Status = ledger.PollClosed
	return nil
}

func (s *Store) ListStalledResolutions(_ context.Context, staleAfter time.Duration) ([]ledger.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := []ledger.Poll{}
	for _, p := range s.polls {
		if p.WinningOption != "" && !p.Status.Terminal() && stale(p, now, staleAfter) {
			out = append(out, *clonePoll(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) InsertBet(_ context.Context, nb ledger.NewBet) (*ledger.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[nb.PollID]
	if !ok {
		return nil, ledger.ErrPollNotFound
	}
	if p.Status.Terminal() || p.ResolutionClaimed() {
		return nil, ledger.ErrPollClosed
	}
	if _, ok := s.balance[nb.UserID]; !ok {
		return nil, ledger.ErrUserNotFound
	}
	s.nextBetID++
	b := &ledger.Bet{
		ID:              s.nextBetID,
		PollID:          nb.PollID,
		UserID:          nb.UserID,
		OptionText:      nb.OptionText,
		Amount:          nb.Amount,
		PotentialPayout: nb.PotentialPayout,
		Resolution:      ledger.Unresolved,
		CreatedAt:       s.now(),
	}
	s.bets[b.ID] = b
	cp := *b
	return &cp, nil
}

func (s *Store) ListBetsByPoll(_ context.Context, pollID int64) ([]ledger.Bet, error) {
	return s.filterBets(func(b *ledger.Bet) bool { return b.PollID == pollID }), nil
}

func (s *Store) ListBetsByUserAndPoll(_ context.Context, userID string, pollID int64) ([]ledger.Bet, error) {
	return s.filterBets(func(b *ledger.Bet) bool { return b.PollID == pollID && b.UserID == userID }), nil
}

func (s *Store) filterBets(keep func(*ledger.Bet) bool) []ledger.Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []ledger.Bet{}
	for _, b := range s.bets {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) SetBetResolution(_ context.Context, betID int64, r ledger.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betID]
	if !ok {
		return ledger.ErrBetNotFound
	}
	b.Resolution = r
	return nil
}

func (s *Store) ListPendingSettlements(_ context.Context, limit int) ([]ledger.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []ledger.Bet{}
	for _, b := range s.bets {
		p, ok := s.polls[b.PollID]
		if !ok || !p.Status.Terminal() {
			continue
		}
		if b.Resolution == ledger.Unresolved || (b.Resolution == ledger.Winner && !b.PayoutApplied) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func clonePoll(p *ledger.Poll) *ledger.Poll {
	cp := *p
	cp.Options = slices.Clone(p.Options)
	return &cp
}
