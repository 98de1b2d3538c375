package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/poll-betting-platform/internal/ledger"
)

func newPollWithBet(t *testing.T, s *Store) (*ledger.Poll, *ledger.Bet) {
	t.Helper()
	ctx := context.Background()
	s.PutUser("u1", "alice", 100)
	p, err := s.CreatePoll(ctx, ledger.NewPoll{Question: "Q?", Options: []string{"Yes", "No"}, Status: ledger.PollOpen})
	require.NoError(t, err)
	b, err := s.InsertBet(ctx, ledger.NewBet{PollID: p.ID, UserID: "u1", OptionText: "Yes", Amount: 10, PotentialPayout: 20})
	require.NoError(t, err)
	return p, b
}

func TestAdjustBalanceRejectsOverdraft(t *testing.T) {
	s := New()
	s.PutUser("u1", "alice", 30)

	bal, err := s.AdjustBalance(context.Background(), "u1", -40, ledger.EntryBetDebit, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, int64(30), bal)

	u, err := s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), u.Balance)

	entries, err := s.ListEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAdjustBalanceUnknownUser(t *testing.T) {
	_, err := New().AdjustBalance(context.Background(), "ghost", 10, ledger.EntryAdjustment, "")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCreditPayoutAppliesOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, b := newPollWithBet(t, s)

	_, applied, err := s.CreditPayout(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, applied, "unresolved bet must not be paid")

	require.NoError(t, s.SetBetResolution(ctx, b.ID, ledger.Winner))

	bal, applied, err := s.CreditPayout(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(120), bal)

	bal, applied, err = s.CreditPayout(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(120), bal)

	entries, err := s.ListEntries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryPayout, entries[0].Type)
	assert.Equal(t, ledger.BetRef(b.ID), entries[0].Ref)
}

func TestClaimResolutionIsExclusive(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := newPollWithBet(t, s)

	ok, err := s.ClaimResolution(ctx, p.ID, "Yes")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimResolution(ctx, p.ID, "No")
	require.NoError(t, err)
	assert.False(t, ok)

	stalled, err := s.ListStalledResolutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "Yes", stalled[0].WinningOption)

	require.NoError(t, s.ClosePoll(ctx, p.ID))
	stalled, err = s.ListStalledResolutions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, stalled)

	_, err = s.ClaimResolution(ctx, 999, "Yes")
	assert.ErrorIs(t, err, ledger.ErrPollNotFound)
}

func TestResolutionLeaseExpires(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := newPollWithBet(t, s)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.SetClock(func() time.Time { return now })

	ok, err := s.ClaimResolution(ctx, p.ID, "Yes")
	require.NoError(t, err)
	require.True(t, ok)

	now = base.Add(time.Minute)
	took, err := s.TakeOverResolution(ctx, p.ID, "Yes", 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, took, "heartbeat still fresh")
	stalled, err := s.ListStalledResolutions(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stalled)

	// o heartbeat empurra o prazo
	require.NoError(t, s.RenewResolution(ctx, p.ID))
	now = base.Add(2*time.Minute + time.Second)
	took, err = s.TakeOverResolution(ctx, p.ID, "Yes", 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, took)

	now = base.Add(4 * time.Minute)
	stalled, err = s.ListStalledResolutions(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	took, err = s.TakeOverResolution(ctx, p.ID, "No", 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, took, "different option")
	took, err = s.TakeOverResolution(ctx, p.ID, "Yes", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, took)

	// quem assumiu renovou o heartbeat
	took, err = s.TakeOverResolution(ctx, p.ID, "Yes", 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, took)

	_, err = s.TakeOverResolution(ctx, 999, "Yes", 0)
	assert.ErrorIs(t, err, ledger.ErrPollNotFound)
	assert.ErrorIs(t, s.RenewResolution(ctx, 999), ledger.ErrPollNotFound)
}

func TestInsertBetRejectedOnceResolutionClaimed(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := newPollWithBet(t, s)

	ok, err := s.ClaimResolution(ctx, p.ID, "Yes")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = s.InsertBet(ctx, ledger.NewBet{PollID: p.ID, UserID: "u1", OptionText: "No", Amount: 5, PotentialPayout: 10})
	assert.ErrorIs(t, err, ledger.ErrPollClosed)

	require.NoError(t, s.ClosePoll(ctx, p.ID))
	_, err = s.InsertBet(ctx, ledger.NewBet{PollID: p.ID, UserID: "u1", OptionText: "No", Amount: 5, PotentialPayout: 10})
	assert.ErrorIs(t, err, ledger.ErrPollClosed)

	bets, err := s.ListBetsByPoll(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, bets, 1)
}

func TestUpdatePollOptionsLockedAfterBet(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := newPollWithBet(t, s)
	err := s.UpdatePollOptions(ctx, p.ID, []string{"A", "B"})
	assert.ErrorIs(t, err, ledger.ErrOptionsLocked)

	p2, err := s.CreatePoll(ctx, ledger.NewPoll{Question: "Other", Options: []string{"A"}})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePollOptions(ctx, p2.ID, []string{"A", "B"}))
	got, err := s.GetPoll(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.Options)
}

func TestDeletePollCascadesBets(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := newPollWithBet(t, s)
	require.NoError(t, s.DeletePoll(ctx, p.ID))

	bets, err := s.ListBetsByUserAndPoll(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.Empty(t, bets)
	assert.ErrorIs(t, s.DeletePoll(ctx, p.ID), ledger.ErrPollNotFound)
}

func TestListPollsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreatePoll(ctx, ledger.NewPoll{Question: "Will it rain?", Options: []string{"Yes"}, Category: "weather"})
	require.NoError(t, err)
	_, err = s.CreatePoll(ctx, ledger.NewPoll{Question: "Who wins the final?", Options: []string{"A"}, Category: "sports"})
	require.NoError(t, err)

	all, err := s.ListPolls(ctx, ledger.PollFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Who wins the final?", all[0].Question)

	got, err := s.ListPolls(ctx, ledger.PollFilter{Query: "RAIN"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "weather", got[0].Category)

	got, err = s.ListPolls(ctx, ledger.PollFilter{Category: "sports"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestListPollsSearchIsLiteral(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreatePoll(ctx, ledger.NewPoll{Question: "Will it rain?", Options: []string{"Yes"}})
	require.NoError(t, err)
	_, err = s.CreatePoll(ctx, ledger.NewPoll{Question: "Turnout above 50%?", Options: []string{"Yes"}})
	require.NoError(t, err)

	got, err := s.ListPolls(ctx, ledger.PollFilter{Query: "%"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Turnout above 50%?", got[0].Question)

	got, err = s.ListPolls(ctx, ledger.PollFilter{Query: "rain_"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertBetRequiresPollAndUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.InsertBet(ctx, ledger.NewBet{PollID: 1, UserID: "u1", OptionText: "Yes", Amount: 1})
	assert.ErrorIs(t, err, ledger.ErrPollNotFound)

	p, err := s.CreatePoll(ctx, ledger.NewPoll{Question: "Q", Options: []string{"Yes"}})
	require.NoError(t, err)
	_, err = s.InsertBet(ctx, ledger.NewBet{PollID: p.ID, UserID: "ghost", OptionText: "Yes", Amount: 1})
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}
