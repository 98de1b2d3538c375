package recovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/ledger/memory"
	"github.com/radieske/poll-betting-platform/internal/resolution"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/wallet"
)

func newStack(t *testing.T) (*memory.Store, *resolution.Engine) {
	t.Helper()
	log := zap.NewNop()
	st := memory.New()
	st.PutUser("u1", "alice", 0)
	st.PutUser("u2", "bob", 0)
	w := wallet.NewService(log, st)
	return st, resolution.NewEngine(log, st, w, stats.NewAggregator(log, st, nil))
}

// claimedPoll cria uma enquete com duas apostas e reivindica a resolução em claimedAt.
func claimedPoll(t *testing.T, st *memory.Store, claimedAt time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := st.CreatePoll(ctx, ledger.NewPoll{Question: "Q?", Options: []string{"Yes", "No"}, Status: ledger.PollOpen})
	require.NoError(t, err)
	_, err = st.InsertBet(ctx, ledger.NewBet{PollID: p.ID, UserID: "u1", OptionText: "Yes", Amount: 10, PotentialPayout: 20})
	require.NoError(t, err)
	_, err = st.InsertBet(ctx, ledger.NewBet{PollID: p.ID, UserID: "u2", OptionText: "No", Amount: 10, PotentialPayout: 20})
	require.NoError(t, err)

	st.SetClock(func() time.Time { return claimedAt })
	claimed, err := st.ClaimResolution(ctx, p.ID, "Yes")
	st.SetClock(time.Now)
	require.NoError(t, err)
	require.True(t, claimed)
	return p.ID
}

// stalledPoll simula uma resolução que caiu logo depois da reivindicação
func stalledPoll(t *testing.T, st *memory.Store) int64 {
	t.Helper()
	return claimedPoll(t, st, time.Now().Add(-10*time.Minute))
}

func TestRunOnceResumesStalledResolution(t *testing.T) {
	ctx := context.Background()
	st, eng := newStack(t)
	pollID := stalledPoll(t, st)

	var passes []Report
	s := &Scanner{Log: zap.NewNop(), Store: st, Resolver: eng, Batch: 100, OnPass: func(r Report) { passes = append(passes, r) }}
	rep, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Resumed: 1}, rep)
	assert.Equal(t, []Report{rep}, passes)

	p, err := st.GetPoll(ctx, pollID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PollClosed, p.Status)
	u1, _ := st.GetUser(ctx, "u1")
	assert.Equal(t, int64(20), u1.Balance)

	// segunda passada não encontra nada e não paga de novo
	rep, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
	u1, _ = st.GetUser(ctx, "u1")
	assert.Equal(t, int64(20), u1.Balance)
}

func TestRunOnceSkipsLiveResolution(t *testing.T) {
	ctx := context.Background()
	st, eng := newStack(t)
	pollID := claimedPoll(t, st, time.Now())

	s := &Scanner{Log: zap.NewNop(), Store: st, Resolver: eng, Batch: 100, StaleAfter: time.Minute}
	rep, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)

	p, err := st.GetPoll(ctx, pollID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PollOpen, p.Status)
	u1, _ := st.GetUser(ctx, "u1")
	assert.Zero(t, u1.Balance)
}

func TestRunOnceSettlesPendingBets(t *testing.T) {
	ctx := context.Background()
	st, eng := newStack(t)
	p, err := st.CreatePoll(ctx, ledger.NewPoll{Question: "Q?", Options: []string{"Yes", "No"}, Status: ledger.PollOpen})
	require.NoError(t, err)
	b, err := st.InsertBet(ctx, ledger.NewBet{PollID: p.ID, UserID: "u1", OptionText: "Yes", Amount: 10, PotentialPayout: 20})
	require.NoError(t, err)
	// fechada com a aposta marcada e sem payout
	_, err = st.ClaimResolution(ctx, p.ID, "Yes")
	require.NoError(t, err)
	require.NoError(t, st.SetBetResolution(ctx, b.ID, ledger.Winner))
	require.NoError(t, st.ClosePoll(ctx, p.ID))

	s := &Scanner{Log: zap.NewNop(), Store: st, Resolver: eng, Batch: 100}
	rep, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Settled)

	u1, _ := st.GetUser(ctx, "u1")
	assert.Equal(t, int64(20), u1.Balance)
}

type fakeResolver struct {
	resumeErr error
	settled   atomic.Int32
}

func (f *fakeResolver) Resume(_ context.Context, p ledger.Poll) (*resolution.Summary, error) {
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	return &resolution.Summary{PollID: p.ID, WinningOption: p.WinningOption}, nil
}

func (f *fakeResolver) SettlePending(context.Context, int) (int, error) {
	f.settled.Add(1)
	return 0, nil
}

func TestRunOnceCountsResumeErrors(t *testing.T) {
	st, _ := newStack(t)
	stalledPoll(t, st)

	s := &Scanner{Log: zap.NewNop(), Store: st, Resolver: &fakeResolver{resumeErr: errors.New("boom")}}
	rep, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ResumeErrors)

	s.Resolver = &fakeResolver{resumeErr: ledger.ErrResolutionInProgress}
	rep, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	st, _ := newStack(t)
	fr := &fakeResolver{}
	s := &Scanner{Log: zap.NewNop(), Store: st, Resolver: fr, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return fr.settled.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
