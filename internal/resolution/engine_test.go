package resolution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/betting"
	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/ledger/memory"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/wallet"
	"github.com/radieske/poll-betting-platform/pkg/contracts/events"
)

type fixture struct {
	store  *memory.Store
	bets   *betting.Engine
	engine *Engine
	pollID int64
}

func newFixture(t *testing.T, store ledger.Store, mem *memory.Store, opts ...Option) *fixture {
	t.Helper()
	log := zap.NewNop()
	w := wallet.NewService(log, store)
	agg := stats.NewAggregator(log, store, nil)

	mem.PutUser("a", "alice", 500)
	mem.PutUser("b", "bob", 300)
	p, err := mem.CreatePoll(context.Background(), ledger.NewPoll{
		Question: "Will it rain tomorrow?",
		Options:  []string{"Yes", "No"},
		Status:   ledger.PollOpen,
	})
	require.NoError(t, err)

	return &fixture{
		store:  mem,
		bets:   betting.NewEngine(log, store, w, agg),
		engine: NewEngine(log, store, w, agg, opts...),
		pollID: p.ID,
	}
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Balance
}

func (f *fixture) placeScenarioBets(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	res, err := f.bets.PlaceBet(ctx, "a", f.pollID, "Yes", 100)
	require.NoError(t, err)
	require.Equal(t, int64(400), res.NewBalance)
	res, err = f.bets.PlaceBet(ctx, "b", f.pollID, "No", 50)
	require.NoError(t, err)
	require.Equal(t, int64(250), res.NewBalance)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PollResolved
}

func (p *recordingPublisher) PublishPollResolved(_ context.Context, e events.PollResolved) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func TestResolveYesNoScenario(t *testing.T) {
	mem := memory.New()
	pub := &recordingPublisher{}
	f := newFixture(t, mem, mem, WithPublisher(pub))
	f.placeScenarioBets(t)
	ctx := context.Background()

	sum, err := f.engine.ResolvePoll(ctx, f.pollID, "Yes")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.WinnersCount)
	assert.Equal(t, int64(200), sum.TotalPaidOut)
	assert.Equal(t, 2, sum.TotalBets)
	assert.Zero(t, sum.FailedPayouts())
	assert.False(t, sum.Resumed)

	assert.Equal(t, int64(600), f.balance(t, "a"))
	assert.Equal(t, int64(250), f.balance(t, "b"))

	p, err := mem.GetPoll(ctx, f.pollID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PollClosed, p.Status)
	assert.Equal(t, "Yes", p.WinningOption)

	bets, err := mem.ListBetsByPoll(ctx, f.pollID)
	require.NoError(t, err)
	for _, b := range bets {
		assert.NotEqual(t, ledger.Unresolved, b.Resolution)
		if b.OptionText == "Yes" {
			assert.Equal(t, ledger.Winner, b.Resolution)
			assert.True(t, b.PayoutApplied)
		} else {
			assert.Equal(t, ledger.Loser, b.Resolution)
			assert.False(t, b.PayoutApplied)
		}
	}

	require.Len(t, pub.events, 1)
	assert.Equal(t, int64(200), pub.events[0].TotalPaidOut)
}

func TestResolveTwiceIsRejectedWithoutMutation(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, mem)
	f.placeScenarioBets(t)
	ctx := context.Background()

	_, err := f.engine.ResolvePoll(ctx, f.pollID, "Yes")
	require.NoError(t, err)
	entriesBefore, err := mem.ListEntries(ctx, "a", 0)
	require.NoError(t, err)

	for _, opt := range []string{"Yes", "No"} {
		_, err = f.engine.ResolvePoll(ctx, f.pollID, opt)
		assert.ErrorIs(t, err, ledger.ErrAlreadyClosed)
	}
	assert.Equal(t, int64(600), f.balance(t, "a"))
	assert.Equal(t, int64(250), f.balance(t, "b"))

	entriesAfter, err := mem.ListEntries(ctx, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, entriesBefore, entriesAfter)
}

func TestResolveValidation(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, mem)
	ctx := context.Background()

	_, err := f.engine.ResolvePoll(ctx, 999, "Yes")
	assert.ErrorIs(t, err, ledger.ErrPollNotFound)

	_, err = f.engine.ResolvePoll(ctx, f.pollID, "Maybe")
	assert.ErrorIs(t, err, ledger.ErrInvalidOption)

	p, err := mem.GetPoll(ctx, f.pollID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PollOpen, p.Status)
}

func TestResolveWithoutBets(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, mem)

	sum, err := f.engine.ResolvePoll(context.Background(), f.pollID, "No")
	require.NoError(t, err)
	assert.Zero(t, sum.TotalBets)
	assert.Zero(t, sum.WinnersCount)
	assert.Zero(t, sum.TotalPaidOut)
}

// slowListStore segura a liquidação para que chamadas concorrentes se sobreponham.
type slowListStore struct {
	ledger.Store
	delay time.Duration
}

func (s *slowListStore) ListBetsByPoll(ctx context.Context, pollID int64) ([]ledger.Bet, error) {
	time.Sleep(s.delay)
	return s.Store.ListBetsByPoll(ctx, pollID)
}

func payoutEntries(t *testing.T, mem *memory.Store, userID string) int {
	t.Helper()
	entries, err := mem.ListEntries(context.Background(), userID, 0)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.Type == ledger.EntryPayout {
			n++
		}
	}
	return n
}

func TestResolveConcurrentCallsPayOnce(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, &slowListStore{Store: mem, delay: 20 * time.Millisecond}, mem)
	f.placeScenarioBets(t)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.ResolvePoll(context.Background(), f.pollID, "Yes")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t,
			errors.Is(err, ledger.ErrResolutionInProgress) || errors.Is(err, ledger.ErrAlreadyClosed),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(600), f.balance(t, "a"))
	assert.Equal(t, int64(250), f.balance(t, "b"))
	assert.Equal(t, 1, payoutEntries(t, mem, "a"))
}

func TestResolveRejectsLiveClaimFromAnotherInstance(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, mem)
	f.placeScenarioBets(t)
	ctx := context.Background()

	// outra réplica acabou de reivindicar e ainda está liquidando
	ok, err := mem.ClaimResolution(ctx, f.pollID, "Yes")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.ResolvePoll(ctx, f.pollID, "Yes")
	assert.ErrorIs(t, err, ledger.ErrResolutionInProgress)
	assert.Equal(t, int64(400), f.balance(t, "a"))
	assert.Zero(t, payoutEntries(t, mem, "a"))

	stalled, err := mem.ListStalledResolutions(ctx, DefaultLeaseTTL)
	require.NoError(t, err)
	assert.Empty(t, stalled)

	bets, err := mem.ListBetsByPoll(ctx, f.pollID)
	require.NoError(t, err)
	for _, b := range bets {
		assert.Equal(t, ledger.Unresolved, b.Resolution)
	}
}

func TestResumeInterruptedResolution(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, mem)
	f.placeScenarioBets(t)
	ctx := context.Background()

	// processo anterior reivindicou a resolução e morreu antes de fechar
	mem.SetClock(func() time.Time { return time.Now().Add(-10 * time.Minute) })
	ok, err := mem.ClaimResolution(ctx, f.pollID, "Yes")
	mem.SetClock(time.Now)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.ResolvePoll(ctx, f.pollID, "No")
	assert.ErrorIs(t, err, ledger.ErrAlreadyClosed)

	stalled, err := mem.ListStalledResolutions(ctx, DefaultLeaseTTL)
	require.NoError(t, err)
	require.Len(t, stalled, 1)

	sum, err := f.engine.Resume(ctx, stalled[0])
	require.NoError(t, err)
	assert.True(t, sum.Resumed)
	assert.Equal(t, int64(200), sum.TotalPaidOut)
	assert.Equal(t, int64(600), f.balance(t, "a"))
}

// heartbeatStore conta renovações e, durante a liquidação, tenta assumir a resolução
// como faria outra réplica.
type heartbeatStore struct {
	ledger.Store
	mem      *memory.Store
	delay    time.Duration
	staleTTL time.Duration

	renewals atomic.Int32
	once     sync.Once
	tookOver bool
}

func (s *heartbeatStore) RenewResolution(ctx context.Context, pollID int64) error {
	s.renewals.Add(1)
	return s.Store.RenewResolution(ctx, pollID)
}

func (s *heartbeatStore) ListBetsByPoll(ctx context.Context, pollID int64) ([]ledger.Bet, error) {
	s.once.Do(func() {
		time.Sleep(s.delay)
		took, err := s.mem.TakeOverResolution(ctx, pollID, "Yes", s.staleTTL)
		if err == nil {
			s.tookOver = took
		}
	})
	return s.Store.ListBetsByPoll(ctx, pollID)
}

type countingLease struct {
	extends  atomic.Int32
	released atomic.Int32
}

func (l *countingLease) Extend(context.Context, time.Duration) error {
	l.extends.Add(1)
	return nil
}

func (l *countingLease) Release() { l.released.Add(1) }

type grantingLocker struct{ lease *countingLease }

func (g grantingLocker) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return g.lease, nil
}

func TestResolveRenewsLeaseWhileSettling(t *testing.T) {
	const ttl = 90 * time.Millisecond
	mem := memory.New()
	hb := &heartbeatStore{Store: mem, mem: mem, delay: 2 * ttl, staleTTL: ttl}
	lease := &countingLease{}
	f := newFixture(t, hb, mem, WithLocker(grantingLocker{lease: lease}), WithLeaseTTL(ttl))
	f.placeScenarioBets(t)

	sum, err := f.engine.ResolvePoll(context.Background(), f.pollID, "Yes")
	require.NoError(t, err)
	assert.False(t, sum.Resumed)
	assert.Equal(t, int64(600), f.balance(t, "a"))

	assert.False(t, hb.tookOver, "a renewed claim must not look stalled")
	assert.GreaterOrEqual(t, hb.renewals.Load(), int32(1))
	assert.GreaterOrEqual(t, lease.extends.Load(), int32(1))
	assert.Equal(t, int32(1), lease.released.Load())

	// o heartbeat para junto com a liquidação
	n := hb.renewals.Load()
	time.Sleep(ttl)
	assert.Equal(t, n, hb.renewals.Load())
}

// flakyPayoutStore falha o primeiro CreditPayout de cada aposta.
type flakyPayoutStore struct {
	ledger.Store
	mu     sync.Mutex
	failed map[int64]bool
}

func (s *flakyPayoutStore) CreditPayout(ctx context.Context, betID int64) (int64, bool, error) {
	s.mu.Lock()
	first := !s.failed[betID]
	s.failed[betID] = true
	s.mu.Unlock()
	if first {
		return 0, false, errors.New("timeout")
	}
	return s.Store.CreditPayout(ctx, betID)
}

func TestFailedPayoutIsRecoveredLater(t *testing.T) {
	mem := memory.New()
	flaky := &flakyPayoutStore{Store: mem, failed: map[int64]bool{}}
	f := newFixture(t, flaky, mem)
	f.placeScenarioBets(t)
	ctx := context.Background()

	sum, err := f.engine.ResolvePoll(ctx, f.pollID, "Yes")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FailedPayouts())
	assert.Equal(t, "payout", sum.Failures[0].Stage)
	assert.Zero(t, sum.TotalPaidOut)
	assert.Equal(t, int64(400), f.balance(t, "a"))

	p, err := mem.GetPoll(ctx, f.pollID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PollClosed, p.Status)

	done, err := f.engine.SettlePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, int64(600), f.balance(t, "a"))

	done, err = f.engine.SettlePending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.Equal(t, int64(600), f.balance(t, "a"))
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return nil, ErrLockHeld
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return nil, errors.New("redis unreachable")
}

func TestResolveLockHeld(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, mem, WithLocker(heldLocker{}))
	f.placeScenarioBets(t)

	_, err := f.engine.ResolvePoll(context.Background(), f.pollID, "Yes")
	assert.ErrorIs(t, err, ledger.ErrResolutionInProgress)
	assert.Equal(t, int64(400), f.balance(t, "a"))
}

func TestResolveFallsBackToStoreClaimWhenLockUnavailable(t *testing.T) {
	mem := memory.New()
	f := newFixture(t, mem, mem, WithLocker(brokenLocker{}))
	f.placeScenarioBets(t)

	sum, err := f.engine.ResolvePoll(context.Background(), f.pollID, "Yes")
	require.NoError(t, err)
	assert.Equal(t, int64(200), sum.TotalPaidOut)
}
