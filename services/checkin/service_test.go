package checkin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coinwall/services/ledger"
	"coinwall/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	engine *Engine
	coins  *ledger.Store
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.UserBalance{}, &ledger.CoinRecord{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	coins := ledger.NewStore(ledger.StoreParams{DB: db, Node: node})

	f := &fixture{
		coins: coins,
		now:   time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(coins, nil, time.UTC)
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advanceDays(n int) {
	f.now = f.now.AddDate(0, 0, n)
}

func TestRewardForStreak(t *testing.T) {
	expected := map[int]int64{1: 20, 2: 20, 3: 30, 4: 40, 5: 50, 6: 60, 7: 60, 30: 60}
	for streak, reward := range expected {
		require.Equal(t, reward, RewardForStreak(streak), "streak %d", streak)
	}
}

func TestFirstCheckin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.Checkin(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, int64(20), res.RewardCoins)
	require.Equal(t, 1, res.ContinuousDays)
	require.Equal(t, int64(20), res.CoinBalance)

	st, err := f.engine.Status(ctx, "1001")
	require.NoError(t, err)
	require.True(t, st.Checked)
	require.Equal(t, "2026-09-01", st.LastCheckinDate)
	require.Equal(t, 1, st.ContinuousDays)
}

func TestSameDayCheckinRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Checkin(ctx, "1001")
	require.NoError(t, err)

	_, err = f.engine.Checkin(ctx, "1001")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrAlreadyCheckedIn))

	bal, err := f.coins.GetBalance(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, int64(20), bal.CoinBalance)
}

func TestStreakProgressionAndCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rewards := []int64{20, 20, 30, 40, 50, 60, 60}
	var total int64
	for day, want := range rewards {
		res, err := f.engine.Checkin(ctx, "1001")
		require.NoError(t, err)
		require.Equal(t, want, res.RewardCoins, "day %d", day+1)
		require.Equal(t, day+1, res.ContinuousDays)

		total += want
		require.Equal(t, total, res.CoinBalance)

		f.advanceDays(1)
	}
}

func TestMissedDayResetsStreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Checkin(ctx, "1001")
		require.NoError(t, err)
		f.advanceDays(1)
	}

	f.advanceDays(1) // skip a day

	res, err := f.engine.Checkin(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, 1, res.ContinuousDays)
	require.Equal(t, int64(20), res.RewardCoins)
}

func TestStatusUnknownUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.engine.Status(ctx, "9999")
	require.NoError(t, err)
	require.False(t, st.Checked)
	require.Empty(t, st.LastCheckinDate)
	require.Zero(t, st.ContinuousDays)
}

func TestCheckinCrossesMonthBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.now = time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	_, err := f.engine.Checkin(ctx, "1001")
	require.NoError(t, err)

	f.now = time.Date(2026, 9, 1, 0, 30, 0, 0, time.UTC)
	res, err := f.engine.Checkin(ctx, "1001")
	require.NoError(t, err)
	require.Equal(t, 2, res.ContinuousDays)
}
