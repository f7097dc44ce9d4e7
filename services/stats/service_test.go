package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coinwall/services/ledger"
	"coinwall/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestOverviewAggregates(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t, &ledger.UserBalance{})

	rows := []ledger.UserBalance{
		{ID: "1", UserKey: "1001", CoinBalance: 100, TotalEarned: 500, LastCheckinDate: "2026-09-01"},
		{ID: "2", UserKey: "1002", CoinBalance: 40, TotalEarned: 40, LastCheckinDate: "2026-08-31"},
		{ID: "3", UserKey: "1003", CoinBalance: 0, TotalEarned: 60, LastCheckinDate: "2026-09-01"},
	}
	require.NoError(t, db.Create(&rows).Error)

	r := NewReader(db, nil, 0, time.UTC)
	r.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }

	out, err := r.Overview(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), out.UserCount)
	require.Equal(t, int64(140), out.TotalBalance)
	require.Equal(t, int64(600), out.TotalEarned)
	require.Equal(t, int64(2), out.TodayCheckins)
	require.Equal(t, "2026-09-01", out.Date)
}

func TestOverviewEmptyLedger(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t, &ledger.UserBalance{})

	r := NewReader(db, nil, 0, time.UTC)

	out, err := r.Overview(ctx)
	require.NoError(t, err)
	require.Zero(t, out.UserCount)
	require.Zero(t, out.TotalBalance)
	require.Zero(t, out.TotalEarned)
	require.Zero(t, out.TodayCheckins)
}
