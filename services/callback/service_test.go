package callback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinwall/pkg/userkey"
	"coinwall/services/ledger"
	"coinwall/services/signature"
	"coinwall/services/testutil"
)

const (
	testAppKey = "CS001"
	testSecret = "s3cr3t"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db       *gorm.DB
	ingestor *Ingestor
	coins    *ledger.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.UserBalance{}, &ledger.CoinRecord{}, &Record{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	coins := ledger.NewStore(ledger.StoreParams{DB: db, Node: node})
	verifier := signature.NewVerifier(map[string]string{testAppKey: testSecret}, 5*time.Minute)

	ingestor := NewIngestor(IngestorParams{
		DB:       db,
		Node:     node,
		Verifier: verifier,
		Ledger:   coins,
		Resolver: userkey.NewResolver(),
	})

	return &fixture{db: db, ingestor: ingestor, coins: coins}
}

func signedRequest(orderID string, coins int64) Request {
	ts := time.Now().UnixMilli()
	return Request{
		AppKey:    testAppKey,
		UserID:    "12345",
		TaskID:    "task-7",
		OrderID:   orderID,
		Coins:     coins,
		Timestamp: ts,
		Sign:      signature.Sign(testSecret, coins, ts, "12345"),
	}
}

func (f *fixture) record(t *testing.T, orderID string) *Record {
	t.Helper()
	var rec Record
	require.NoError(t, f.db.Where("order_id = ?", orderID).First(&rec).Error)
	return &rec
}

func TestProcessCallbackCreditsReward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.ingestor.ProcessCallback(ctx, signedRequest("order-1", 30))
	require.NoError(t, err)
	require.False(t, out.Duplicate)
	require.Equal(t, "12345", out.UserKey)
	require.Equal(t, int64(30), out.NewBalance)

	rec := f.record(t, "order-1")
	require.Equal(t, StatusSuccess, rec.Status)
	require.Equal(t, int64(30), rec.RewardCoins)

	bal, err := f.coins.GetBalance(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, int64(30), bal.CoinBalance)
}

func TestProcessCallbackDuplicateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := signedRequest("order-1", 30)
	_, err := f.ingestor.ProcessCallback(ctx, req)
	require.NoError(t, err)

	out, err := f.ingestor.ProcessCallback(ctx, req)
	require.NoError(t, err)
	require.True(t, out.Duplicate)
	require.Equal(t, int64(30), out.NewBalance)

	bal, err := f.coins.GetBalance(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, int64(30), bal.CoinBalance)

	records, err := f.coins.ListRecords(ctx, "12345", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestProcessCallbackBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := signedRequest("order-1", 30)
	req.Sign = "deadbeefdeadbeefdeadbeefdeadbeef"

	_, err := f.ingestor.ProcessCallback(ctx, req)
	require.Error(t, err)
	require.True(t, errors.Is(err, signature.ErrSignatureMismatch))

	rec := f.record(t, "order-1")
	require.Equal(t, StatusFailed, rec.Status)
	require.NotEmpty(t, rec.ErrorMessage)

	bal, err := f.coins.GetBalance(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, int64(0), bal.CoinBalance)
}

func TestProcessCallbackRetriesFailedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := signedRequest("order-1", 30)
	bad.Sign = "deadbeefdeadbeefdeadbeefdeadbeef"
	_, err := f.ingestor.ProcessCallback(ctx, bad)
	require.Error(t, err)

	out, err := f.ingestor.ProcessCallback(ctx, signedRequest("order-1", 30))
	require.NoError(t, err)
	require.False(t, out.Duplicate)
	require.Equal(t, int64(30), out.NewBalance)

	rec := f.record(t, "order-1")
	require.Equal(t, StatusSuccess, rec.Status)
}

func TestProcessCallbackUnknownAppKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := signedRequest("order-1", 30)
	req.AppKey = "CS999"

	_, err := f.ingestor.ProcessCallback(ctx, req)
	require.Error(t, err)
	require.True(t, errors.Is(err, signature.ErrUnknownAppKey))
}

func TestProcessCallbackChannelAlias(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := signedRequest("order-1", 30)
	req.Channel = req.AppKey
	req.AppKey = ""

	out, err := f.ingestor.ProcessCallback(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(30), out.NewBalance)
}

func TestProcessCallbackValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing orderId", func(r *Request) { r.OrderID = "" }},
		{"missing userId", func(r *Request) { r.UserID = "" }},
		{"missing appKey", func(r *Request) { r.AppKey = "" }},
		{"zero coins", func(r *Request) { r.Coins = 0 }},
		{"negative coins", func(r *Request) { r.Coins = -5 }},
		{"missing sign", func(r *Request) { r.Sign = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := signedRequest("order-v", 30)
			tc.mutate(&req)
			_, err := f.ingestor.ProcessCallback(ctx, req)
			require.Error(t, err)
		})
	}
}
