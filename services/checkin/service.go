package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coinwall/pkg/errutil"
	"coinwall/pkg/rediskey"
	"coinwall/services/ledger"
)

var ErrAlreadyCheckedIn = errors.New("already checked in today")

const dateLayout = "2006-01-02"

// Ledger is the slice of the ledger the check-in engine depends on.
type Ledger interface {
	CreditIdempotent(ctx context.Context, userKey, idempotencyKey string, delta int64, changeType ledger.ChangeType, reason string, opts ...ledger.CreditOption) (*ledger.CreditResult, error)
	GetBalance(ctx context.Context, userKey string) (*ledger.UserBalance, error)
}

// Engine runs the daily check-in state machine: one transition per calendar
// day per user, streak continuation when yesterday was checked, reset
// otherwise. Calendar days are evaluated in the configured timezone.
type Engine struct {
	coins Ledger
	redis *goredis.Client
	loc   *time.Location
	now   func() time.Time
}

func NewEngine(coins Ledger, redis *goredis.Client, loc *time.Location) *Engine {
	return &Engine{
		coins: coins,
		redis: redis,
		loc:   loc,
		now:   time.Now,
	}
}

// RewardForStreak maps a streak length onto its coin reward. Day six and
// beyond stay at the cap.
func RewardForStreak(streak int) int64 {
	switch {
	case streak <= 2:
		return 20
	case streak == 3:
		return 30
	case streak == 4:
		return 40
	case streak == 5:
		return 50
	default:
		return 60
	}
}

type Status struct {
	Checked         bool
	LastCheckinDate string
	ContinuousDays  int
}

type Result struct {
	CoinBalance    int64
	RewardCoins    int64
	ContinuousDays int
}

// Status reports whether the user already checked in today. Read-only; a
// user with no balance row reads as never checked in.
func (e *Engine) Status(ctx context.Context, userKey string) (*Status, error) {
	bal, err := e.coins.GetBalance(ctx, userKey)
	if err != nil {
		return nil, err
	}

	return &Status{
		Checked:         bal.LastCheckinDate == e.today(),
		LastCheckinDate: bal.LastCheckinDate,
		ContinuousDays:  bal.ContinuousDays,
	}, nil
}

// Checkin performs today's transition for the user. The streak state and the
// reward credit commit in one ledger transaction keyed by userKey|date, so
// concurrent attempts for the same day collapse into a single credit.
func (e *Engine) Checkin(ctx context.Context, userKey string) (*Result, error) {
	today := e.today()

	// fast path; the marker is only ever written after a committed credit,
	// so a hit can never be a false positive
	if e.checkedInCache(ctx, userKey, today) {
		return nil, errutil.Conflict("already checked in today", ErrAlreadyCheckedIn)
	}

	bal, err := e.coins.GetBalance(ctx, userKey)
	if err != nil {
		return nil, err
	}
	if bal.LastCheckinDate == today {
		return nil, errutil.Conflict("already checked in today", ErrAlreadyCheckedIn)
	}

	streak := 1
	if bal.LastCheckinDate == e.yesterday(today) {
		streak = bal.ContinuousDays + 1
	}
	reward := RewardForStreak(streak)

	res, err := e.coins.CreditIdempotent(ctx,
		userKey,
		userKey+"|"+today,
		reward,
		ledger.ChangeCheckin,
		fmt.Sprintf("day %d check-in reward", streak),
		ledger.WithCheckinMark(today, streak),
	)
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		// lost a same-day race; the winner already credited
		return nil, errutil.Conflict("already checked in today", ErrAlreadyCheckedIn)
	}

	zap.L().Info("check-in credited",
		zap.String("user_key", userKey),
		zap.String("date", today),
		zap.Int("continuous_days", streak),
		zap.Int64("reward_coins", reward),
	)

	e.markCheckedIn(ctx, userKey, today)

	return &Result{
		CoinBalance:    res.NewBalance,
		RewardCoins:    reward,
		ContinuousDays: streak,
	}, nil
}

func (e *Engine) checkedInCache(ctx context.Context, userKey, date string) bool {
	if e.redis == nil {
		return false
	}
	n, err := e.redis.Exists(ctx, rediskey.BuildCheckinKey(userKey, date)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (e *Engine) markCheckedIn(ctx context.Context, userKey, date string) {
	if e.redis == nil {
		return
	}
	if err := e.redis.Set(ctx, rediskey.BuildCheckinKey(userKey, date), "1", 48*time.Hour).Err(); err != nil {
		zap.L().Warn("failed to write check-in marker", zap.Error(err))
	}
}

func (e *Engine) today() string {
	return e.now().In(e.loc).Format(dateLayout)
}

func (e *Engine) yesterday(today string) string {
	t, err := time.ParseInLocation(dateLayout, today, e.loc)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dateLayout)
}
