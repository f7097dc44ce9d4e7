package stats

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinwall/pkg/rediskey"
	"coinwall/services/ledger"
)

// Overview aggregates the ledger into the numbers the admin dashboard shows.
type Overview struct {
	UserCount     int64  `json:"userCount"`
	TotalBalance  int64  `json:"totalBalance"`
	TotalEarned   int64  `json:"totalEarned"`
	TodayCheckins int64  `json:"todayCheckins"`
	Date          string `json:"date"`
}

// Reader serves read-only aggregates over user balances. Results are cached
// in redis when a client is wired; without one every call hits the database.
type Reader struct {
	db       *gorm.DB
	redis    *goredis.Client
	cacheTTL time.Duration
	loc      *time.Location
	now      func() time.Time
}

func NewReader(db *gorm.DB, redis *goredis.Client, cacheTTL time.Duration, loc *time.Location) *Reader {
	return &Reader{
		db:       db,
		redis:    redis,
		cacheTTL: cacheTTL,
		loc:      loc,
		now:      time.Now,
	}
}

func (r *Reader) Overview(ctx context.Context) (*Overview, error) {
	date := r.now().In(r.loc).Format("2006-01-02")

	if cached := r.fromCache(ctx, date); cached != nil {
		return cached, nil
	}

	var agg struct {
		UserCount    int64
		TotalBalance int64
		TotalEarned  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&ledger.UserBalance{}).
		Select("COUNT(*) AS user_count, COALESCE(SUM(coin_balance), 0) AS total_balance, COALESCE(SUM(total_earned), 0) AS total_earned").
		Scan(&agg).Error; err != nil {
		return nil, err
	}

	var todayCheckins int64
	if err := r.db.WithContext(ctx).
		Model(&ledger.UserBalance{}).
		Where("last_checkin_date = ?", date).
		Count(&todayCheckins).Error; err != nil {
		return nil, err
	}

	out := &Overview{
		UserCount:     agg.UserCount,
		TotalBalance:  agg.TotalBalance,
		TotalEarned:   agg.TotalEarned,
		TodayCheckins: todayCheckins,
		Date:          date,
	}
	r.toCache(ctx, date, out)
	return out, nil
}

func (r *Reader) fromCache(ctx context.Context, date string) *Overview {
	if r.redis == nil {
		return nil
	}
	raw, err := r.redis.Get(ctx, rediskey.BuildStatsKey(date)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			zap.L().Warn("stats cache read failed", zap.Error(err))
		}
		return nil
	}
	var out Overview
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}

func (r *Reader) toCache(ctx context.Context, date string, out *Overview) {
	if r.redis == nil || r.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, rediskey.BuildStatsKey(date), raw, r.cacheTTL).Err(); err != nil {
		zap.L().Warn("stats cache write failed", zap.Error(err))
	}
}
