package ledger

import (
	"time"
)

type ChangeType string

const (
	ChangeCheckin ChangeType = "checkin"
	ChangeReward  ChangeType = "reward"
	ChangeConsume ChangeType = "consume"
)

func (t ChangeType) Valid() bool {
	switch t {
	case ChangeCheckin, ChangeReward, ChangeConsume:
		return true
	default:
		return false
	}
}

// UserBalance is the current-balance snapshot, one row per user, owned
// exclusively by the ledger. last_total_balance holds coin_balance as it was
// immediately before the most recent change, so readers can show
// "balance went from X to Y" without walking coin_records.
type UserBalance struct {
	ID               string    `gorm:"column:id;primaryKey"`
	UserKey          string    `gorm:"column:user_key;uniqueIndex;not null"`
	CoinBalance      int64     `gorm:"column:coin_balance;not null;default:0"`
	TotalEarned      int64     `gorm:"column:total_earned;not null;default:0"`
	LastTotalBalance int64     `gorm:"column:last_total_balance;not null;default:0"`
	LastCheckinDate  string    `gorm:"column:last_checkin_date;type:varchar(10)"` // YYYY-MM-DD, empty = never
	ContinuousDays   int       `gorm:"column:continuous_days;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (UserBalance) TableName() string { return "user_coins" }

// CoinRecord is the append-only audit entry, written exactly once per
// accepted change. The unique idempotency_key index is the at-most-once
// guarantee every caller relies on.
type CoinRecord struct {
	ID             string     `gorm:"column:id;primaryKey"`
	UserKey        string     `gorm:"column:user_key;index:idx_coin_records_user_created,priority:1;not null"`
	IdempotencyKey string     `gorm:"column:idempotency_key;uniqueIndex;not null"`
	CoinChange     int64      `gorm:"column:coin_change;not null"`
	ChangeType     ChangeType `gorm:"column:change_type;type:varchar(20);not null"`
	ChangeReason   string     `gorm:"column:change_reason;type:varchar(200)"`
	BalanceAfter   int64      `gorm:"column:balance_after;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;index:idx_coin_records_user_created,priority:2"`
}

func (CoinRecord) TableName() string { return "coin_records" }

// CreditResult reports the outcome of an idempotent credit or debit.
type CreditResult struct {
	NewBalance  int64
	PrevBalance int64
	TotalEarned int64
	Duplicate   bool
}
