package callback

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is the per-order audit row for a partner reward callback. One row
// per distinct order_id; status moves pending -> success or pending -> failed
// and never reverses out of success.
type Record struct {
	ID                string         `gorm:"column:id;primaryKey"`
	OrderID           string         `gorm:"column:order_id;uniqueIndex;not null"`
	UserKey           string         `gorm:"column:user_key;index;not null"`
	TaskID            string         `gorm:"column:task_id;index"`
	RewardCoins       int64          `gorm:"column:reward_coins;not null;default:0"`
	TotalCount        int            `gorm:"column:total_count;not null;default:0"`
	CompletedCount    int            `gorm:"column:completed_count;not null;default:0"`
	CallbackTimestamp int64          `gorm:"column:callback_timestamp;not null;default:0"` // epoch millis
	Timezone          string         `gorm:"column:timezone;type:varchar(50);default:'Asia/Shanghai'"`
	Status            string         `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	ErrorMessage      string         `gorm:"column:error_message;type:text"`
	RawPayload        datatypes.JSON `gorm:"column:raw_payload"`
	CreatedAt         time.Time      `gorm:"column:created_at;index"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`
}

func (Record) TableName() string { return "task_callback_records" }

// Request carries one inbound partner callback. AppKey and Channel are
// aliases on the wire; appKey() prefers the explicit one.
type Request struct {
	AppKey         string `json:"appKey"`
	Channel        string `json:"channel"`
	UserID         string `json:"userId"`
	TaskID         string `json:"taskId"`
	OrderID        string `json:"orderId"`
	Coins          int64  `json:"coins"`
	TotalCount     int    `json:"totalCount"`
	CompletedCount int    `json:"completedCount"`
	Timestamp      int64  `json:"timestamp"`
	Timezone       string `json:"timezone"`
	Sign           string `json:"sign"`
}

func (r Request) appKey() string {
	if r.AppKey != "" {
		return r.AppKey
	}
	return r.Channel
}

// Outcome reports a processed (or replayed) callback.
type Outcome struct {
	UserKey    string
	OrderID    string
	Coins      int64
	NewBalance int64
	Duplicate  bool
}
