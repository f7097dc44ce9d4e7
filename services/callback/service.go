package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coinwall/pkg/errutil"
	"coinwall/pkg/repository"
	"coinwall/pkg/userkey"
	"coinwall/services/ledger"
)

// SignVerifier authenticates a callback against the partner secret.
type SignVerifier interface {
	Verify(appKey string, timestamp int64, coins int64, userID string, sign string) error
}

// CoinLedger is the slice of the ledger the ingestor depends on.
type CoinLedger interface {
	CreditIdempotent(ctx context.Context, userKey, idempotencyKey string, delta int64, changeType ledger.ChangeType, reason string, opts ...ledger.CreditOption) (*ledger.CreditResult, error)
	GetBalance(ctx context.Context, userKey string) (*ledger.UserBalance, error)
}

type Ingestor struct {
	node *snowflake.Node

	verifier SignVerifier
	coins    CoinLedger
	resolver userkey.Resolver
	records  repository.Repository[Record]
}

// ProcessCallback ingests one partner reward callback. The pending Record
// insert is the idempotency gate: its unique order_id index makes concurrent
// duplicate deliveries collapse into one unit of work. A record that never
// reached success (failed) is reattempted as logically fresh work; the ledger
// guarantees the credit itself still lands at most once.
func (s *Ingestor) ProcessCallback(ctx context.Context, req Request) (*Outcome, error) {
	span := trace.SpanFromContext(ctx)
	logFields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("order_id", req.OrderID),
		zap.String("app_key", req.appKey()),
	}

	if err := validate(req); err != nil {
		return nil, err
	}

	userKey, err := s.resolver.Resolve(req.UserID)
	if err != nil {
		return nil, err
	}

	existing, err := s.records.FindOne(ctx, &Record{OrderID: req.OrderID})
	if err != nil {
		return nil, errutil.Internal("failed to query callback record", err)
	}
	if existing != nil && existing.Status == StatusSuccess {
		return s.duplicateOutcome(ctx, userKey, req)
	}

	record := existing
	if record == nil {
		record, err = s.insertPending(ctx, userKey, req)
		if err != nil {
			return nil, err
		}
		if record == nil {
			// lost the insert race; the winner owns this order
			zap.L().With(logFields...).Info("duplicate callback delivery in flight")
			return s.duplicateOutcome(ctx, userKey, req)
		}
	} else if record.Status == StatusPending {
		zap.L().With(logFields...).Info("callback already being processed")
		return s.duplicateOutcome(ctx, userKey, req)
	}

	if err := s.verifier.Verify(req.appKey(), req.Timestamp, req.Coins, req.UserID, req.Sign); err != nil {
		zap.L().With(logFields...).Warn("callback signature rejected", zap.Error(err))
		s.markFailed(ctx, record.ID, err.Error())
		return nil, err
	}

	reason := fmt.Sprintf("task %s reward (order %s)", req.TaskID, req.OrderID)
	res, err := s.coins.CreditIdempotent(ctx, userKey, req.OrderID, req.Coins, ledger.ChangeReward, reason)
	if err != nil {
		zap.L().With(logFields...).Error("failed to credit reward", zap.Error(err))
		s.markFailed(ctx, record.ID, err.Error())
		return nil, err
	}

	if err := s.markSuccess(ctx, record.ID); err != nil {
		// the credit is committed; surface the inconsistency but keep the
		// partner response truthful
		zap.L().With(logFields...).Error("failed to mark callback success", zap.Error(err))
	}

	return &Outcome{
		UserKey:    userKey,
		OrderID:    req.OrderID,
		Coins:      req.Coins,
		NewBalance: res.NewBalance,
		Duplicate:  res.Duplicate,
	}, nil
}

func validate(req Request) error {
	switch {
	case req.OrderID == "":
		return errutil.BadRequest("orderId is required", nil)
	case req.UserID == "":
		return errutil.BadRequest("userId is required", nil)
	case req.appKey() == "":
		return errutil.BadRequest("appKey is required", nil)
	case req.Coins <= 0:
		return errutil.BadRequest("coins must be > 0", nil)
	case req.Sign == "":
		return errutil.BadRequest("sign is required", nil)
	}
	return nil
}

// insertPending writes the pending record for an order. Returns (nil, nil)
// when a concurrent delivery won the unique order_id insert.
func (s *Ingestor) insertPending(ctx context.Context, userKey string, req Request) (*Record, error) {
	payload, _ := json.Marshal(req)
	now := time.Now()

	record := &Record{
		ID:                s.node.Generate().String(),
		OrderID:           req.OrderID,
		UserKey:           userKey,
		TaskID:            req.TaskID,
		RewardCoins:       req.Coins,
		TotalCount:        req.TotalCount,
		CompletedCount:    req.CompletedCount,
		CallbackTimestamp: req.Timestamp,
		Timezone:          req.Timezone,
		Status:            StatusPending,
		RawPayload:        datatypes.JSON(payload),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			again, ferr := s.records.FindOne(ctx, &Record{OrderID: req.OrderID})
			if ferr != nil {
				return nil, errutil.Internal("failed to re-read callback record", ferr)
			}
			if again != nil && again.Status == StatusFailed {
				// earlier attempt never reached success; reprocess it
				return again, nil
			}
			return nil, nil
		}
		return nil, errutil.Internal("failed to insert callback record", err)
	}

	return record, nil
}

func (s *Ingestor) duplicateOutcome(ctx context.Context, userKey string, req Request) (*Outcome, error) {
	bal, err := s.coins.GetBalance(ctx, userKey)
	if err != nil {
		return nil, errutil.Internal("failed to read balance", err)
	}

	return &Outcome{
		UserKey:    userKey,
		OrderID:    req.OrderID,
		Coins:      req.Coins,
		NewBalance: bal.CoinBalance,
		Duplicate:  true,
	}, nil
}

func (s *Ingestor) markSuccess(ctx context.Context, recordID string) error {
	return s.records.Update(ctx, recordID, map[string]any{
		"status":        StatusSuccess,
		"error_message": "",
		"updated_at":    time.Now(),
	})
}

func (s *Ingestor) markFailed(ctx context.Context, recordID, message string) {
	if err := s.records.Update(ctx, recordID, map[string]any{
		"status":        StatusFailed,
		"error_message": message,
		"updated_at":    time.Now(),
	}); err != nil {
		zap.L().Error("failed to mark callback record failed",
			zap.String("record_id", recordID), zap.Error(err))
	}
}
