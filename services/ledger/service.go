package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinwall/pkg/db/option"
	"coinwall/pkg/errutil"
	"coinwall/pkg/repository"
)

var ErrInsufficientBalance = errors.New("insufficient coin balance")

// errDuplicateReplay signals that the unique index rejected the audit row;
// converted into a duplicate result outside the transaction.
var errDuplicateReplay = errors.New("idempotency key replayed")

type Store struct {
	db   *gorm.DB
	node *snowflake.Node

	balances repository.Repository[UserBalance]
	records  repository.Repository[CoinRecord]
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:   p.DB,
		node: p.Node,

		balances: repository.ProvideStore[UserBalance](p.DB),
		records:  repository.ProvideStore[CoinRecord](p.DB),
	}
}

type creditOptions struct {
	markCheckin    bool
	checkinDate    string
	continuousDays int
}

type CreditOption func(*creditOptions)

// WithCheckinMark folds last_checkin_date and continuous_days into the same
// balance update, so a check-in commits its streak state atomically with the
// credit that rewards it.
func WithCheckinMark(date string, days int) CreditOption {
	return func(o *creditOptions) {
		o.markCheckin = true
		o.checkinDate = date
		o.continuousDays = days
	}
}

// CreditIdempotent applies a signed balance change exactly once per
// idempotency key. The whole read-modify-write runs in one transaction with
// the user's balance row locked, so concurrent changes for the same user are
// serialized; the unique index on coin_records.idempotency_key backs the
// existence check. A replayed key returns the unchanged balance with
// Duplicate set and no mutation.
func (s *Store) CreditIdempotent(ctx context.Context, userKey, idempotencyKey string, delta int64, changeType ChangeType, reason string, opts ...CreditOption) (*CreditResult, error) {
	span := trace.SpanFromContext(ctx)
	logFields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_key", userKey),
		zap.String("idempotency_key", idempotencyKey),
		zap.Int64("delta", delta),
	}

	if idempotencyKey == "" {
		return nil, errutil.BadRequest("idempotency key is required", nil)
	}
	if !changeType.Valid() {
		return nil, errutil.BadRequest("unsupported change type", nil)
	}

	var o creditOptions
	for _, opt := range opts {
		opt(&o)
	}

	var res CreditResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bal, err := s.lockBalance(ctx, tx, userKey)
		if err != nil {
			return err
		}

		recordsTx := s.records.WithTrx(tx)

		// existence check runs under the user row lock; the unique index
		// below remains the final guarantee
		existing, err := recordsTx.FindOne(ctx, &CoinRecord{IdempotencyKey: idempotencyKey})
		if err != nil {
			return err
		}
		if existing != nil {
			res = CreditResult{
				NewBalance:  bal.CoinBalance,
				PrevBalance: bal.LastTotalBalance,
				TotalEarned: bal.TotalEarned,
				Duplicate:   true,
			}
			return nil
		}

		newBalance := bal.CoinBalance + delta
		if newBalance < 0 {
			return errutil.UnprocessableEntity("insufficient coin balance", ErrInsufficientBalance)
		}

		record := &CoinRecord{
			ID:             s.node.Generate().String(),
			UserKey:        userKey,
			IdempotencyKey: idempotencyKey,
			CoinChange:     delta,
			ChangeType:     changeType,
			ChangeReason:   reason,
			BalanceAfter:   newBalance,
			CreatedAt:      time.Now(),
		}
		if err := recordsTx.Create(ctx, record); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateReplay
			}
			return err
		}

		newEarned := bal.TotalEarned
		if delta > 0 {
			newEarned += delta
		}

		updates := map[string]any{
			"last_total_balance": bal.CoinBalance,
			"coin_balance":       newBalance,
			"total_earned":       newEarned,
			"updated_at":         time.Now(),
		}
		if o.markCheckin {
			updates["last_checkin_date"] = o.checkinDate
			updates["continuous_days"] = o.continuousDays
		}

		if err := s.balances.WithTrx(tx).Update(ctx, bal.ID, updates); err != nil {
			return err
		}

		res = CreditResult{
			NewBalance:  newBalance,
			PrevBalance: bal.CoinBalance,
			TotalEarned: newEarned,
		}
		return nil
	})

	if errors.Is(err, errDuplicateReplay) {
		bal, gerr := s.GetBalance(ctx, userKey)
		if gerr != nil {
			return nil, gerr
		}
		return &CreditResult{
			NewBalance:  bal.CoinBalance,
			PrevBalance: bal.LastTotalBalance,
			TotalEarned: bal.TotalEarned,
			Duplicate:   true,
		}, nil
	}
	if err != nil {
		if !errors.Is(err, ErrInsufficientBalance) {
			zap.L().With(logFields...).Error("credit transaction failed", zap.Error(err))
		}
		return nil, err
	}

	return &res, nil
}

// lockBalance reads the user's balance row FOR UPDATE, creating it lazily on
// first credit. A concurrent create for the same user loses against the
// unique user_key index and falls back to re-reading the committed row.
func (s *Store) lockBalance(ctx context.Context, tx *gorm.DB, userKey string) (*UserBalance, error) {
	balancesTx := s.balances.WithTrx(tx)

	bal, err := balancesTx.FindOne(ctx, &UserBalance{UserKey: userKey}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if bal != nil {
		return bal, nil
	}

	now := time.Now()
	bal = &UserBalance{
		ID:        s.node.Generate().String(),
		UserKey:   userKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := balancesTx.Create(ctx, bal); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, ferr := balancesTx.FindOne(ctx, &UserBalance{UserKey: userKey}, option.WithLockingUpdate())
			if ferr != nil {
				return nil, ferr
			}
			if existing == nil {
				return nil, errutil.Internal("balance row vanished after duplicate create", nil)
			}
			return existing, nil
		}
		return nil, err
	}

	return bal, nil
}

// GetBalance returns the current snapshot for a user. Rows are created
// lazily on first credit, so an unknown user reads as a zero balance.
func (s *Store) GetBalance(ctx context.Context, userKey string) (*UserBalance, error) {
	bal, err := s.balances.FindOne(ctx, &UserBalance{UserKey: userKey})
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return &UserBalance{UserKey: userKey}, nil
	}
	return bal, nil
}

// ListRecords returns a user's audit entries, most recent first.
func (s *Store) ListRecords(ctx context.Context, userKey string, limit, offset int) ([]*CoinRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	return s.records.Find(ctx, &CoinRecord{UserKey: userKey},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}
