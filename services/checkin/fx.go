package checkin

import (
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"coinwall/pkg/config"
	"coinwall/services/ledger"
)

var Module = fx.Module("services.checkin",
	fx.Provide(provideEngine),
)

type EngineParams struct {
	fx.In

	Config *config.Config
	Ledger *ledger.Store
	Redis  *goredis.Client `optional:"true"`
}

func provideEngine(p EngineParams) *Engine {
	loc, err := time.LoadLocation(p.Config.Checkin.Timezone)
	if err != nil {
		zap.L().Warn("invalid check-in timezone, falling back to UTC",
			zap.String("timezone", p.Config.Checkin.Timezone),
			zap.Error(err),
		)
		loc = time.UTC
	}
	return NewEngine(p.Ledger, p.Redis, loc)
}
