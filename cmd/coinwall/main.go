package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinwall/pkg/config"
	"coinwall/pkg/db"
	"coinwall/pkg/health"
	"coinwall/pkg/logger"
	"coinwall/pkg/redis"
	"coinwall/pkg/server"
	"coinwall/pkg/userkey"
	"coinwall/services/callback"
	"coinwall/services/checkin"
	"coinwall/services/httpapi"
	"coinwall/services/ledger"
	"coinwall/services/signature"
	"coinwall/services/stats"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		userkey.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		signature.Module,
		ledger.Module,
		callback.Module,
		checkin.Module,
		stats.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&ledger.UserBalance{},
		&ledger.CoinRecord{},
		&callback.Record{},
	)
}
