package stats

import (
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"coinwall/pkg/config"
)

var Module = fx.Module("services.stats",
	fx.Provide(provideReader),
)

type ReaderParams struct {
	fx.In

	Config *config.Config
	DB     *gorm.DB
	Redis  *goredis.Client `optional:"true"`
}

func provideReader(p ReaderParams) *Reader {
	loc, err := time.LoadLocation(p.Config.Checkin.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return NewReader(p.DB, p.Redis, p.Config.Stats.CacheTTL, loc)
}
