package callback

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"coinwall/pkg/repository"
	"coinwall/pkg/userkey"
	"coinwall/services/ledger"
	"coinwall/services/signature"
)

var Module = fx.Module("callback.service",
	fx.Provide(NewIngestor),
)

type IngestorParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Verifier *signature.Verifier
	Ledger   *ledger.Store
	Resolver userkey.Resolver
}

func NewIngestor(p IngestorParams) *Ingestor {
	return &Ingestor{
		node:     p.Node,
		verifier: p.Verifier,
		coins:    p.Ledger,
		resolver: p.Resolver,
		records:  repository.ProvideStore[Record](p.DB),
	}
}
