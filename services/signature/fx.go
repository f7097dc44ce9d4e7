package signature

import (
	"coinwall/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("signature.service",
	fx.Provide(provideVerifier),
)

func provideVerifier(cfg *config.Config) *Verifier {
	return NewVerifier(cfg.Signing.Apps, cfg.Signing.MaxClockSkew)
}
