package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("services.httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(h *Handler, r *gin.Engine) {
	h.Register(r)
}
