package middleware

import (
	"net/http"

	"coinwall/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error attached to the gin context as the errutil
// JSON envelope. Handlers that write their own response bodies (the partner
// callback surface) bypass this and render inline.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: err.Error(),
		}.JSON())
	}
}
