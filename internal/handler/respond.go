package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldops/internal/errs"
)

// respondError maps a classified workflow error to its HTTP shape. Unknown
// errors become opaque 500s.
func respondError(c *gin.Context, err error) {
	if e, ok := errs.As(err); ok {
		body := gin.H{
			"error": e.Message,
			"code":  string(e.Kind),
		}
		if len(e.Detail) > 0 {
			body["detail"] = e.Detail
		}
		c.JSON(e.HTTPStatus(), body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
