package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the status endpoint on a gin engine.
func RegisterRoutes(r gin.IRoutes, rep *Reporter) {
	r.GET("/sync/status", func(c *gin.Context) {
		st, err := rep.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	})
}
