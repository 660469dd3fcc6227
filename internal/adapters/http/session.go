package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dkeye/voxroom/internal/core"
)

func clientSession(c *gin.Context) core.SessionID {
	return core.SessionID(c.GetString("client_token"))
}
