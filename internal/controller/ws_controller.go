package controller

import (
	"cardofun_backend/internal/service"
	"cardofun_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type WSController struct {
	Hub *service.ChatHub
}

func NewWSController(hub *service.ChatHub) *WSController {
	return &WSController{Hub: hub}
}

// HandleWS upgrades the connection; live events for the caller arrive on it.
func (ctrl *WSController) HandleWS(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}
	service.ServeWs(ctrl.Hub, c.Writer, c.Request, claims.UserID)
}
