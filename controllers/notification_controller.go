package controllers

import (
	"asset_lending_tool/app"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type NotificationController struct{ *Srv }

func NewNotificationController(s *Srv) *NotificationController {
	return &NotificationController{Srv: s}
}

// GET /api/notifications?unread=1&limit=50
func (nc *NotificationController) List(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ns, err := nc.Repo.ListNotifications(c.Request.Context(), actorID(c), unread, limit)
	if err != nil {
		nc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": ns})
}

// POST /api/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	if err := nc.Repo.MarkNotificationRead(c.Request.Context(), actorID(c), c.Param("id"), time.Now()); err != nil {
		nc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
