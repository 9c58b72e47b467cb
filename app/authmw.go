package app

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/db"
	"asset_lending_tool/lifecycle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ActorHeader carries the caller's user id, set by the upstream
// gateway after it has authenticated the request.
const ActorHeader = "X-User-ID"

func ActorRequired(repo *db.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(ActorHeader)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		// 确认用户仍存在
		u, err := repo.FindUserByID(c.Request.Context(), uid)
		if errors.Is(err, apperr.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, H{"error": apperr.Message(err)})
			return
		}
		// 把 userID 放进上下文，后续 handler 可用
		c.Set("userID", u.ID)
		c.Set("username", u.Username)
		c.Next()
	}
}

// OrgAdminOnly lets through admins of the :orgId path parameter.
func OrgAdminOnly(engine *lifecycle.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 已有 ActorRequired 设置的 userID
		uid := c.GetString("userID")
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if _, err := engine.AuthorizeOrgAdmin(c.Request.Context(), uid, c.Param("orgId")); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, apperr.ErrForbidden) {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, H{"error": apperr.Message(err)})
			return
		}
		c.Next()
	}
}
