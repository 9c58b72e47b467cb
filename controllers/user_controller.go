package controllers

import (
	"asset_lending_tool/app"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/me
func (uc *UserController) Me(c *gin.Context) {
	u, err := uc.Repo.FindUserByID(c.Request.Context(), actorID(c))
	if err != nil {
		uc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u})
}

// GET /api/orgs/:orgId/users?q=alice&page=1&size=20
func (uc *UserController) ListMembers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.Repo.ListMembers(c.Request.Context(), c.Param("orgId"), c.Query("q"), page, size)
	if err != nil {
		uc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"total": res.Total,
		"users": res.Users,
	})
}
