package routes

import (
	"asset_lending_tool/app"
	"asset_lending_tool/controllers"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	loanCtl := controllers.NewLoanController(s)
	assetCtl := controllers.NewAssetController(s)
	userCtl := controllers.NewUserController(s)
	notifCtl := controllers.NewNotificationController(s)

	// 复用的中间件
	actorMW := app.ActorRequired(a.Repo)
	adminMW := app.OrgAdminOnly(a.Engine)
	seenMW := app.TouchLastSeen(a.Repo, a.RDB, 5*time.Minute)

	// Health
	r.GET("/healthz", func(c *app.Ctx) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := a.Repo.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false})
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true})
	})

	api := r.Group("/api", actorMW, seenMW)
	{
		api.GET("/me", userCtl.Me)
		api.GET("/notifications", notifCtl.List)
		api.POST("/notifications/:id/read", notifCtl.MarkRead)
	}

	// ------------------------------
	// 组织成员：申请 / 查看；审批类操作由 engine 鉴权
	// ------------------------------
	org := api.Group("/orgs/:orgId")
	{
		org.GET("/items", assetCtl.ListItems)
		org.POST("/assets/:assetId/loans", loanCtl.Request)
		org.GET("/loans", loanCtl.ListLoans) // ?status=&assetId=&borrowerId=
		org.POST("/loans/:loanId/approve", loanCtl.Approve())
		org.POST("/loans/:loanId/pickup", loanCtl.Pickup())
		org.POST("/loans/:loanId/reject", loanCtl.Reject())
		org.POST("/loans/:loanId/return", loanCtl.Return())
	}

	// ------------------------------
	// 组织管理员
	// ------------------------------
	orgAdmin := org.Group("", adminMW)
	{
		orgAdmin.POST("/loans/sweep-overdue", loanCtl.SweepOverdue) // ?asOf=YYYY-MM-DD
		orgAdmin.POST("/items", assetCtl.CreateItem)
		orgAdmin.POST("/items/:itemId/assets", assetCtl.CreateAsset)
		orgAdmin.GET("/assets", assetCtl.ListAssets) // ?q=&status=&page=&size=
		orgAdmin.PATCH("/assets/:assetId/status", assetCtl.SetStatus)
		orgAdmin.DELETE("/assets/:assetId", assetCtl.DeleteAsset)
		orgAdmin.GET("/users", userCtl.ListMembers)
	}
}
