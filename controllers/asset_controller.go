// controllers/asset_controller.go
package controllers

import (
	"asset_lending_tool/app"
	"asset_lending_tool/apperr"
	"asset_lending_tool/db"
	"asset_lending_tool/models"
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type AssetController struct{ *Srv }

func NewAssetController(s *Srv) *AssetController { return &AssetController{Srv: s} }

// 管理员创建物品类型：POST /api/orgs/:orgId/items
func (ac *AssetController) CreateItem(c *gin.Context) {
	var in struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		ac.fail(c, apperr.Invalid("name", "is required"))
		return
	}
	it := &models.Item{OrganizationID: c.Param("orgId"), Name: in.Name, Description: in.Description}
	if err := ac.Repo.CreateItem(c.Request.Context(), it); err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// 物品类型列表（含数量）：GET /api/orgs/:orgId/items
func (ac *AssetController) ListItems(c *gin.Context) {
	items, err := ac.Repo.ListItems(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": items})
}

// itemInOrg 找不到或不属于该组织都按 404 处理
func (ac *AssetController) itemInOrg(ctx context.Context, orgID, itemID string) (*models.Item, error) {
	it, err := ac.Repo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.OrganizationID != orgID {
		return nil, errors.Wrap(apperr.ErrNotFound, "item")
	}
	return it, nil
}

// 登记一件资产：POST /api/orgs/:orgId/items/:itemId/assets
func (ac *AssetController) CreateAsset(c *gin.Context) {
	var in struct {
		SerialNumber *string `json:"serialNumber"`
		DeviceID     *string `json:"deviceId"`
		Location     string  `json:"location"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		ac.fail(c, apperr.Invalid("", "body must be JSON"))
		return
	}
	it, err := ac.itemInOrg(c.Request.Context(), c.Param("orgId"), c.Param("itemId"))
	if err != nil {
		ac.fail(c, err)
		return
	}
	a := &models.Asset{ItemID: it.ID, SerialNumber: in.SerialNumber, DeviceID: in.DeviceID, Location: in.Location}
	if err := ac.Repo.CreateAsset(c.Request.Context(), a); err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// 资产列表（含当前借用人）：GET /api/orgs/:orgId/assets?q=&status=&page=&size=
func (ac *AssetController) ListAssets(c *gin.Context) {
	q := db.AdminAssetsQuery{
		OrganizationID: c.Param("orgId"),
		Q:              c.Query("q"),
		Status:         c.Query("status"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := ac.Repo.ListAssetsWithCurrentLoan(c.Request.Context(), q)
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "assets": res})
}

// assetInOrg loads the asset and runs the engine's capability check on it.
func (ac *AssetController) assetInOrg(c *gin.Context) (*models.Asset, error) {
	a, err := ac.Repo.FindAssetByID(c.Request.Context(), c.Param("assetId"))
	if err != nil {
		return nil, err
	}
	if err := ac.Engine.Authorize(c.Request.Context(), actorID(c), c.Param("orgId"), a); err != nil {
		return nil, err
	}
	return a, nil
}

// 维护状态：PATCH /api/orgs/:orgId/assets/:assetId/status
func (ac *AssetController) SetStatus(c *gin.Context) {
	var in struct {
		Status models.AssetStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		ac.fail(c, apperr.Invalid("status", "is required"))
		return
	}
	a, err := ac.assetInOrg(c)
	if err != nil {
		ac.fail(c, err)
		return
	}
	a, err = ac.Repo.SetMaintenanceStatus(c.Request.Context(), a.ID, in.Status)
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// 删除资产：DELETE /api/orgs/:orgId/assets/:assetId
func (ac *AssetController) DeleteAsset(c *gin.Context) {
	a, err := ac.assetInOrg(c)
	if err != nil {
		ac.fail(c, err)
		return
	}
	if err := ac.Repo.DeleteAsset(c.Request.Context(), a.ID); err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
