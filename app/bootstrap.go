// app/bootstrap.go
package app

import (
	"asset_lending_tool/apperr"
	"asset_lending_tool/config"
	"asset_lending_tool/db"
	"asset_lending_tool/models"
	"context"
	"errors"
	"log/slog"
)

// BootstrapOrganization creates the configured organization and its
// first admin when they do not exist yet. Safe to run on every start.
func BootstrapOrganization(ctx context.Context, cfg config.Config, repo *db.Repo, logger *slog.Logger) (*models.User, error) {
	if cfg.BootstrapOrg == "" || cfg.BootstrapAdmin == "" {
		return nil, nil
	}

	org, err := repo.FindOrganizationByName(ctx, cfg.BootstrapOrg)
	if errors.Is(err, apperr.ErrNotFound) {
		org = &models.Organization{Name: cfg.BootstrapOrg}
		err = repo.CreateOrganization(ctx, org)
	}
	if err != nil {
		return nil, err
	}

	admin, err := repo.FindUserByUsername(ctx, cfg.BootstrapAdmin)
	if err == nil {
		return admin, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	admin = &models.User{Username: cfg.BootstrapAdmin, OrganizationID: &org.ID, IsOrgAdmin: true}
	if err := repo.CreateUser(ctx, admin); err != nil {
		return nil, err
	}
	// 打印管理员 ID，网关据此设置 X-User-ID
	logger.Info("bootstrap admin created", "org", org.Name, "org_id", org.ID, "username", admin.Username, "user_id", admin.ID)
	return admin, nil
}
