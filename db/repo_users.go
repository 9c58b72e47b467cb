package db

import (
	"asset_lending_tool/models"
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "username = ?", strings.TrimSpace(username)).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (r *Repo) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	var o models.Organization
	if err := r.DB.WithContext(ctx).First(&o, "name = ?", strings.TrimSpace(name)).Error; err != nil {
		return nil, notFound(err, "organization")
	}
	return &o, nil
}

// 最近活跃时间
func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	return errors.Wrap(r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", time.Now()).Error, "touch user seen")
}

type PagedUsers struct {
	Total int64         `json:"total"`
	Users []models.User `json:"users"`
}

// ListMembers pages through an organization's users, optionally
// filtered by a username/display-name substring.
func (r *Repo) ListMembers(ctx context.Context, orgID, q string, page, size int) (*PagedUsers, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	filtered := func() *gorm.DB {
		tx := r.DB.WithContext(ctx).Model(&models.User{}).Where("organization_id = ?", orgID)
		if s := strings.TrimSpace(q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			tx = tx.Where("(LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?)", pat, pat)
		}
		return tx
	}
	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count members")
	}
	var users []models.User
	if err := filtered().Order("username").Offset((page - 1) * size).Limit(size).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	return &PagedUsers{Total: total, Users: users}, nil
}
