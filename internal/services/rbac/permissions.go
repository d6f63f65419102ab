package rbac

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"keymart/internal/apperr"
	"keymart/internal/models"
)

func (s *Service) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var permissions []models.Permission
	if err := s.db.WithContext(ctx).Find(&permissions).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return permissions, nil
}

func (s *Service) GetPermission(ctx context.Context, id int64) (*models.Permission, error) {
	var permission models.Permission
	err := s.db.WithContext(ctx).First(&permission, "permission_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("permission not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &permission, nil
}

// CreatePermission persists the permission and seeds one active cell per
// existing (role, module) pair, atomically.
func (s *Service) CreatePermission(ctx context.Context, name string, description *string) (*models.Permission, error) {
	var existing models.Permission
	err := s.db.WithContext(ctx).First(&existing, "permission_name = ?", name).Error
	if err == nil {
		return nil, apperr.Conflict("permission name already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	permission := models.Permission{
		Name:        name,
		Description: description,
		CreatedAt:   s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("RolePermissions").Create(&permission).Error; err != nil {
			return err
		}
		var roles []models.Role
		if err := tx.Find(&roles).Error; err != nil {
			return err
		}
		var modules []models.Module
		if err := tx.Find(&modules).Error; err != nil {
			return err
		}
		cells := make([]models.RolePermission, 0, len(roles)*len(modules))
		for _, r := range roles {
			for _, m := range modules {
				cells = append(cells, models.RolePermission{
					RoleID:       r.RoleID,
					ModuleID:     m.ModuleID,
					PermissionID: permission.PermissionID,
					IsActive:     true,
				})
			}
		}
		if len(cells) == 0 {
			return nil
		}
		return tx.Omit("Role", "Module", "Permission").Create(&cells).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("permission name already exists")
		}
		return nil, apperr.Internal(err)
	}

	s.audit(ctx, "permission.create", map[string]any{"permissionId": permission.PermissionID, "name": permission.Name})
	return &permission, nil
}

func (s *Service) UpdatePermission(ctx context.Context, id int64, name string, description *string) error {
	var permission models.Permission
	err := s.db.WithContext(ctx).First(&permission, "permission_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("permission not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&permission).Updates(map[string]any{
		"permission_name": name,
		"description":     description,
		"updated_at":      &now,
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("permission name already exists")
		}
		return apperr.Internal(res.Error)
	}
	s.audit(ctx, "permission.update", map[string]any{"permissionId": id, "name": name})
	return nil
}

// DeletePermission removes the permission and every matrix cell referencing it.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	var permission models.Permission
	err := s.db.WithContext(ctx).First(&permission, "permission_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("permission not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&permission).Error
	})
	if err != nil {
		return apperr.Internal(err)
	}
	s.audit(ctx, "permission.delete", map[string]any{"permissionId": id, "name": permission.Name})
	return nil
}
