package rbac

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"keymart/internal/apperr"
	"keymart/internal/models"
)

func (s *Service) ListModules(ctx context.Context) ([]models.Module, error) {
	var modules []models.Module
	if err := s.db.WithContext(ctx).Find(&modules).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return modules, nil
}

func (s *Service) GetModule(ctx context.Context, id int64) (*models.Module, error) {
	var module models.Module
	err := s.db.WithContext(ctx).First(&module, "module_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("module not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &module, nil
}

// CreateModule persists the module and seeds one active cell per existing
// (role, permission) pair, atomically.
func (s *Service) CreateModule(ctx context.Context, name string, description *string) (*models.Module, error) {
	var existing models.Module
	err := s.db.WithContext(ctx).First(&existing, "module_name = ?", name).Error
	if err == nil {
		return nil, apperr.Conflict("module name already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	module := models.Module{
		ModuleName:  name,
		Description: description,
		CreatedAt:   s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("RolePermissions").Create(&module).Error; err != nil {
			return err
		}
		var roles []models.Role
		if err := tx.Find(&roles).Error; err != nil {
			return err
		}
		var permissions []models.Permission
		if err := tx.Find(&permissions).Error; err != nil {
			return err
		}
		cells := make([]models.RolePermission, 0, len(roles)*len(permissions))
		for _, r := range roles {
			for _, p := range permissions {
				cells = append(cells, models.RolePermission{
					RoleID:       r.RoleID,
					ModuleID:     module.ModuleID,
					PermissionID: p.PermissionID,
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
			return nil, apperr.Conflict("module name already exists")
		}
		return nil, apperr.Internal(err)
	}

	s.audit(ctx, "module.create", map[string]any{"moduleId": module.ModuleID, "name": module.ModuleName})
	return &module, nil
}

func (s *Service) UpdateModule(ctx context.Context, id int64, name string, description *string) error {
	var module models.Module
	err := s.db.WithContext(ctx).First(&module, "module_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("module not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&module).Updates(map[string]any{
		"module_name": name,
		"description": description,
		"updated_at":  &now,
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("module name already exists")
		}
		return apperr.Internal(res.Error)
	}
	s.audit(ctx, "module.update", map[string]any{"moduleId": id, "name": name})
	return nil
}

// DeleteModule removes the module and every matrix cell referencing it.
func (s *Service) DeleteModule(ctx context.Context, id int64) error {
	var module models.Module
	err := s.db.WithContext(ctx).First(&module, "module_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("module not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("module_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&module).Error
	})
	if err != nil {
		return apperr.Internal(err)
	}
	s.audit(ctx, "module.delete", map[string]any{"moduleId": id, "name": module.ModuleName})
	return nil
}
