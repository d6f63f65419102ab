// Package rbac manages the Role x Module x Permission access matrix. Creating
// any axis entity seeds its full cross-product of cells; deleting one removes
// every cell referencing it. Both happen inside a single transaction.
package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keymart/internal/apperr"
	"keymart/internal/auth"
	"keymart/internal/models"
)

type Service struct {
	db *gorm.DB
	lg *zap.SugaredLogger

	now func() time.Time
}

func New(db *gorm.DB, lg *zap.SugaredLogger) *Service {
	return &Service{db: db, lg: lg, now: time.Now}
}

// RoleRef is the trimmed role shape exposed to non-admin listings.
type RoleRef struct {
	RoleID string `json:"roleId"`
	Name   string `json:"name"`
}

type MatrixCell struct {
	RoleID         string `json:"roleId"`
	ModuleID       int64  `json:"moduleId"`
	PermissionID   int64  `json:"permissionId"`
	IsActive       bool   `json:"isActive"`
	ModuleName     string `json:"moduleName,omitempty"`
	PermissionName string `json:"permissionName,omitempty"`
}

type RoleMatrix struct {
	RoleID          string       `json:"roleId"`
	RoleName        string       `json:"roleName"`
	RolePermissions []MatrixCell `json:"rolePermissions"`
}

type RoleDetail struct {
	models.Role
	RolePermissions []MatrixCell `json:"rolePermissions"`
}

type MatrixCellUpdate struct {
	RoleID       string `json:"roleId"`
	ModuleID     int64  `json:"moduleId" validate:"required"`
	PermissionID int64  `json:"permissionId" validate:"required"`
	IsActive     bool   `json:"isActive"`
}

type MatrixUpdate struct {
	RoleID          string             `json:"roleId" validate:"required"`
	RolePermissions []MatrixCellUpdate `json:"rolePermissions" validate:"required,min=1"`
}

// ListPublicRoles returns non-system roles only; system roles are hidden from
// storefront-facing listings by flag, not by name matching.
func (s *Service) ListPublicRoles(ctx context.Context) ([]RoleRef, error) {
	var refs []RoleRef
	err := s.db.WithContext(ctx).Model(&models.Role{}).
		Where("is_system = ?", false).
		Select("role_id", "name").
		Find(&refs).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return refs, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.WithContext(ctx).Find(&roles).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return roles, nil
}

func (s *Service) ListActiveRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&roles).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return roles, nil
}

func (s *Service) GetRole(ctx context.Context, id string) (*RoleDetail, error) {
	role, cells, err := s.loadRoleWithCells(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RoleDetail{Role: *role, RolePermissions: cells}, nil
}

// CreateRole persists the role and seeds one active cell per existing
// (module, permission) pair, atomically.
func (s *Service) CreateRole(ctx context.Context, name string, isSystem bool) (*models.Role, error) {
	var existing models.Role
	err := s.db.WithContext(ctx).First(&existing, "name = ?", name).Error
	if err == nil {
		return nil, apperr.Conflict("role name already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	role := models.Role{
		RoleID:    uuid.NewString(),
		Name:      name,
		IsSystem:  isSystem,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("RolePermissions", "Users").Create(&role).Error; err != nil {
			return err
		}
		var modules []models.Module
		if err := tx.Find(&modules).Error; err != nil {
			return err
		}
		var permissions []models.Permission
		if err := tx.Find(&permissions).Error; err != nil {
			return err
		}
		cells := make([]models.RolePermission, 0, len(modules)*len(permissions))
		for _, m := range modules {
			for _, p := range permissions {
				cells = append(cells, models.RolePermission{
					RoleID:       role.RoleID,
					ModuleID:     m.ModuleID,
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
			return nil, apperr.Conflict("role name already exists")
		}
		return nil, apperr.Internal(err)
	}

	s.audit(ctx, "role.create", map[string]any{"roleId": role.RoleID, "name": role.Name, "isSystem": role.IsSystem})
	return &role, nil
}

func (s *Service) UpdateRole(ctx context.Context, id, name string, isActive bool) error {
	var role models.Role
	err := s.db.WithContext(ctx).First(&role, "role_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("role not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&role).Updates(map[string]any{
		"name":       name,
		"is_active":  isActive,
		"updated_at": &now,
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("role name already exists")
		}
		return apperr.Internal(res.Error)
	}
	s.audit(ctx, "role.update", map[string]any{"roleId": id, "name": name, "isActive": isActive})
	return nil
}

// DeleteRole removes the role, its matrix cells and its user assignments.
// System roles are protected.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	var role models.Role
	err := s.db.WithContext(ctx).First(&role, "role_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("role not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if role.IsSystem {
		return apperr.Conflict("system role cannot be deleted")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM user_roles WHERE role_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
	if err != nil {
		return apperr.Internal(err)
	}
	s.audit(ctx, "role.delete", map[string]any{"roleId": id, "name": role.Name})
	return nil
}

func (s *Service) GetRoleMatrix(ctx context.Context, id string) (*RoleMatrix, error) {
	role, cells, err := s.loadRoleWithCells(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RoleMatrix{RoleID: role.RoleID, RoleName: role.Name, RolePermissions: cells}, nil
}

// UpdateRoleMatrix upserts the submitted cells. Cells omitted from the payload
// keep their previous value; the admin UI submits the full cross-product when
// it wants replace semantics.
func (s *Service) UpdateRoleMatrix(ctx context.Context, id string, update MatrixUpdate) (*RoleMatrix, error) {
	if update.RoleID != id {
		return nil, apperr.Invalid("role id mismatch")
	}
	var role models.Role
	err := s.db.WithContext(ctx).First(&role, "role_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("role not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, cell := range update.RolePermissions {
			var existing models.RolePermission
			err := tx.First(&existing,
				"role_id = ? AND module_id = ? AND permission_id = ?",
				id, cell.ModuleID, cell.PermissionID).Error
			switch {
			case err == nil:
				if err := tx.Model(&existing).Update("is_active", cell.IsActive).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				row := models.RolePermission{
					RoleID:       id,
					ModuleID:     cell.ModuleID,
					PermissionID: cell.PermissionID,
					IsActive:     cell.IsActive,
				}
				if err := tx.Omit("Role", "Module", "Permission").Create(&row).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.audit(ctx, "role.permissions.update", map[string]any{"roleId": id, "cells": len(update.RolePermissions)})
	return s.GetRoleMatrix(ctx, id)
}

func (s *Service) loadRoleWithCells(ctx context.Context, id string) (*models.Role, []MatrixCell, error) {
	var role models.Role
	err := s.db.WithContext(ctx).
		Preload("RolePermissions.Module").
		Preload("RolePermissions.Permission").
		First(&role, "role_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFound("role not found")
	}
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	cells := make([]MatrixCell, 0, len(role.RolePermissions))
	for _, rp := range role.RolePermissions {
		cells = append(cells, MatrixCell{
			RoleID:         rp.RoleID,
			ModuleID:       rp.ModuleID,
			PermissionID:   rp.PermissionID,
			IsActive:       rp.IsActive,
			ModuleName:     rp.Module.ModuleName,
			PermissionName: rp.Permission.Name,
		})
	}
	role.RolePermissions = nil
	return &role, cells, nil
}

func (s *Service) audit(ctx context.Context, action string, metadata map[string]any) {
	entry := models.AuditLog{
		Action:    action,
		CreatedAt: s.now(),
	}
	if actor := auth.Subject(ctx); actor != "" {
		entry.UserID = &actor
	}
	if b, err := json.Marshal(metadata); err == nil {
		entry.Metadata = models.JSONB(b)
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.lg.Warnw("audit write failed", "action", action, "error", err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []models.AuditLog
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return logs, nil
}
