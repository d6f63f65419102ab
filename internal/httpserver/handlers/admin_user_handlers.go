package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keymart/internal/auth"
	"keymart/internal/mailer"
	"keymart/internal/models"
)

func writeAudit(ctx context.Context, db *gorm.DB, lg *zap.SugaredLogger, action string, metadata map[string]any) {
	entry := models.AuditLog{Action: action}
	if actor := auth.Subject(ctx); actor != "" {
		entry.UserID = &actor
	}
	if b, err := json.Marshal(metadata); err == nil {
		entry.Metadata = models.JSONB(b)
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		lg.Warnw("audit write failed", "action", action, "error", err)
	}
}

func ListUsers(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var users []models.User
		if err := db.Preload("Roles").Preload("Account").Order("created_at desc").Find(&users).Error; err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}
		respondJSON(w, http.StatusOK, users)
	}
}

func GetUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user models.User
		err := db.Preload("Roles").Preload("Account").First(&user, "user_id = ?", chi.URLParam(r, "id")).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}
		respondJSON(w, http.StatusOK, user)
	}
}

type createUserReq struct {
	Username  string   `json:"username" validate:"required,min=3,max=60"`
	Password  string   `json:"password" validate:"required,min=6,max=100"`
	Email     string   `json:"email" validate:"required,email,max=254"`
	FirstName *string  `json:"firstName,omitempty" validate:"omitempty,max=80"`
	LastName  *string  `json:"lastName,omitempty" validate:"omitempty,max=80"`
	Phone     *string  `json:"phone,omitempty" validate:"omitempty,max=32"`
	RoleIDs   []string `json:"roleIds,omitempty"`
}

func CreateUser(db *gorm.DB, hasher *auth.Hasher, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserReq
		if !decodeValid(w, r, &req) {
			return
		}
		hash, err := hasher.Hash(req.Password)
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}

		user := models.User{
			UserID:    uuid.NewString(),
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
			Status:    models.StatusActive,
		}
		if req.FirstName != nil && req.LastName != nil {
			full := *req.FirstName + " " + *req.LastName
			user.FullName = &full
		}
		acct := models.Account{
			AccountID:    uuid.NewString(),
			Username:     req.Username,
			PasswordHash: hash,
			UserID:       user.UserID,
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if len(req.RoleIDs) > 0 {
				var roles []models.Role
				if err := tx.Where("role_id IN ?", req.RoleIDs).Find(&roles).Error; err != nil {
					return err
				}
				user.Roles = roles
			}
			if err := tx.Omit("Account").Create(&user).Error; err != nil {
				return err
			}
			return tx.Omit("User").Create(&acct).Error
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				respondMessage(w, http.StatusConflict, "username or email already exists")
				return
			}
			respondMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		writeAudit(r.Context(), db, lg, "user.create", map[string]any{"userId": user.UserID, "username": req.Username})
		lg.Infow("admin created user", "userId", user.UserID, "by", auth.Subject(r.Context()))
		respondJSON(w, http.StatusCreated, map[string]string{"userId": user.UserID, "accountId": acct.AccountID})
	}
}

type updateUserReq struct {
	FirstName *string  `json:"firstName,omitempty" validate:"omitempty,max=80"`
	LastName  *string  `json:"lastName,omitempty" validate:"omitempty,max=80"`
	Phone     *string  `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address   *string  `json:"address,omitempty" validate:"omitempty,max=300"`
	Status    *string  `json:"status,omitempty" validate:"omitempty,oneof=Active Locked Disabled"`
	RoleIDs   []string `json:"roleIds,omitempty"`
}

func UpdateUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserReq
		if !decodeValid(w, r, &req) {
			return
		}
		var user models.User
		err := db.Preload("Roles").First(&user, "user_id = ?", chi.URLParam(r, "id")).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}

		if req.FirstName != nil {
			user.FirstName = req.FirstName
		}
		if req.LastName != nil {
			user.LastName = req.LastName
		}
		if user.FirstName != nil && user.LastName != nil {
			full := *user.FirstName + " " + *user.LastName
			user.FullName = &full
		}
		if req.Phone != nil {
			user.Phone = req.Phone
		}
		if req.Address != nil {
			user.Address = req.Address
		}
		if req.Status != nil {
			user.Status = *req.Status
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if req.RoleIDs != nil {
				var roles []models.Role
				if err := tx.Where("role_id IN ?", req.RoleIDs).Find(&roles).Error; err != nil {
					return err
				}
				if err := tx.Model(&user).Association("Roles").Replace(roles); err != nil {
					return err
				}
			}
			return tx.Omit("Roles", "Account").Save(&user).Error
		})
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}
		writeAudit(r.Context(), db, lg, "user.update", map[string]any{"userId": user.UserID})
		respondJSON(w, http.StatusOK, map[string]bool{"updated": true})
	}
}

func DeleteUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var user models.User
		err := db.First(&user, "user_id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondMessage(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", id).Delete(&models.Account{}).Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM user_roles WHERE user_id = ?", id).Error; err != nil {
				return err
			}
			return tx.Delete(&user).Error
		})
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}
		writeAudit(r.Context(), db, lg, "user.delete", map[string]any{"userId": id})
		lg.Infow("admin deleted user", "userId", id, "by", auth.Subject(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}
}

// ResetUserPassword replaces the account password with a random temporary one
// and emails it to the user. The plaintext is never stored; there is no way to
// read a password back out of the system.
func ResetUserPassword(db *gorm.DB, hasher *auth.Hasher, mail mailer.Mailer, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var user models.User
		err := db.Preload("Account").First(&user, "user_id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && user.Account == nil) {
			respondMessage(w, http.StatusNotFound, "user or account not found")
			return
		}
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}

		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}
		tempPassword := base64.RawURLEncoding.EncodeToString(buf)

		hash, err := hasher.Hash(tempPassword)
		if err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}
		if err := db.Model(user.Account).Update("password_hash", hash).Error; err != nil {
			respondMessage(w, http.StatusInternalServerError, "an unexpected error occurred")
			return
		}

		subject, body := mailer.TempPasswordEmail(user.Account.Username, tempPassword)
		if err := mail.Send(user.Email, subject, body); err != nil {
			lg.Errorw("temporary password email failed", "userId", id, "error", err)
			respondMessage(w, http.StatusInternalServerError, "password reset but email delivery failed")
			return
		}
		writeAudit(r.Context(), db, lg, "user.password.reset", map[string]any{"userId": id})
		lg.Infow("admin reset user password", "userId", id, "by", auth.Subject(r.Context()))
		respondMessage(w, http.StatusOK, "temporary password sent to the user's email")
	}
}
