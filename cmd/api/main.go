package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"keymart/internal/apperr"
	"keymart/internal/auth"
	"keymart/internal/cache"
	"keymart/internal/config"
	"keymart/internal/httpserver"
	"keymart/internal/logger"
	"keymart/internal/mailer"
	"keymart/internal/models"
	"keymart/internal/services/account"
	"keymart/internal/services/rbac"
)

func main() {
	_ = godotenv.Load()
	lg := logger.New()
	defer lg.Sync()

	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(
		&models.Role{}, &models.User{}, &models.Account{},
		&models.Module{}, &models.Permission{}, &models.RolePermission{},
		&models.AuditLog{},
	); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		lg.Fatalw("redis connect failed", "addr", cfg.Redis.Addr, "error", err)
	}
	store := cache.NewRedis(rdb)

	mail := mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	}, 10*time.Second, lg)

	tokens := &auth.TokenIssuer{
		Secret:    []byte(cfg.JWT.Secret),
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		AccessTTL: time.Duration(cfg.JWT.ExpiryMinutes) * time.Minute,
	}
	refresh := &auth.RefreshStore{
		Store: store,
		TTL:   time.Duration(cfg.JWT.RefreshExpiryDays) * 24 * time.Hour,
	}
	hasher := auth.NewHasher()

	accounts := account.New(db, store, mail, tokens, refresh, hasher, lg)
	matrix := rbac.New(db, lg)

	seedDefaults(db, matrix, hasher, lg)

	router := httpserver.NewRouter(httpserver.Deps{
		DB:       db,
		Accounts: accounts,
		RBAC:     matrix,
		Tokens:   tokens,
		Hasher:   hasher,
		Mail:     mail,
		Origins:  cfg.AllowedOrigins,
		Logger:   lg,
	})

	lg.Infow("listening", "port", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, router); err != nil {
		lg.Fatalw("server stopped", "error", err)
	}
}

// seedDefaults makes sure the baseline RBAC axes and the bootstrap admin
// exist. Safe to run on every boot.
func seedDefaults(db *gorm.DB, matrix *rbac.Service, hasher *auth.Hasher, lg *zap.SugaredLogger) {
	ctx := context.Background()

	for _, name := range []string{"View", "Create", "Update", "Delete"} {
		if _, err := matrix.CreatePermission(ctx, name, nil); err != nil && !isConflict(err) {
			lg.Warnw("seed permission failed", "name", name, "error", err)
		}
	}
	for _, name := range []string{"Products", "Categories", "Badges", "Users", "Roles"} {
		if _, err := matrix.CreateModule(ctx, name, nil); err != nil && !isConflict(err) {
			lg.Warnw("seed module failed", "name", name, "error", err)
		}
	}

	var adminRole models.Role
	err := db.First(&adminRole, "name = ?", "Administrator").Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, err := matrix.CreateRole(ctx, "Administrator", true)
		if err != nil {
			lg.Warnw("seed admin role failed", "error", err)
			return
		}
		adminRole = *created
	} else if err != nil {
		lg.Warnw("seed admin role lookup failed", "error", err)
		return
	}

	var count int64
	db.Model(&models.Account{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return
	}
	hash, err := hasher.Hash("ChangeMe!123")
	if err != nil {
		lg.Warnw("seed admin hash failed", "error", err)
		return
	}
	user := models.User{
		UserID:        uuid.NewString(),
		Email:         "admin@keymart.local",
		Status:        models.StatusActive,
		EmailVerified: true,
		CreatedAt:     time.Now(),
		Roles:         []models.Role{adminRole},
	}
	acct := models.Account{
		AccountID:    uuid.NewString(),
		Username:     "admin",
		PasswordHash: hash,
		UserID:       user.UserID,
		CreatedAt:    time.Now(),
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Account").Create(&user).Error; err != nil {
			return err
		}
		return tx.Omit("User").Create(&acct).Error
	})
	if err != nil {
		lg.Warnw("seed admin user failed", "error", err)
		return
	}
	lg.Infow("seeded default admin", "email", user.Email)
}

func isConflict(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e) && e.Kind == apperr.KindConflict
}
