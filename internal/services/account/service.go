// Package account orchestrates the credential lifecycle: OTP verification,
// registration, login with lockout, token refresh and password change.
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keymart/internal/apperr"
	"keymart/internal/auth"
	"keymart/internal/cache"
	"keymart/internal/mailer"
	"keymart/internal/models"
)

const (
	otpKeyPrefix    = "OTP_"
	verifyKeyPrefix = "VERIFY_TOKEN_"

	otpExpiry    = 5 * time.Minute
	verifyExpiry = 30 * time.Minute

	maxFailedLogins = 5
	lockDuration    = 15 * time.Minute
)

type Service struct {
	db      *gorm.DB
	cache   cache.Store
	mail    mailer.Mailer
	tokens  *auth.TokenIssuer
	refresh *auth.RefreshStore
	hasher  *auth.Hasher
	lg      *zap.SugaredLogger

	// now is swapped out in tests to drive lockout arithmetic.
	now func() time.Time
}

func New(db *gorm.DB, store cache.Store, mail mailer.Mailer, tokens *auth.TokenIssuer, refresh *auth.RefreshStore, hasher *auth.Hasher, lg *zap.SugaredLogger) *Service {
	return &Service{
		db:      db,
		cache:   store,
		mail:    mail,
		tokens:  tokens,
		refresh: refresh,
		hasher:  hasher,
		lg:      lg,
		now:     time.Now,
	}
}

type RegisterInput struct {
	Username          string  `json:"username" validate:"required,min=3,max=60"`
	Password          string  `json:"password" validate:"required,min=6,max=100"`
	Email             string  `json:"email" validate:"required,email,max=254"`
	FirstName         string  `json:"firstName" validate:"required,max=80"`
	LastName          string  `json:"lastName" validate:"required,max=80"`
	Phone             *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address           *string `json:"address,omitempty" validate:"omitempty,max=300"`
	VerificationToken string  `json:"verificationToken" validate:"required"`
}

// OtpResult is a soft outcome: a wrong or expired code is an expected event,
// not an error.
type OtpResult struct {
	IsVerified        bool   `json:"isVerified"`
	Message           string `json:"message"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

type UserInfo struct {
	UserID    string   `json:"userId"`
	AccountID string   `json:"accountId"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FullName  string   `json:"fullName"`
	Phone     *string  `json:"phone,omitempty"`
	AvatarUrl *string  `json:"avatarUrl,omitempty"`
	Status    string   `json:"status"`
	Roles     []string `json:"roles"`
}

type LoginResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         UserInfo  `json:"user"`
}

func otpKey(email string) string    { return otpKeyPrefix + email }
func verifyKey(email string) string { return verifyKeyPrefix + email }

// SendOtp generates a 6-digit code for the email, caches it for five minutes
// and dispatches it. Resending overwrites the previous code and restarts the
// timer.
func (s *Service) SendOtp(ctx context.Context, email string) (string, error) {
	taken, err := s.IsEmailTaken(ctx, email)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if taken {
		return "", apperr.Invalid("email already used")
	}

	code, err := generateOtp()
	if err != nil {
		return "", apperr.Internal(err)
	}
	if err := s.cache.SetTTL(ctx, otpKey(email), code, otpExpiry); err != nil {
		return "", apperr.Internal(err)
	}

	subject, body := mailer.OtpEmail(code, int(otpExpiry.Minutes()))
	if err := s.mail.Send(email, subject, body); err != nil {
		s.lg.Errorw("otp email dispatch failed", "email", email, "error", err)
		return "", apperr.Internal(err)
	}

	return fmt.Sprintf("An OTP code has been sent to %s. It is valid for %d minutes.", email, int(otpExpiry.Minutes())), nil
}

// VerifyOtp checks the cached code. On success the code is consumed and a
// verification token good for thirty minutes is issued. A mismatched code is
// left in the cache so the user may retry until it expires.
func (s *Service) VerifyOtp(ctx context.Context, email, otp string) (OtpResult, error) {
	stored, ok, err := s.cache.Get(ctx, otpKey(email))
	if err != nil {
		return OtpResult{}, apperr.Internal(err)
	}
	if !ok {
		return OtpResult{IsVerified: false, Message: "OTP code missing or expired"}, nil
	}
	if stored != otp {
		return OtpResult{IsVerified: false, Message: "incorrect OTP code"}, nil
	}

	if err := s.cache.Delete(ctx, otpKey(email)); err != nil {
		return OtpResult{}, apperr.Internal(err)
	}
	token, err := generateVerificationToken()
	if err != nil {
		return OtpResult{}, apperr.Internal(err)
	}
	if err := s.cache.SetTTL(ctx, verifyKey(email), token, verifyExpiry); err != nil {
		return OtpResult{}, apperr.Internal(err)
	}

	return OtpResult{IsVerified: true, Message: "OTP verified successfully", VerificationToken: token}, nil
}

// Register creates the User and Account in one transaction, consuming the
// verification token on success.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*LoginResponse, error) {
	stored, ok, err := s.cache.Get(ctx, verifyKey(in.Email))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok || stored != in.VerificationToken {
		return nil, apperr.Unauthorized("verification token invalid or expired, please verify OTP again")
	}

	if taken, err := s.IsUsernameTaken(ctx, in.Username); err != nil {
		return nil, apperr.Internal(err)
	} else if taken {
		return nil, apperr.Conflict("username already exists")
	}
	if taken, err := s.IsEmailTaken(ctx, in.Email); err != nil {
		return nil, apperr.Internal(err)
	} else if taken {
		return nil, apperr.Conflict("email already registered")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	fullName := in.FirstName + " " + in.LastName
	user := models.User{
		UserID:        uuid.NewString(),
		FirstName:     &in.FirstName,
		LastName:      &in.LastName,
		FullName:      &fullName,
		Email:         in.Email,
		Phone:         in.Phone,
		Address:       in.Address,
		Status:        models.StatusActive,
		EmailVerified: true, // proven by OTP
		CreatedAt:     s.now(),
	}
	acct := models.Account{
		AccountID:    uuid.NewString(),
		Username:     in.Username,
		PasswordHash: hash,
		UserID:       user.UserID,
		CreatedAt:    s.now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Roles", "Account").Create(&user).Error; err != nil {
			return err
		}
		return tx.Omit("User").Create(&acct).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("username or email already registered")
		}
		return nil, apperr.Internal(err)
	}

	// Single use: the token dies with the registration that consumed it.
	if err := s.cache.Delete(ctx, verifyKey(in.Email)); err != nil {
		s.lg.Warnw("verification token cleanup failed", "email", in.Email, "error", err)
	}

	loaded, err := s.loadUserWithRoles(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	return s.loginResponse(ctx, &acct, loaded)
}

// Login authenticates by username and password, enforcing the lockout policy:
// five consecutive failures lock the account for fifteen minutes.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).Preload("User.Roles").First(&acct, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Same message as a wrong password, to avoid username enumeration.
		return nil, apperr.Unauthorized("incorrect username or password")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now()
	if acct.LockedUntil != nil && acct.LockedUntil.After(now) {
		remaining := int(math.Ceil(acct.LockedUntil.Sub(now).Minutes()))
		return nil, apperr.Unauthorized(fmt.Sprintf("account is locked, retry in %d minutes", remaining))
	}
	if acct.User.Status != models.StatusActive {
		return nil, apperr.Unauthorized("account disabled")
	}

	if !s.hasher.Verify(password, acct.PasswordHash) {
		acct.FailedLoginCount++
		if acct.FailedLoginCount >= maxFailedLogins {
			until := now.Add(lockDuration)
			acct.LockedUntil = &until
			acct.FailedLoginCount = 0
		}
		if err := s.saveLoginState(ctx, &acct); err != nil {
			return nil, apperr.Internal(err)
		}
		return nil, apperr.Unauthorized("incorrect username or password")
	}

	acct.FailedLoginCount = 0
	acct.LockedUntil = nil
	acct.LastLoginAt = &now
	if err := s.saveLoginState(ctx, &acct); err != nil {
		return nil, apperr.Internal(err)
	}

	return s.loginResponse(ctx, &acct, &acct.User)
}

// Refresh redeems an opaque refresh token and issues a fresh token pair.
// Each refresh token works exactly once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	accountID, ok, err := s.refresh.Redeem(ctx, refreshToken)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Unauthorized("refresh token invalid or expired")
	}

	var acct models.Account
	err = s.db.WithContext(ctx).Preload("User.Roles").First(&acct, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized("account no longer exists or is disabled")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if acct.User.Status != models.StatusActive {
		return nil, apperr.Unauthorized("account no longer exists or is disabled")
	}

	return s.loginResponse(ctx, &acct, &acct.User)
}

// Logout revokes a refresh token. The access token stays valid until it
// expires on its own.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ChangePassword re-hashes after verifying the current password. Existing
// sessions stay valid until their tokens expire.
func (s *Service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	var acct models.Account
	err := s.db.WithContext(ctx).First(&acct, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("account not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	if !s.hasher.Verify(currentPassword, acct.PasswordHash) {
		return apperr.Unauthorized("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	now := s.now()
	res := s.db.WithContext(ctx).Model(&acct).Updates(map[string]any{
		"password_hash": hash,
		"updated_at":    &now,
	})
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	return nil
}

func (s *Service) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

func (s *Service) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

func (s *Service) saveLoginState(ctx context.Context, acct *models.Account) error {
	return s.db.WithContext(ctx).Model(acct).Updates(map[string]any{
		"failed_login_count": acct.FailedLoginCount,
		"locked_until":       acct.LockedUntil,
		"last_login_at":      acct.LastLoginAt,
	}).Error
}

func (s *Service) loadUserWithRoles(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").First(&user, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &user, nil
}

func (s *Service) loginResponse(ctx context.Context, acct *models.Account, user *models.User) (*LoginResponse, error) {
	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, r.RoleID)
	}

	access, expiresAt, err := s.tokens.Issue(user.UserID, acct.Username, user.Email, acct.AccountID, roles)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refreshTok, err := s.refresh.Issue(ctx, acct.AccountID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	fullName := ""
	if user.FullName != nil {
		fullName = *user.FullName
	}
	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: refreshTok,
		ExpiresAt:    expiresAt,
		User: UserInfo{
			UserID:    user.UserID,
			AccountID: acct.AccountID,
			Username:  acct.Username,
			Email:     user.Email,
			FullName:  fullName,
			Phone:     user.Phone,
			AvatarUrl: user.AvatarUrl,
			Status:    user.Status,
			Roles:     roles,
		},
	}, nil
}

// generateOtp draws a uniform 6-digit zero-padded code.
func generateOtp() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1_000_000
	return fmt.Sprintf("%06d", n), nil
}

func generateVerificationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
