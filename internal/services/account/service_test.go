package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"keymart/internal/apperr"
	"keymart/internal/auth"
	"keymart/internal/cache"
	"keymart/internal/models"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	sent []sentMail
	fail bool
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.fail {
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type harness struct {
	svc  *Service
	db   *gorm.DB
	mr   *miniredis.Miniredis
	mail *fakeMailer
	now  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Role{}, &models.User{}, &models.Account{}, &models.Module{}, &models.Permission{}, &models.RolePermission{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := cache.NewRedis(rdb)

	mail := &fakeMailer{}
	tokens := &auth.TokenIssuer{
		Secret:    []byte("unit-test-secret-unit-test-secret"),
		Issuer:    "keymart",
		Audience:  "keymart-admin",
		AccessTTL: 30 * time.Minute,
	}
	refresh := &auth.RefreshStore{Store: store, TTL: 7 * 24 * time.Hour}

	h := &harness{
		db:   db,
		mr:   mr,
		mail: mail,
		now:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	h.svc = New(db, store, mail, tokens, refresh, auth.NewHasher(), zap.NewNop().Sugar())
	h.svc.now = func() time.Time { return h.now }
	return h
}

// seedAccount creates a user+account directly, bypassing the OTP flow.
func (h *harness) seedAccount(t *testing.T, username, email, password, status string) *models.Account {
	t.Helper()
	hash, err := h.svc.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := models.User{
		UserID:        uuid.NewString(),
		Email:         email,
		Status:        status,
		EmailVerified: true,
		CreatedAt:     h.now,
	}
	if err := h.db.Omit("Roles", "Account").Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	acct := models.Account{
		AccountID:    uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		UserID:       user.UserID,
		CreatedAt:    h.now,
	}
	if err := h.db.Omit("User").Create(&acct).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	return &acct
}

func (h *harness) cachedOtp(t *testing.T, email string) string {
	t.Helper()
	code, err := h.mr.Get(otpKeyPrefix + email)
	if err != nil {
		t.Fatalf("otp not in cache: %v", err)
	}
	return code
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("want error with status %d, got nil", status)
	}
	if got := apperr.Status(err); got != status {
		t.Fatalf("status = %d (%v), want %d", got, err, status)
	}
}

func TestSendOtpRejectsRegisteredEmail(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "alice", "a@b.com", "pw123456", models.StatusActive)

	_, err := h.svc.SendOtp(context.Background(), "a@b.com")
	wantStatus(t, err, http.StatusBadRequest)
}

func TestSendOtpCachesAndMails(t *testing.T) {
	h := newHarness(t)
	msg, err := h.svc.SendOtp(context.Background(), "new@b.com")
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if !strings.Contains(msg, "new@b.com") {
		t.Fatalf("confirmation message %q does not name the address", msg)
	}
	code := h.cachedOtp(t, "new@b.com")
	if len(code) != 6 {
		t.Fatalf("otp %q is not 6 digits", code)
	}
	if len(h.mail.sent) != 1 || h.mail.sent[0].To != "new@b.com" {
		t.Fatalf("mail dispatch missing: %+v", h.mail.sent)
	}
	if !strings.Contains(h.mail.sent[0].Body, code) {
		t.Fatal("mail body does not carry the code")
	}
}

func TestSendOtpSurfacesMailFailure(t *testing.T) {
	h := newHarness(t)
	h.mail.fail = true
	_, err := h.svc.SendOtp(context.Background(), "new@b.com")
	wantStatus(t, err, http.StatusInternalServerError)
}

func TestResendInvalidatesPreviousOtp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.SendOtp(ctx, "x@b.com"); err != nil {
		t.Fatalf("send: %v", err)
	}
	first := h.cachedOtp(t, "x@b.com")
	if _, err := h.svc.SendOtp(ctx, "x@b.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := h.cachedOtp(t, "x@b.com")

	if first != second {
		res, err := h.svc.VerifyOtp(ctx, "x@b.com", first)
		if err != nil || res.IsVerified {
			t.Fatalf("stale code verified: %+v err=%v", res, err)
		}
	}
	res, err := h.svc.VerifyOtp(ctx, "x@b.com", second)
	if err != nil || !res.IsVerified {
		t.Fatalf("latest code rejected: %+v err=%v", res, err)
	}
}

func TestOtpExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.SendOtp(ctx, "x@b.com"); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := h.cachedOtp(t, "x@b.com")
	h.mr.FastForward(otpExpiry + time.Second)

	res, err := h.svc.VerifyOtp(ctx, "x@b.com", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.IsVerified {
		t.Fatal("expired code verified")
	}
	if !strings.Contains(res.Message, "expired") {
		t.Fatalf("message %q does not mention expiry", res.Message)
	}
}

func TestWrongOtpLeavesCodeForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _ = h.svc.SendOtp(ctx, "x@b.com")
	code := h.cachedOtp(t, "x@b.com")

	res, err := h.svc.VerifyOtp(ctx, "x@b.com", "000000")
	if err != nil || res.IsVerified {
		t.Fatalf("wrong code: %+v err=%v", res, err)
	}
	// The code survives a mismatch; only success consumes it.
	res, err = h.svc.VerifyOtp(ctx, "x@b.com", code)
	if err != nil || !res.IsVerified {
		t.Fatalf("retry with correct code failed: %+v err=%v", res, err)
	}
	res, _ = h.svc.VerifyOtp(ctx, "x@b.com", code)
	if res.IsVerified {
		t.Fatal("consumed code verified twice")
	}
}

func registerInput(email, username, token string) RegisterInput {
	return RegisterInput{
		Username:          username,
		Password:          "hunter22",
		Email:             email,
		FirstName:         "Ada",
		LastName:          "Lovelace",
		VerificationToken: token,
	}
}

func TestRegisterLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _ = h.svc.SendOtp(ctx, "ada@b.com")
	res, _ := h.svc.VerifyOtp(ctx, "ada@b.com", h.cachedOtp(t, "ada@b.com"))
	if !res.IsVerified || res.VerificationToken == "" {
		t.Fatalf("verification failed: %+v", res)
	}

	lr, err := h.svc.Register(ctx, registerInput("ada@b.com", "ada", res.VerificationToken))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if lr.AccessToken == "" || lr.RefreshToken == "" {
		t.Fatal("register did not issue tokens")
	}
	if lr.User.Username != "ada" || lr.User.Email != "ada@b.com" || lr.User.Status != models.StatusActive {
		t.Fatalf("user info mismatch: %+v", lr.User)
	}
	if lr.User.FullName != "Ada Lovelace" {
		t.Fatalf("full name = %q", lr.User.FullName)
	}

	var user models.User
	if err := h.db.First(&user, "email = ?", "ada@b.com").Error; err != nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if !user.EmailVerified {
		t.Fatal("email not marked verified after OTP registration")
	}

	// The verification token is single use.
	_, err = h.svc.Register(ctx, registerInput("ada@b.com", "ada2", res.VerificationToken))
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestRegisterRejectsBadToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Register(context.Background(), registerInput("x@b.com", "xuser", "forged"))
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestVerificationTokenExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _ = h.svc.SendOtp(ctx, "x@b.com")
	res, _ := h.svc.VerifyOtp(ctx, "x@b.com", h.cachedOtp(t, "x@b.com"))
	h.mr.FastForward(verifyExpiry + time.Second)

	_, err := h.svc.Register(ctx, registerInput("x@b.com", "xuser", res.VerificationToken))
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestRegisterConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "taken", "taken@b.com", "pw123456", models.StatusActive)

	_, _ = h.svc.SendOtp(ctx, "fresh@b.com")
	res, _ := h.svc.VerifyOtp(ctx, "fresh@b.com", h.cachedOtp(t, "fresh@b.com"))

	_, err := h.svc.Register(ctx, registerInput("fresh@b.com", "taken", res.VerificationToken))
	wantStatus(t, err, http.StatusConflict)

	// The failed attempt must not consume the token.
	lr, err := h.svc.Register(ctx, registerInput("fresh@b.com", "fresh", res.VerificationToken))
	if err != nil {
		t.Fatalf("register after conflict: %v", err)
	}
	if lr.User.Username != "fresh" {
		t.Fatalf("unexpected user: %+v", lr.User)
	}
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.seedAccount(t, "bob", "bob@b.com", "pw123456", models.StatusActive)

	_, err := h.svc.Login(ctx, "bob", "wrong")
	wantStatus(t, err, http.StatusUnauthorized)

	lr, err := h.svc.Login(ctx, "bob", "pw123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if lr.User.AccountID != acct.AccountID {
		t.Fatalf("account mismatch: %+v", lr.User)
	}

	var reloaded models.Account
	_ = h.db.First(&reloaded, "account_id = ?", acct.AccountID).Error
	if reloaded.FailedLoginCount != 0 || reloaded.LockedUntil != nil {
		t.Fatalf("login state not reset: count=%d locked=%v", reloaded.FailedLoginCount, reloaded.LockedUntil)
	}
	if reloaded.LastLoginAt == nil || !reloaded.LastLoginAt.Equal(h.now) {
		t.Fatalf("last login not recorded: %v", reloaded.LastLoginAt)
	}
}

func TestLoginUnknownUsername(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Login(context.Background(), "ghost", "pw")
	wantStatus(t, err, http.StatusUnauthorized)
	if apperr.Message(err) != "incorrect username or password" {
		t.Fatalf("enumeration-safe message violated: %q", apperr.Message(err))
	}
}

func TestLoginDisabledUser(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "carol", "c@b.com", "pw123456", models.StatusDisabled)
	_, err := h.svc.Login(context.Background(), "carol", "pw123456")
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "dave", "d@b.com", "pw123456", models.StatusActive)

	for i := 0; i < maxFailedLogins; i++ {
		_, err := h.svc.Login(ctx, "dave", "wrong")
		wantStatus(t, err, http.StatusUnauthorized)
	}

	// Inside the window even the correct password is refused with a lock
	// message carrying the remaining minutes.
	_, err := h.svc.Login(ctx, "dave", "pw123456")
	wantStatus(t, err, http.StatusUnauthorized)
	if msg := apperr.Message(err); !strings.Contains(msg, "locked") || !strings.Contains(msg, "15") {
		t.Fatalf("lock message = %q", msg)
	}

	h.now = h.now.Add(7 * time.Minute)
	_, err = h.svc.Login(ctx, "dave", "pw123456")
	if msg := apperr.Message(err); !strings.Contains(msg, "8 minutes") {
		t.Fatalf("remaining minutes not ceiling'd: %q", msg)
	}

	// After the window, the correct password succeeds and clears the lock.
	h.now = h.now.Add(9 * time.Minute)
	lr, err := h.svc.Login(ctx, "dave", "pw123456")
	if err != nil {
		t.Fatalf("login after lock window: %v", err)
	}
	if lr.AccessToken == "" {
		t.Fatal("no token after successful login")
	}
	var reloaded models.Account
	_ = h.db.First(&reloaded, "username = ?", "dave").Error
	if reloaded.LockedUntil != nil {
		t.Fatal("lock not cleared")
	}
}

func TestLockResetsFailureCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.seedAccount(t, "erin", "e@b.com", "pw123456", models.StatusActive)

	for i := 0; i < maxFailedLogins; i++ {
		_, _ = h.svc.Login(ctx, "erin", "wrong")
	}
	var reloaded models.Account
	_ = h.db.First(&reloaded, "account_id = ?", acct.AccountID).Error
	if reloaded.FailedLoginCount != 0 {
		t.Fatalf("counter = %d after lock, want 0", reloaded.FailedLoginCount)
	}
	if reloaded.LockedUntil == nil || !reloaded.LockedUntil.Equal(h.now.Add(lockDuration)) {
		t.Fatalf("locked_until = %v", reloaded.LockedUntil)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.seedAccount(t, "frank", "f@b.com", "oldpass1", models.StatusActive)

	err := h.svc.ChangePassword(ctx, acct.AccountID, "wrong", "newpass1")
	wantStatus(t, err, http.StatusUnauthorized)

	// A refused change leaves the stored hash untouched.
	var reloaded models.Account
	_ = h.db.First(&reloaded, "account_id = ?", acct.AccountID).Error
	if !h.svc.hasher.Verify("oldpass1", reloaded.PasswordHash) {
		t.Fatal("stored hash changed on refused attempt")
	}

	if err := h.svc.ChangePassword(ctx, acct.AccountID, "oldpass1", "newpass1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := h.svc.Login(ctx, "frank", "oldpass1"); err == nil {
		t.Fatal("old password still accepted")
	}
	if _, err := h.svc.Login(ctx, "frank", "newpass1"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestChangePasswordUnknownAccount(t *testing.T) {
	h := newHarness(t)
	err := h.svc.ChangePassword(context.Background(), uuid.NewString(), "a", "b")
	wantStatus(t, err, http.StatusNotFound)
}

func TestRefreshRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "gina", "g@b.com", "pw123456", models.StatusActive)

	lr, err := h.svc.Login(ctx, "gina", "pw123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := h.svc.Refresh(ctx, lr.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == lr.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// Redeemed tokens are dead.
	_, err = h.svc.Refresh(ctx, lr.RefreshToken)
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestRefreshRejectsDisabledUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.seedAccount(t, "hank", "h@b.com", "pw123456", models.StatusActive)

	lr, err := h.svc.Login(ctx, "hank", "pw123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := h.db.Model(&models.User{}).Where("user_id = ?", acct.UserID).Update("status", models.StatusDisabled).Error; err != nil {
		t.Fatalf("disable user: %v", err)
	}
	_, err = h.svc.Refresh(ctx, lr.RefreshToken)
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Refresh(context.Background(), "not-a-token")
	wantStatus(t, err, http.StatusUnauthorized)
}
