package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"keymart/internal/apperr"
	"keymart/internal/auth"
	"keymart/internal/services/account"
)

type sendOtpReq struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func SendOtp(svc *account.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendOtpReq
		if !decodeValid(w, r, &req) {
			return
		}
		msg, err := svc.SendOtp(r.Context(), req.Email)
		if err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, http.StatusOK, msg)
	}
}

type verifyOtpReq struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Otp   string `json:"otp" validate:"required,len=6"`
}

func VerifyOtp(svc *account.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyOtpReq
		if !decodeValid(w, r, &req) {
			return
		}
		// A wrong or expired code is a 200 with isVerified=false, not an error.
		res, err := svc.VerifyOtp(r.Context(), req.Email, req.Otp)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func Register(svc *account.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.RegisterInput
		if !decodeValid(w, r, &req) {
			return
		}
		res, err := svc.Register(r.Context(), req)
		if err != nil {
			respondError(w, err)
			return
		}
		lg.Infow("user registered", "email", req.Email, "username", req.Username)
		respondJSON(w, http.StatusOK, res)
	}
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func Login(svc *account.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if !decodeValid(w, r, &req) {
			return
		}
		res, err := svc.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func RefreshToken(svc *account.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshReq
		if !decodeValid(w, r, &req) {
			return
		}
		res, err := svc.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func Logout(svc *account.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshReq
		if !decodeValid(w, r, &req) {
			return
		}
		if err := svc.Logout(r.Context(), req.RefreshToken); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, http.StatusOK, "logged out")
	}
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=100"`
}

func ChangePassword(svc *account.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if !decodeValid(w, r, &req) {
			return
		}
		accountID := auth.AccountID(r.Context())
		if accountID == "" {
			respondError(w, apperr.Unauthorized("missing account claim"))
			return
		}
		if err := svc.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
			respondError(w, err)
			return
		}
		respondMessage(w, http.StatusOK, "password changed successfully")
	}
}
