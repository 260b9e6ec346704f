package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/baharkarakas/user-accounts/internal/api/httpx"
	"github.com/baharkarakas/user-accounts/internal/auth"
	"github.com/baharkarakas/user-accounts/internal/services"
)

const msgInvalidRefresh = "Invalid refresh token"

type AuthHandler struct {
	TM    *auth.TokenManager
	Users *services.UserService
}

func NewAuthHandler(tm *auth.TokenManager, users *services.UserService) *AuthHandler {
	return &AuthHandler{TM: tm, Users: users}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	Status       int    `json:"status"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds until the access token expires
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		httpx.WriteEnvelope(w, http.StatusUnauthorized, services.MsgInvalidCredential)
		return
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.issue(w, r, strconv.FormatInt(u.ID, 10))
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if !decode(w, r, &req) {
		return
	}
	claims, isRefresh, err := h.TM.ParseAny(req.RefreshToken)
	if err != nil || !isRefresh {
		httpx.WriteEnvelope(w, http.StatusUnauthorized, msgInvalidRefresh)
		return
	}
	// the account must still exist
	u, err := h.Users.SessionUser(r.Context(), claims.UserID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if u == nil {
		httpx.WriteEnvelope(w, http.StatusUnauthorized, msgInvalidRefresh)
		return
	}
	h.issue(w, r, claims.UserID)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, uid string) {
	access, refresh, exp, err := h.TM.GeneratePair(uid)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		Status:       http.StatusOK,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Truncate(time.Second) / time.Second),
	})
}
