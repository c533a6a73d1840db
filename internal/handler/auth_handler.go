package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sawaday/shohyo/internal/middleware"
	"github.com/sawaday/shohyo/internal/model"
)

// AuthAPI は認証ハンドラーが必要とするAPIクライアントの部分集合。
type AuthAPI interface {
	SignIn(ctx context.Context, email, password string) (string, error)
	SignUp(ctx context.Context, name, email, password string) (string, error)
	GetUser(ctx context.Context, token string) (*model.UserProfile, error)
}

// SessionController はハンドラーが必要とするセッション管理の操作インターフェース。
type SessionController interface {
	Login(ctx context.Context, token, name, iconURL string) error
	Logout(ctx context.Context)
	UpdateDisplay(ctx context.Context, name, iconURL string) error
	Current() model.Session
	IsLoggedIn() bool
}

// AuthHandler はログイン・ユーザー登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	api      AuthAPI
	sessions SessionController
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(api AuthAPI, sessions SessionController) *AuthHandler {
	return &AuthHandler{
		api:      api,
		sessions: sessions,
	}
}

// sessionResponse はセッション状態のレスポンス。
type sessionResponse struct {
	IsLoggedIn bool   `json:"isLoggedIn"`
	UserName   string `json:"userName"`
	IconURL    string `json:"iconUrl"`
}

// toSessionResponse はSessionからレスポンスを作る。トークンは外に出さない。
func toSessionResponse(sess model.Session) sessionResponse {
	return sessionResponse{
		IsLoggedIn: sess.IsLoggedIn(),
		UserName:   sess.UserName,
		IconURL:    sess.IconURL,
	}
}

// loginRequest はログインフォームの入力内容。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login はサインインAPIで認証し、セッションを確立する。
// 認証成功後はプロフィールを取得して表示名とアイコンを復元する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("", "リクエストボディが不正です"))
		return
	}

	if err := validateEmail(req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}

	token, err := h.api.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	// 表示名・アイコンはプロフィールAPIから取得する。
	// 取得に失敗してもトークンは有効なため、空のままログインを成立させる。
	name, iconURL := "", ""
	if profile, err := h.api.GetUser(r.Context(), token); err != nil {
		slog.Warn("プロフィールの取得に失敗しました",
			slog.String("error", err.Error()),
		)
	} else {
		name, iconURL = profile.Name, profile.IconURL
	}

	if err := h.sessions.Login(r.Context(), token, name, iconURL); err != nil {
		slog.Error("セッションの確立に失敗しました",
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(h.sessions.Current()))
}

// signUpRequest はユーザー登録フォームの入力内容。
type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp は新規ユーザーを登録し、そのままセッションを確立する。
// アイコンのアップロードは登録完了後に別リクエストで行う。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("", "リクエストボディが不正です"))
		return
	}

	if err := validateUserName(req.Name); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := validateEmail(req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}

	token, err := h.api.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.sessions.Login(r.Context(), token, req.Name, ""); err != nil {
		slog.Error("セッションの確立に失敗しました",
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(h.sessions.Current()))
}

// Logout はセッションを破棄する。未ログインでも成功する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション状態を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(h.sessions.Current()))
}
