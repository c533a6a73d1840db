package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sawaday/shohyo/internal/middleware"
	"github.com/sawaday/shohyo/internal/model"
)

// ProfileAPI はプロフィールハンドラーが必要とするAPIクライアントの部分集合。
type ProfileAPI interface {
	UpdateUser(ctx context.Context, token, name string) (*model.UserProfile, error)
	UploadIcon(ctx context.Context, token, filename string, icon io.Reader) (string, error)
}

// ProfileHandler はプロフィール編集のHTTPハンドラー。
type ProfileHandler struct {
	api         ProfileAPI
	sessions    SessionController
	maxIconSize int64
}

// NewProfileHandler はProfileHandlerを生成する。
// maxIconSizeが0以下の場合は1MBを使用する。
func NewProfileHandler(api ProfileAPI, sessions SessionController, maxIconSize int64) *ProfileHandler {
	if maxIconSize <= 0 {
		maxIconSize = 1024 * 1024
	}
	return &ProfileHandler{
		api:         api,
		sessions:    sessions,
		maxIconSize: maxIconSize,
	}
}

// updateProfileRequest はプロフィール編集フォームの入力内容。
type updateProfileRequest struct {
	Name string `json:"name"`
}

// Update は表示名を更新する。
// リモートの更新成功後にセッションの表示名も更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if !sess.IsLoggedIn() {
		middleware.WriteError(w, &model.AuthRequiredError{Operation: "プロフィール編集"})
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("", "リクエストボディが不正です"))
		return
	}

	if err := validateUserName(req.Name); err != nil {
		middleware.WriteError(w, err)
		return
	}

	profile, err := h.api.UpdateUser(r.Context(), sess.Token, req.Name)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.sessions.UpdateDisplay(r.Context(), profile.Name, profile.IconURL); err != nil {
		slog.Error("セッションの更新に失敗しました",
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(h.sessions.Current()))
}

// UploadIcon はアイコン画像をリモートへアップロードし、
// 返却されたiconUrlをセッションに反映する。
// 許可形式はjpeg/pngのみで、サイズ上限を超えるリクエストは拒否する。
// POST /api/profile/icon
func (h *ProfileHandler) UploadIcon(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if !sess.IsLoggedIn() {
		middleware.WriteError(w, &model.AuthRequiredError{Operation: "アイコン変更"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxIconSize+4096)

	file, header, err := r.FormFile("icon")
	if err != nil {
		middleware.WriteError(w, model.NewValidationError("icon", "アイコンを選択してください"))
		return
	}
	defer file.Close()

	if header.Size > h.maxIconSize {
		middleware.WriteError(w, model.NewValidationError("icon", "アイコンのファイルサイズは1MB以下である必要があります"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !isAllowedIconType(contentType) {
		middleware.WriteError(w, model.NewValidationError("icon", "許可されているファイル形式はjpgまたはpngのみです"))
		return
	}

	iconURL, err := h.api.UploadIcon(r.Context(), sess.Token, header.Filename, file)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.sessions.UpdateDisplay(r.Context(), sess.UserName, iconURL); err != nil {
		slog.Error("セッションの更新に失敗しました",
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"iconUrl": iconURL})
}

// isAllowedIconType はアイコンのContent-Typeが許可形式かを検証する。
func isAllowedIconType(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/png":
		return true
	}
	return false
}
