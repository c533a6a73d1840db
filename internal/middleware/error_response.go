package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sawaday/shohyo/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Message  string `json:"message"`
	Category string `json:"category"`
	Field    string `json:"field,omitempty"`
}

// WriteError はエラー分類に応じたステータスコードと統一フォーマットで
// エラーレスポンスを書き込む。
//
//   - ValidationError   → 400 (category: validation)
//   - AuthRequiredError → 401 (category: auth)
//   - RemoteError       → リモートのステータスコードをそのまま (category: remote)
//   - NetworkError      → 502 (category: network)
//   - その他            → 500 (category: system)
//
// ユーザーに見せるメッセージは各エラー型のError()が返す
// 日本語メッセージをそのまま使う。
func WriteError(w http.ResponseWriter, err error) {
	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		writeErrorBody(w, http.StatusBadRequest, ErrorResponseBody{
			Message:  validationErr.Message,
			Category: "validation",
			Field:    validationErr.Field,
		})
		return
	}

	var authErr *model.AuthRequiredError
	if errors.As(err, &authErr) {
		writeErrorBody(w, http.StatusUnauthorized, ErrorResponseBody{
			Message:  model.AuthRequiredMessage,
			Category: "auth",
		})
		return
	}

	var remoteErr *model.RemoteError
	if errors.As(err, &remoteErr) {
		status := remoteErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeErrorBody(w, status, ErrorResponseBody{
			Message:  remoteErr.Error(),
			Category: "remote",
		})
		return
	}

	var networkErr *model.NetworkError
	if errors.As(err, &networkErr) {
		writeErrorBody(w, http.StatusBadGateway, ErrorResponseBody{
			Message:  networkErr.Error(),
			Category: "network",
		})
		return
	}

	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	writeErrorBody(w, http.StatusInternalServerError, ErrorResponseBody{
		Message:  "内部エラーが発生しました。",
		Category: "system",
	})
}

func writeErrorBody(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
