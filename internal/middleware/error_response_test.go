package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sawaday/shohyo/internal/model"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗した: %v", err)
	}
	return body
}

func TestWriteError_ValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, model.NewValidationError("email", "メールアドレスは必須です"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ステータス = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Category != "validation" {
		t.Errorf("category = %q, want validation", body.Category)
	}
	if body.Field != "email" {
		t.Errorf("field = %q, want email", body.Field)
	}
	if body.Message != "メールアドレスは必須です" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestWriteError_AuthRequiredError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &model.AuthRequiredError{Operation: "書評の投稿"})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータス = %d, want 401", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Category != "auth" {
		t.Errorf("category = %q, want auth", body.Category)
	}
	if body.Message != model.AuthRequiredMessage {
		t.Errorf("message = %q, want %q", body.Message, model.AuthRequiredMessage)
	}
}

func TestWriteError_RemoteError_RelaysStatusCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &model.RemoteError{
		StatusCode: http.StatusConflict,
		MessageJP:  "既に登録されています",
	})

	if rec.Code != http.StatusConflict {
		t.Errorf("ステータス = %d, want 409", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Message != "既に登録されています" {
		t.Errorf("message = %q", body.Message)
	}
	if body.Category != "remote" {
		t.Errorf("category = %q, want remote", body.Category)
	}
}

func TestWriteError_RemoteError_InvalidStatus_ClampsTo502(t *testing.T) {
	// ステータスコード不明のRemoteError（レスポンス解析不能など）は502に丸める
	rec := httptest.NewRecorder()
	WriteError(rec, &model.RemoteError{StatusCode: 0})

	if rec.Code != http.StatusBadGateway {
		t.Errorf("ステータス = %d, want 502", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Message != model.GenericRemoteMessage {
		t.Errorf("message = %q, want %q", body.Message, model.GenericRemoteMessage)
	}
}

func TestWriteError_NetworkError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &model.NetworkError{Err: errors.New("connection refused")})

	if rec.Code != http.StatusBadGateway {
		t.Errorf("ステータス = %d, want 502", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Category != "network" {
		t.Errorf("category = %q, want network", body.Category)
	}
	if body.Message != model.GenericNetworkMessage {
		t.Errorf("message = %q, want %q", body.Message, model.GenericNetworkMessage)
	}
}

func TestWriteError_UnknownError_Returns500(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("unexpected"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ステータス = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Category != "system" {
		t.Errorf("category = %q, want system", body.Category)
	}
	// 内部エラーの詳細はユーザーに見せない
	if body.Message != "内部エラーが発生しました。" {
		t.Errorf("message = %q", body.Message)
	}
}
