package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sawaday/shohyo/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(server *httptest.Server) *Client {
	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), server.URL, nil)
}

func TestNewClient_EmptyBaseURL_UsesProductionEndpoint(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), "", nil)
	if c.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, defaultBaseURL)
	}
}

func TestClient_SignIn_ReturnsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/signin" {
			t.Errorf("パス = %s, want /signin", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "taro@example.com" {
			t.Errorf("email = %s, want taro@example.com", body["email"])
		}
		if body["password"] != "pass.word1" {
			t.Errorf("password = %s, want pass.word1", body["password"])
		}

		json.NewEncoder(w).Encode(map[string]string{"token": "token-123"})
	}))
	defer server.Close()

	c := newTestClient(server)

	token, err := c.SignIn(context.Background(), "taro@example.com", "pass.word1")
	if err != nil {
		t.Fatalf("SignIn がエラーを返した: %v", err)
	}
	if token != "token-123" {
		t.Errorf("token = %q, want token-123", token)
	}
}

func TestClient_SignIn_InvalidCredentials_SurfacesEnvelopeMessage(t *testing.T) {
	// 認証失敗時はサーバーの日本語メッセージをそのまま表示する
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"ErrorCode":      401,
			"ErrorMessageJP": "認証に失敗しました",
			"ErrorMessageEN": "authentication failed",
		})
	}))
	defer server.Close()

	c := newTestClient(server)

	_, err := c.SignIn(context.Background(), "taro@example.com", "wrong")
	if err == nil {
		t.Fatal("認証失敗時にエラーが返されるべき")
	}

	var remoteErr *model.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("RemoteError であるべき: got %T", err)
	}
	if remoteErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", remoteErr.StatusCode)
	}
	if err.Error() != "認証に失敗しました" {
		t.Errorf("エラーメッセージ = %q, want 認証に失敗しました", err.Error())
	}
}

func TestClient_SignIn_MalformedEnvelope_FallsBackToGenericMessage(t *testing.T) {
	// エンベロープが壊れている場合は既定メッセージにフォールバックする
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>Internal Server Error</html>"))
	}))
	defer server.Close()

	c := newTestClient(server)

	_, err := c.SignIn(context.Background(), "taro@example.com", "pass.word1")
	if err == nil {
		t.Fatal("500レスポンス時にエラーが返されるべき")
	}
	if err.Error() != model.GenericRemoteMessage {
		t.Errorf("エラーメッセージ = %q, want %q", err.Error(), model.GenericRemoteMessage)
	}
}

func TestClient_SignIn_TransportFailure_ReturnsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 即座に閉じて接続拒否させる

	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), server.URL, nil)

	_, err := c.SignIn(context.Background(), "taro@example.com", "pass.word1")
	if err == nil {
		t.Fatal("トランスポート障害時にエラーが返されるべき")
	}

	var netErr *model.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("NetworkError であるべき: got %T", err)
	}
	if err.Error() != model.GenericNetworkMessage {
		t.Errorf("エラーメッセージ = %q, want %q", err.Error(), model.GenericNetworkMessage)
	}
}

func TestClient_SignUp_PostsToUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/users" {
			t.Errorf("リクエスト = %s %s, want POST /users", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "太郎" {
			t.Errorf("name = %s, want 太郎", body["name"])
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "new-token"})
	}))
	defer server.Close()

	c := newTestClient(server)

	token, err := c.SignUp(context.Background(), "太郎", "taro@example.com", "pass.word1")
	if err != nil {
		t.Fatalf("SignUp がエラーを返した: %v", err)
	}
	if token != "new-token" {
		t.Errorf("token = %q, want new-token", token)
	}
}

func TestClient_GetUser_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-123" {
			t.Errorf("Authorization = %q, want Bearer token-123", auth)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"name":    "太郎",
			"iconUrl": "https://cdn.example.com/icon.png",
		})
	}))
	defer server.Close()

	c := newTestClient(server)

	profile, err := c.GetUser(context.Background(), "token-123")
	if err != nil {
		t.Fatalf("GetUser がエラーを返した: %v", err)
	}
	if profile.Name != "太郎" {
		t.Errorf("Name = %q, want 太郎", profile.Name)
	}
	if profile.IconURL != "https://cdn.example.com/icon.png" {
		t.Errorf("IconURL = %q, want https://cdn.example.com/icon.png", profile.IconURL)
	}
}

func TestClient_UploadIcon_SendsMultipartForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uploads" {
			t.Errorf("パス = %s, want /uploads", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %s, want multipart/form-data", r.Header.Get("Content-Type"))
		}

		file, header, err := r.FormFile("icon")
		if err != nil {
			t.Fatalf("iconフィールドが存在するべき: %v", err)
		}
		defer file.Close()

		if header.Filename != "icon.png" {
			t.Errorf("ファイル名 = %s, want icon.png", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "png-bytes" {
			t.Errorf("ファイル内容 = %q, want png-bytes", string(data))
		}

		json.NewEncoder(w).Encode(map[string]string{"iconUrl": "https://cdn.example.com/new.png"})
	}))
	defer server.Close()

	c := newTestClient(server)

	iconURL, err := c.UploadIcon(context.Background(), "token-123", "icon.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("UploadIcon がエラーを返した: %v", err)
	}
	if iconURL != "https://cdn.example.com/new.png" {
		t.Errorf("iconUrl = %q, want https://cdn.example.com/new.png", iconURL)
	}
}

func TestClient_ListBooks_SendsOffsetAndToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books" {
			t.Errorf("パス = %s, want /books", r.URL.Path)
		}
		if offset := r.URL.Query().Get("offset"); offset != "20" {
			t.Errorf("offset = %s, want 20", offset)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-123" {
			t.Errorf("Authorization = %q, want Bearer token-123", auth)
		}

		isMine := true
		json.NewEncoder(w).Encode([]BookListEntry{
			{ID: "b1", Title: "Go入門", Review: "良い", Reviewer: "太郎", IsMine: &isMine},
		})
	}))
	defer server.Close()

	c := newTestClient(server)

	entries, err := c.ListBooks(context.Background(), "token-123", 20)
	if err != nil {
		t.Fatalf("ListBooks がエラーを返した: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("件数 = %d, want 1", len(entries))
	}
	if entries[0].IsMine == nil || !*entries[0].IsMine {
		t.Error("サーバーが返したisMineフラグが保持されるべき")
	}
}

func TestClient_ListPublicBooks_NoAuthorizationHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/books" {
			t.Errorf("パス = %s, want /public/books", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("公開エンドポイントにAuthorizationヘッダーは不要: got %q", auth)
		}
		json.NewEncoder(w).Encode([]BookListEntry{
			{ID: "b1", Title: "Go入門", Reviewer: "太郎"},
		})
	}))
	defer server.Close()

	c := newTestClient(server)

	entries, err := c.ListPublicBooks(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListPublicBooks がエラーを返した: %v", err)
	}
	if entries[0].IsMine != nil {
		t.Error("公開エンドポイントのisMineはnilであるべき")
	}
}

func TestClient_CreateBook_ReturnsDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/books" {
			t.Errorf("リクエスト = %s %s, want POST /books", r.Method, r.URL.Path)
		}
		var draft model.ReviewDraft
		json.NewDecoder(r.Body).Decode(&draft)
		if draft.Title != "Go入門" {
			t.Errorf("title = %s, want Go入門", draft.Title)
		}
		json.NewEncoder(w).Encode(model.BookDetail{ID: "b9", Title: draft.Title})
	}))
	defer server.Close()

	c := newTestClient(server)

	detail, err := c.CreateBook(context.Background(), "token-123", model.ReviewDraft{
		Title: "Go入門", URL: "https://example.com", Detail: "詳細", Review: "感想",
	})
	if err != nil {
		t.Fatalf("CreateBook がエラーを返した: %v", err)
	}
	if detail.ID != "b9" {
		t.Errorf("ID = %q, want b9", detail.ID)
	}
}

func TestClient_DeleteBook_SendsDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("HTTPメソッド = %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/books/b1" {
			t.Errorf("パス = %s, want /books/b1", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server)

	if err := c.DeleteBook(context.Background(), "token-123", "b1"); err != nil {
		t.Fatalf("DeleteBook がエラーを返した: %v", err)
	}
}

func TestClient_PostSelectLog_SendsSelectBookID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/logs" {
			t.Errorf("リクエスト = %s %s, want POST /logs", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["selectBookId"] != "b1" {
			t.Errorf("selectBookId = %s, want b1", body["selectBookId"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server)

	if err := c.PostSelectLog(context.Background(), "token-123", "b1"); err != nil {
		t.Fatalf("PostSelectLog がエラーを返した: %v", err)
	}
}

func TestClient_Success_InvalidJSON_ReturnsRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	c := newTestClient(server)

	_, err := c.GetUser(context.Background(), "token-123")
	if err == nil {
		t.Fatal("不正JSONレスポンス時にエラーが返されるべき")
	}
	var remoteErr *model.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("RemoteError であるべき: got %T", err)
	}
}

func TestClient_ContextCancelled_ReturnsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	c := newTestClient(server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 即座にキャンセル

	_, err := c.ListPublicBooks(ctx, 0)
	if err == nil {
		t.Fatal("キャンセルされたコンテキストでエラーが返されるべき")
	}
	var netErr *model.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("NetworkError であるべき: got %T", err)
	}
	if !errors.Is(netErr.Err, context.Canceled) {
		t.Errorf("原因エラーは context.Canceled であるべき: got %v", netErr.Err)
	}
}

type recorderSpy struct {
	operations []string
	statuses   []int
}

func (r *recorderSpy) RecordUpstreamRequest(operation string, statusCode int, duration time.Duration) {
	r.operations = append(r.operations, operation)
	r.statuses = append(r.statuses, statusCode)
}

func TestClient_RecordsMetrics_WithNormalizedOperation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.BookDetail{ID: "b1"})
	}))
	defer server.Close()

	var buf bytes.Buffer
	spy := &recorderSpy{}
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, spy)

	if _, err := c.GetBook(context.Background(), "token-123", "b1"); err != nil {
		t.Fatalf("GetBook がエラーを返した: %v", err)
	}

	if len(spy.operations) != 1 {
		t.Fatalf("記録された操作数 = %d, want 1", len(spy.operations))
	}
	// ID部分は :id に正規化される
	if spy.operations[0] != "GET /books/:id" {
		t.Errorf("操作名 = %q, want GET /books/:id", spy.operations[0])
	}
	if spy.statuses[0] != http.StatusOK {
		t.Errorf("ステータス = %d, want 200", spy.statuses[0])
	}
}

func TestOperationName_StripsQueryString(t *testing.T) {
	got := operationName(http.MethodGet, "/books?offset=20")
	if got != "GET /books" {
		t.Errorf("operationName = %q, want GET /books", got)
	}
}
