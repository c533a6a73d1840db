package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sawaday/shohyo/internal/apiclient"
	"github.com/sawaday/shohyo/internal/reviews"
	"github.com/sawaday/shohyo/internal/security"
	"github.com/sawaday/shohyo/internal/session"
)

// fakeUpstream は書評サービスAPIを模したテスト用サーバー。
type fakeUpstream struct {
	mu          sync.Mutex
	authedLists int
	publicLists int
	selectLogs  []string
}

func (f *fakeUpstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /signin", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] == "wrong.pass" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"ErrorCode":      401,
				"ErrorMessageJP": "認証に失敗しました",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "token-123"})
	})

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"name":    "太郎",
			"iconUrl": "https://cdn.example.com/icon.png",
		})
	})

	mux.HandleFunc("GET /books", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authedLists++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(bookEntries(10, "太郎"))
	})

	mux.HandleFunc("GET /public/books", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.publicLists++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(bookEntries(10, "次郎"))
	})

	mux.HandleFunc("POST /logs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.selectLogs = append(f.selectLogs, body["selectBookId"])
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func bookEntries(n int, reviewer string) []apiclient.BookListEntry {
	entries := make([]apiclient.BookListEntry, n)
	for i := range entries {
		entries[i] = apiclient.BookListEntry{
			ID:       fmt.Sprintf("b%d", i),
			Title:    fmt.Sprintf("タイトル%d", i),
			Reviewer: reviewer,
		}
	}
	return entries
}

// newTestRouter は実物のクライアント・セッション・キャッシュを
// フェイクの書評サービスに接続したルーターを構築する。
func newTestRouter(t *testing.T, upstream *httptest.Server) http.Handler {
	t.Helper()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	api := apiclient.NewClient(upstream.Client(), logger, upstream.URL, nil)
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	sessions := session.NewManager(store, logger)
	cache := reviews.NewCache(api, sessions, logger, nil)
	sessions.Subscribe(cache.OnSessionChange)

	return NewRouter(&RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: "http://localhost:3000",

		AuthAPI:    api,
		ProfileAPI: api,
		Sessions:   sessions,

		ReviewAPI: api,
		Cache:     cache,

		Sanitizer: security.NewTextSanitizer(),
		URLGuard:  security.NewURLGuard(),
	})
}

func TestRouter_Health(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	router := newTestRouter(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want 200", rec.Code)
	}
}

func TestRouter_CORSHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	router := newTestRouter(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	router := newTestRouter(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

// TestRouter_LoginFlow はログイン〜一覧〜ログアウトの一連の流れを検証する。
func TestRouter_LoginFlow(t *testing.T) {
	fake := &fakeUpstream{}
	upstream := httptest.NewServer(fake.handler(t))
	defer upstream.Close()

	router := newTestRouter(t, upstream)

	// 1. 未ログインの一覧は公開エンドポイントを使う
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews?page=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("一覧のステータス = %d, want 200", rec.Code)
	}
	if fake.publicLists != 1 {
		t.Fatalf("公開一覧の呼び出し回数 = %d, want 1", fake.publicLists)
	}

	var list reviewListResponse
	json.NewDecoder(rec.Body).Decode(&list)
	for _, item := range list.Items {
		if item.IsMine {
			t.Error("未ログインの一覧にisMineの書評はないべき")
		}
	}

	// 2. ログイン
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"taro@example.com","password":"pass.word1"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("ログインのステータス = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// ログイン通知によりキャッシュが認証エンドポイントで1回だけ再フェッチする
	if fake.authedLists != 1 {
		t.Errorf("ログイン直後の認証一覧の呼び出し回数 = %d, want 1", fake.authedLists)
	}

	// 3. ログイン後の一覧はキャッシュ済み（追加フェッチなし）でisMineが付く
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews?page=1", nil))
	if fake.authedLists != 1 {
		t.Errorf("キャッシュ済みページで追加フェッチは発生しないべき: calls = %d", fake.authedLists)
	}

	list = reviewListResponse{}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Items) != 10 {
		t.Fatalf("件数 = %d, want 10", len(list.Items))
	}
	for _, item := range list.Items {
		if !item.IsMine {
			t.Error("自分のレビュワー名と一致する書評はisMineであるべき")
		}
	}

	// 4. ログアウトで公開エンドポイントへ戻る
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ログアウトのステータス = %d, want 204", rec.Code)
	}
	if fake.publicLists != 2 {
		t.Errorf("ログアウト後に公開一覧で再フェッチするべき: calls = %d", fake.publicLists)
	}

	// 5. ログアウト後のMe
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	var me sessionResponse
	json.NewDecoder(rec.Body).Decode(&me)
	if me.IsLoggedIn {
		t.Error("ログアウト後のMeはisLoggedIn=falseであるべき")
	}
}

func TestRouter_LoginFailure_SurfacesRemoteMessage(t *testing.T) {
	fake := &fakeUpstream{}
	upstream := httptest.NewServer(fake.handler(t))
	defer upstream.Close()

	router := newTestRouter(t, upstream)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"taro@example.com","password":"wrong.pass"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ステータス = %d, want 401", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body.Message != "認証に失敗しました" {
		t.Errorf("message = %q, want 認証に失敗しました", body.Message)
	}
}

func TestRouter_ProtectedRoute_WithoutLogin_Returns401(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	router := newTestRouter(t, upstream)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/profile",
		strings.NewReader(`{"name":"次郎"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ステータス = %d, want 401", rec.Code)
	}
}

func TestRouter_RequestIDHeader(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	router := newTestRouter(t, upstream)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Idヘッダーが付与されるべき")
	}
}
