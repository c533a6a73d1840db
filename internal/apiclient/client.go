// Package apiclient は書評サービスのリモートAPIクライアントを提供する。
// 外部へのHTTP呼び出しはすべてこのパッケージを経由し、
// 成功・失敗のレスポンス形状をここで正規化する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sawaday/shohyo/internal/model"
)

// defaultBaseURL は書評サービスの本番エンドポイント。
const defaultBaseURL = "https://railway.bookreview.techtrain.dev"

// UpstreamRecorder は外部API呼び出しのメトリクス記録インターフェース。
type UpstreamRecorder interface {
	RecordUpstreamRequest(operation string, statusCode int, duration time.Duration)
}

// Client は書評サービスAPIのクライアント。
// リトライもキャッシュも行わず、1回の呼び出しは1往復で完結する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	recorder   UpstreamRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合は本番エンドポイントを使用する。
// recorderはnil可（メトリクスを記録しない）。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, recorder UpstreamRecorder) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		recorder:   recorder,
	}
}

// errorEnvelope はリモートサービスのエラーレスポンス形状。
type errorEnvelope struct {
	ErrorCode      int    `json:"ErrorCode"`
	ErrorMessageJP string `json:"ErrorMessageJP"`
	ErrorMessageEN string `json:"ErrorMessageEN"`
}

// tokenResponse はサインイン・ユーザー登録APIのレスポンス。
type tokenResponse struct {
	Token string `json:"token"`
}

// iconUploadResponse はアイコンアップロードAPIのレスポンス。
type iconUploadResponse struct {
	IconURL string `json:"iconUrl"`
}

// BookListEntry は一覧APIが返す1件分の書評。
// IsMineはサーバーが所有フラグを返した場合のみ非nil。
// 公開エンドポイントは呼び出し元の身元を知り得ないため、通常nilになる。
type BookListEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Review   string `json:"review"`
	Reviewer string `json:"reviewer"`
	IsMine   *bool  `json:"isMine"`
}

// SignIn はメールアドレスとパスワードで認証し、トークンを取得する。
// POST /signin
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{"email": email, "password": password}
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/signin", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// SignUp は新規ユーザーを登録し、トークンを取得する。
// POST /users
func (c *Client) SignUp(ctx context.Context, name, email, password string) (string, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/users", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// GetUser は現在のユーザープロフィールを取得する。
// GET /users
func (c *Client) GetUser(ctx context.Context, token string) (*model.UserProfile, error) {
	var profile model.UserProfile
	if err := c.doJSON(ctx, http.MethodGet, "/users", token, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateUser は表示名を更新する。
// PUT /users
func (c *Client) UpdateUser(ctx context.Context, token, name string) (*model.UserProfile, error) {
	body := map[string]string{"name": name}
	var profile model.UserProfile
	if err := c.doJSON(ctx, http.MethodPut, "/users", token, body, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UploadIcon はユーザーアイコン画像をmultipart形式でアップロードする。
// POST /uploads
func (c *Client) UploadIcon(ctx context.Context, token, filename string, icon io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("icon", filename)
	if err != nil {
		return "", fmt.Errorf("multipartフォームの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, icon); err != nil {
		return "", fmt.Errorf("アイコンデータの読み取りに失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("multipartフォームの終端に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &buf)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	var resp iconUploadResponse
	if err := c.send(req, "upload_icon", &resp); err != nil {
		return "", err
	}
	return resp.IconURL, nil
}

// ListBooks は認証済みエンドポイントから書評一覧を1ページ分取得する。
// GET /books?offset=N
func (c *Client) ListBooks(ctx context.Context, token string, offset int) ([]BookListEntry, error) {
	path := "/books?offset=" + strconv.Itoa(offset)
	var entries []BookListEntry
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListPublicBooks は公開エンドポイントから書評一覧を1ページ分取得する。
// GET /public/books?offset=N
func (c *Client) ListPublicBooks(ctx context.Context, offset int) ([]BookListEntry, error) {
	path := "/public/books?offset=" + strconv.Itoa(offset)
	var entries []BookListEntry
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateBook は新規書評を投稿する。
// POST /books
func (c *Client) CreateBook(ctx context.Context, token string, draft model.ReviewDraft) (*model.BookDetail, error) {
	var detail model.BookDetail
	if err := c.doJSON(ctx, http.MethodPost, "/books", token, draft, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetBook は書評1件の詳細を取得する。tokenは空でもよい（未ログイン閲覧）。
// GET /books/:id
func (c *Client) GetBook(ctx context.Context, token, id string) (*model.BookDetail, error) {
	var detail model.BookDetail
	if err := c.doJSON(ctx, http.MethodGet, "/books/"+url.PathEscape(id), token, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateBook は書評を更新する。
// PUT /books/:id
func (c *Client) UpdateBook(ctx context.Context, token, id string, draft model.ReviewDraft) (*model.BookDetail, error) {
	var detail model.BookDetail
	if err := c.doJSON(ctx, http.MethodPut, "/books/"+url.PathEscape(id), token, draft, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteBook は書評を削除する。
// DELETE /books/:id
func (c *Client) DeleteBook(ctx context.Context, token, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/books/"+url.PathEscape(id), token, nil, nil)
}

// PostSelectLog は書評選択のログを送信する。
// POST /logs
// 呼び出し元でベストエフォートとして扱われることを想定しており、
// このメソッド自体は通常のエラーを返す。
func (c *Client) PostSelectLog(ctx context.Context, token, bookID string) error {
	body := map[string]string{"selectBookId": bookID}
	return c.doJSON(ctx, http.MethodPost, "/logs", token, body, nil)
}

// doJSON はJSONボディのリクエストを組み立てて送信する。
// tokenが空でない場合はBearerトークンヘッダーを付与する。
func (c *Client) doJSON(ctx context.Context, method, path, token string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req, operationName(method, path), out)
}

// send はリクエストを実行し、レスポンスを正規化する。
// トランスポート障害はNetworkError、非2xxレスポンスはRemoteErrorになる。
func (c *Client) send(req *http.Request, operation string, out any) error {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("書評サービスAPIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		c.record(operation, 0, time.Since(start))
		return &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	c.record(operation, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return &model.NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// エラーエンベロープのパース失敗は無視し、
		// ゼロ値のままRemoteErrorを返す（既定メッセージにフォールバックする）。
		var env errorEnvelope
		_ = json.Unmarshal(data, &env)

		c.logger.Warn("書評サービスAPIがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("error_code", env.ErrorCode),
		)
		return &model.RemoteError{
			StatusCode: resp.StatusCode,
			Code:       env.ErrorCode,
			MessageJP:  env.ErrorMessageJP,
			MessageEN:  env.ErrorMessageEN,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("レスポンスJSONのパースに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return &model.RemoteError{StatusCode: resp.StatusCode}
	}
	return nil
}

// record はメトリクスを記録する。recorder未設定の場合は何もしない。
func (c *Client) record(operation string, statusCode int, duration time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordUpstreamRequest(operation, statusCode, duration)
	}
}

// operationName はメトリクスとログに使う操作名を導出する。
// パスのクエリ文字列とID部分は除去する。
func operationName(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	// /books/xxx 形式は /books/:id に正規化する
	if strings.HasPrefix(path, "/books/") {
		path = "/books/:id"
	}
	return method + " " + path
}
