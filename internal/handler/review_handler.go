package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sawaday/shohyo/internal/middleware"
	"github.com/sawaday/shohyo/internal/model"
	"github.com/sawaday/shohyo/internal/reviews"
	"github.com/sawaday/shohyo/internal/security"
)

// ReviewAPI は書評ハンドラーが必要とするAPIクライアントの部分集合。
type ReviewAPI interface {
	CreateBook(ctx context.Context, token string, draft model.ReviewDraft) (*model.BookDetail, error)
	GetBook(ctx context.Context, token, id string) (*model.BookDetail, error)
	UpdateBook(ctx context.Context, token, id string, draft model.ReviewDraft) (*model.BookDetail, error)
	DeleteBook(ctx context.Context, token, id string) error
}

// PageCache は書評一覧キャッシュの操作インターフェース。
type PageCache interface {
	SetPage(ctx context.Context, page int) reviews.Snapshot
	Refresh(ctx context.Context) reviews.Snapshot
	Select(id string)
}

// ReviewHandler は書評一覧・詳細・投稿・編集・削除のHTTPハンドラー。
type ReviewHandler struct {
	api       ReviewAPI
	cache     PageCache
	sessions  SessionController
	sanitizer security.TextSanitizerService
	urlGuard  security.URLGuardService
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(api ReviewAPI, cache PageCache, sessions SessionController, sanitizer security.TextSanitizerService, urlGuard security.URLGuardService) *ReviewHandler {
	return &ReviewHandler{
		api:       api,
		cache:     cache,
		sessions:  sessions,
		sanitizer: sanitizer,
		urlGuard:  urlGuard,
	}
}

// reviewListResponse は書評一覧のレスポンス。
type reviewListResponse struct {
	State        string                `json:"state"`
	Items        []model.ReviewSummary `json:"items"`
	CurrentPage  int                   `json:"currentPage"`
	HasNextPage  bool                  `json:"hasNextPage"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
}

// List は指定ページの書評一覧を返す。
// page未指定または不正値は1ページ目として扱う。
// GET /api/reviews?page=N
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page = n
		}
	}

	snap := h.cache.SetPage(r.Context(), page)
	writeJSON(w, http.StatusOK, h.toListResponse(snap))
}

// toListResponse はスナップショットをレスポンスへ変換する。
// リモート由来のテキストはサニタイズしてから返す。
func (h *ReviewHandler) toListResponse(snap reviews.Snapshot) reviewListResponse {
	resp := reviewListResponse{
		State:        string(snap.State),
		Items:        []model.ReviewSummary{},
		CurrentPage:  snap.CurrentPage,
		HasNextPage:  snap.HasNextPage,
		ErrorMessage: snap.ErrorMessage,
	}
	if snap.Page != nil {
		for _, item := range snap.Page.Items {
			item.Title = h.sanitizer.Sanitize(item.Title)
			item.Review = h.sanitizer.Sanitize(item.Review)
			item.Reviewer = h.sanitizer.Sanitize(item.Reviewer)
			resp.Items = append(resp.Items, item)
		}
	}
	return resp
}

// Get は書評1件の詳細を返す。
// GET /api/reviews/{id}
// 未ログインでも呼び出せる。トークンなしを許可するかはリモートサービスが
// 判断するため、ここでは認証ガードを設けずトークンをそのまま渡す。
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()

	detail, err := h.api.GetBook(r.Context(), sess.Token, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.sanitizeDetail(detail))
}

// Create は書評を新規投稿する。成功後は現在ページを再フェッチする。
// POST /api/reviews
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if !sess.IsLoggedIn() {
		middleware.WriteError(w, &model.AuthRequiredError{Operation: "書評の投稿"})
		return
	}

	draft, err := h.decodeDraft(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	detail, err := h.api.CreateBook(r.Context(), sess.Token, draft)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.cache.Refresh(r.Context())
	writeJSON(w, http.StatusCreated, h.sanitizeDetail(detail))
}

// Update は自分の書評を更新する。成功後は現在ページを再フェッチする。
// PUT /api/reviews/{id}
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if !sess.IsLoggedIn() {
		middleware.WriteError(w, &model.AuthRequiredError{Operation: "書評の更新"})
		return
	}

	draft, err := h.decodeDraft(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	detail, err := h.api.UpdateBook(r.Context(), sess.Token, chi.URLParam(r, "id"), draft)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.cache.Refresh(r.Context())
	writeJSON(w, http.StatusOK, h.sanitizeDetail(detail))
}

// Delete は自分の書評を削除する。成功後は現在ページを再フェッチする。
// DELETE /api/reviews/{id}
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if !sess.IsLoggedIn() {
		middleware.WriteError(w, &model.AuthRequiredError{Operation: "書評の削除"})
		return
	}

	if err := h.api.DeleteBook(r.Context(), sess.Token, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.cache.Refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// SelectLog は書評選択ログをベストエフォートで送信する。
// 送信は非同期なので常に202を返す。
// POST /api/reviews/{id}/select
func (h *ReviewHandler) SelectLog(w http.ResponseWriter, r *http.Request) {
	h.cache.Select(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusAccepted)
}

// decodeDraft は投稿・更新リクエストをデコードし、入力を検証する。
func (h *ReviewHandler) decodeDraft(r *http.Request) (model.ReviewDraft, error) {
	var draft model.ReviewDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		return draft, model.NewValidationError("", "リクエストボディが不正です")
	}
	if err := validateReviewDraft(draft); err != nil {
		return draft, err
	}
	if err := h.urlGuard.ValidateURL(draft.URL); err != nil {
		return draft, model.NewValidationError("url", "そのURLは指定できません")
	}
	return draft, nil
}

// sanitizeDetail はリモート由来のテキストをサニタイズする。
func (h *ReviewHandler) sanitizeDetail(detail *model.BookDetail) *model.BookDetail {
	d := *detail
	d.Title = h.sanitizer.Sanitize(d.Title)
	d.Detail = h.sanitizer.Sanitize(d.Detail)
	d.Review = h.sanitizer.Sanitize(d.Review)
	d.Reviewer = h.sanitizer.Sanitize(d.Reviewer)
	return &d
}
