package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sawaday/shohyo/internal/middleware"
	"github.com/sawaday/shohyo/internal/model"
	"github.com/sawaday/shohyo/internal/security"
)

// IconProxyHandler はユーザーアイコン画像のプロキシ。
// リモートサービスが返すiconUrlは外部ホストを指すため、
// フロントエンドに直接取得させずSSRF検証付きで中継する。
type IconProxyHandler struct {
	urlGuard security.URLGuardService
	logger   *slog.Logger
	timeout  time.Duration
	maxSize  int64
}

// NewIconProxyHandler はIconProxyHandlerを生成する。
// timeoutが0以下の場合は5秒、maxSizeが0以下の場合は2MBを使用する。
func NewIconProxyHandler(urlGuard security.URLGuardService, logger *slog.Logger, timeout time.Duration, maxSize int64) *IconProxyHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 2 * 1024 * 1024
	}
	return &IconProxyHandler{
		urlGuard: urlGuard,
		logger:   logger,
		timeout:  timeout,
		maxSize:  maxSize,
	}
}

// Proxy は指定URLの画像を取得して中継する。
// GET /api/icons?url=...
func (h *IconProxyHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		middleware.WriteError(w, model.NewValidationError("url", "urlパラメータは必須です"))
		return
	}

	if err := h.urlGuard.ValidateURL(rawURL); err != nil {
		h.logger.Warn("アイコン取得をブロックしました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, model.NewValidationError("url", "そのURLは指定できません"))
		return
	}

	client := h.urlGuard.NewSafeClient(h.timeout)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		middleware.WriteError(w, model.NewValidationError("url", "そのURLは指定できません"))
		return
	}
	req.Header.Set("User-Agent", "Shohyo/1.0 BookReview Gateway")

	resp, err := client.Do(req)
	if err != nil {
		middleware.WriteError(w, &model.NetworkError{Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		middleware.WriteError(w, &model.RemoteError{StatusCode: resp.StatusCode})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !isImageContentType(contentType) {
		h.logger.Warn("画像以外のContent-Typeを拒否しました",
			slog.String("url", rawURL),
			slog.String("content_type", contentType),
		)
		middleware.WriteError(w, model.NewValidationError("url", "画像以外のコンテンツは中継できません"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxSize+1))
	if err != nil {
		middleware.WriteError(w, &model.NetworkError{Err: err})
		return
	}
	if int64(len(body)) > h.maxSize {
		middleware.WriteError(w, model.NewValidationError("url", "画像のサイズが大きすぎます"))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("アイコンレスポンスの書き込みに失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// isImageContentType はContent-Typeが画像かを判定する。
// charset等のパラメータは無視する。
func isImageContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType := strings.TrimSpace(strings.ToLower(strings.SplitN(contentType, ";", 2)[0]))
	return strings.HasPrefix(mediaType, "image/")
}
