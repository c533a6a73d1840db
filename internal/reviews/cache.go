// Package reviews は書評一覧のページ単位フェッチとキャッシュを提供する。
// キャッシュは常に1ページ分のみを保持し、(ページ番号, 認証状態) を
// キーとしてキーの変化時に再フェッチする。
package reviews

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sawaday/shohyo/internal/apiclient"
	"github.com/sawaday/shohyo/internal/model"
)

// State はキャッシュの状態を表す。
type State string

const (
	// StateIdle はフェッチ未実行の初期状態。
	StateIdle State = "idle"
	// StateLoading はフェッチ実行中の状態。
	StateLoading State = "loading"
	// StateLoaded はページの取得に成功した状態。
	StateLoaded State = "loaded"
	// StateFailed はフェッチに失敗した状態。
	StateFailed State = "failed"
)

// selectLogTimeout は書評選択ログ送信のタイムアウト。
const selectLogTimeout = 10 * time.Second

// BookSource はキャッシュが必要とするAPIクライアントの部分集合。
type BookSource interface {
	// ListBooks は認証済みエンドポイントから1ページ分を取得する。
	ListBooks(ctx context.Context, token string, offset int) ([]apiclient.BookListEntry, error)
	// ListPublicBooks は公開エンドポイントから1ページ分を取得する。
	ListPublicBooks(ctx context.Context, offset int) ([]apiclient.BookListEntry, error)
	// PostSelectLog は書評選択ログを送信する。
	PostSelectLog(ctx context.Context, token, bookID string) error
}

// SessionSource は現在の認証状態の読み取りインターフェース。
type SessionSource interface {
	Current() model.Session
}

// Recorder はキャッシュのメトリクス記録インターフェース。
type Recorder interface {
	RecordPageFetch(authenticated bool)
	RecordCacheInvalidation()
	RecordStaleDiscard()
}

// fetchKey はキャッシュキー。いずれかの要素が変わると
// 保持中のページは無効になり、新しいフェッチが始まる。
type fetchKey struct {
	page     int
	token    string
	userName string
}

// Snapshot はキャッシュの観測可能な状態のコピー。
type Snapshot struct {
	State        State
	Page         *model.ReviewPage
	ErrorMessage string
	CurrentPage  int
	HasNextPage  bool
}

// Cache は書評一覧のページキャッシュ。
// 表示状態を書き換えるのは自身のフェッチ完了のみ。
type Cache struct {
	source   BookSource
	sessions SessionSource
	logger   *slog.Logger
	recorder Recorder

	mu         sync.Mutex
	state      State
	key        fetchKey
	page       *model.ReviewPage
	errMessage string
}

// NewCache はCacheを生成する。初期状態はIdleでページ番号は1。
// recorderはnil可。
func NewCache(source BookSource, sessions SessionSource, logger *slog.Logger, recorder Recorder) *Cache {
	return &Cache{
		source:   source,
		sessions: sessions,
		logger:   logger,
		recorder: recorder,
		state:    StateIdle,
		key:      fetchKey{page: 1},
	}
}

// SetPage は表示対象のページ番号を変更し、必要ならフェッチする。
// 同一キーでLoaded済みの場合はフェッチせず現在の状態を返す。
// pageは1始まり。1未満は1に丸める。
func (c *Cache) SetPage(ctx context.Context, page int) Snapshot {
	if page < 1 {
		page = 1
	}
	key := c.keyFor(page)

	c.mu.Lock()
	if key == c.key && c.state == StateLoaded {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.mu.Unlock()

	return c.fetch(ctx, key)
}

// Refresh は現在のページをキーの一致に関わらず再フェッチする。
func (c *Cache) Refresh(ctx context.Context) Snapshot {
	c.mu.Lock()
	page := c.key.page
	c.mu.Unlock()
	return c.fetch(ctx, c.keyFor(page))
}

// OnSessionChange はセッション変更の通知を受け取るリスナー。
// session.Managerに購読させる。ログイン⟷ログアウトの遷移や
// ユーザーの変更は保持中の全ページを無効化し、同じページ番号を
// 新しい認証状態で1回だけ再フェッチする。
func (c *Cache) OnSessionChange(sess model.Session) {
	c.mu.Lock()
	page := c.key.page
	newKey := fetchKey{page: page, token: sess.Token, userName: sess.UserName}
	if newKey == c.key {
		// 認証アイデンティティに変化なし
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordCacheInvalidation()
	}
	c.fetch(context.Background(), newKey)
}

// Snapshot は現在の観測可能な状態のコピーを返す。
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Select は書評選択時のベストエフォートなログ送信を行う。
// ログイン中のみ送信し、失敗はログに記録するだけで呼び出し元へは
// 返さない。送信は非同期で、詳細画面への遷移をブロックしない。
func (c *Cache) Select(id string) {
	sess := c.sessions.Current()
	if !sess.IsLoggedIn() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), selectLogTimeout)
		defer cancel()

		if err := c.source.PostSelectLog(ctx, sess.Token, id); err != nil {
			c.logger.Warn("書評選択ログの送信に失敗しました",
				slog.String("book_id", id),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// keyFor は現在のセッションから指定ページのキャッシュキーを作る。
func (c *Cache) keyFor(page int) fetchKey {
	sess := c.sessions.Current()
	return fetchKey{page: page, token: sess.Token, userName: sess.UserName}
}

// fetch は指定キーのページをフェッチし、結果を適用する。
// フェッチ開始時にキーを差し替えるため、完了時点でキーが既に
// 変わっていた古いレスポンスは破棄される（最後に発行された
// フェッチだけが状態を更新できる）。
func (c *Cache) fetch(ctx context.Context, key fetchKey) Snapshot {
	c.mu.Lock()
	c.key = key
	c.state = StateLoading
	c.mu.Unlock()

	offset := (key.page - 1) * model.PageSize
	authenticated := key.token != ""

	if c.recorder != nil {
		c.recorder.RecordPageFetch(authenticated)
	}

	var entries []apiclient.BookListEntry
	var err error
	if authenticated {
		entries, err = c.source.ListBooks(ctx, key.token, offset)
	} else {
		entries, err = c.source.ListPublicBooks(ctx, offset)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != key {
		// フェッチ中にキーが変わった。このレスポンスは古いので捨てる。
		if c.recorder != nil {
			c.recorder.RecordStaleDiscard()
		}
		c.logger.Info("キー変更後に完了したフェッチ結果を破棄しました",
			slog.Int("page", key.page),
		)
		return c.snapshotLocked()
	}

	if err != nil {
		c.state = StateFailed
		c.page = nil
		c.errMessage = err.Error()
		return c.snapshotLocked()
	}

	c.state = StateLoaded
	c.errMessage = ""
	c.page = &model.ReviewPage{
		Items:      annotate(entries, key.userName),
		PageNumber: key.page,
		IsTerminal: len(entries) < model.PageSize,
	}
	return c.snapshotLocked()
}

// annotate は一覧エントリをReviewSummaryへ変換し、isMineを解決する。
// サーバーが所有フラグを返した場合はそれを信頼し、返さない場合は
// レビュワー名とセッションのユーザー名の一致（空文字以外）で判定する。
func annotate(entries []apiclient.BookListEntry, userName string) []model.ReviewSummary {
	items := make([]model.ReviewSummary, 0, len(entries))
	for _, e := range entries {
		isMine := false
		if e.IsMine != nil {
			isMine = *e.IsMine
		} else if userName != "" && e.Reviewer == userName {
			isMine = true
		}
		items = append(items, model.ReviewSummary{
			ID:       e.ID,
			Title:    e.Title,
			Review:   e.Review,
			Reviewer: e.Reviewer,
			IsMine:   isMine,
		})
	}
	return items
}

// snapshotLocked は呼び出し元がロックを保持している前提でコピーを作る。
func (c *Cache) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        c.state,
		ErrorMessage: c.errMessage,
		CurrentPage:  c.key.page,
	}
	if c.page != nil {
		page := *c.page
		page.Items = make([]model.ReviewSummary, len(c.page.Items))
		copy(page.Items, c.page.Items)
		snap.Page = &page
		snap.HasNextPage = !page.IsTerminal
	}
	return snap
}
