package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sawaday/shohyo/internal/model"
)

// Listener はセッション状態の変更通知を受け取る関数。
// Login・Logout・UpdateDisplayの呼び出しが返る前に同期的に呼ばれるため、
// 通知後のレンダリングやフェッチは必ず新しい状態を観測する。
type Listener func(model.Session)

// Manager はログイン状態の唯一の正本。
// すべての読み取りはManagerを経由し、Storeへの書き込みもManagerのみが行う。
type Manager struct {
	store  Store
	logger *slog.Logger

	mu        sync.RWMutex
	current   model.Session
	listeners []Listener
}

// NewManager はManagerを生成する。初期状態はログアウト。
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// Restore は起動時にストアからセッションを復元する。
// ネットワーク呼び出しは行わない。失効したトークンは次のAPI呼び出しで
// 初めて検出される（遅延無効化）。
func (m *Manager) Restore(ctx context.Context) error {
	sess, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("セッションの復元に失敗しました: %w", err)
	}

	// トークンがなければ名前・アイコンも無意味なため破棄する
	if !sess.IsLoggedIn() {
		sess = model.LoggedOut()
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	if sess.IsLoggedIn() {
		m.logger.Info("セッションを復元しました",
			slog.String("user_name", sess.UserName),
		)
	}
	return nil
}

// Login はセッションをログイン状態にし、3項目をストアへ永続化する。
// 既にログイン中の場合は新しい値で上書きする（冪等）。
// 購読者へはこの呼び出しが返る前に同期的に通知される。
func (m *Manager) Login(ctx context.Context, token, name, iconURL string) error {
	if token == "" {
		return fmt.Errorf("トークンは必須です")
	}

	sess := model.Session{Token: token, UserName: name, IconURL: iconURL}

	if err := m.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("セッションの永続化に失敗しました: %w", err)
	}

	m.setAndNotify(sess)

	m.logger.Info("ログインしました", slog.String("user_name", name))
	return nil
}

// Logout はセッションをログアウト状態にし、永続化済みの3項目を削除する。
// 既にログアウト済みでも成功する。ストアの削除失敗はログに記録して
// 握りつぶす（インメモリ状態のクリアを優先する）。
func (m *Manager) Logout(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("永続化セッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	m.setAndNotify(model.LoggedOut())

	m.logger.Info("ログアウトしました")
}

// UpdateDisplay は表示名とアイコンURLのみを更新する。トークンは変更しない。
// ログイン中であることが前提条件であり、未ログインでの呼び出しは
// 呼び出し側でガードすること（データ上は渡された値をそのまま永続化する）。
func (m *Manager) UpdateDisplay(ctx context.Context, name, iconURL string) error {
	m.mu.RLock()
	sess := m.current
	m.mu.RUnlock()

	sess.UserName = name
	sess.IconURL = iconURL

	if err := m.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("セッションの永続化に失敗しました: %w", err)
	}

	m.setAndNotify(sess)
	return nil
}

// Current は現在のセッションのスナップショットを返す。
func (m *Manager) Current() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsLoggedIn はログイン中かどうかを返す。
func (m *Manager) IsLoggedIn() bool {
	return m.Current().IsLoggedIn()
}

// Subscribe はセッション変更の購読者を登録する。
// 通知は登録順に同期的に行われる。
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// setAndNotify は状態を更新し、購読者へ同期的に通知する。
// 通知中はロックを保持しない（購読者がCurrentを呼べるようにするため）。
func (m *Manager) setAndNotify(sess model.Session) {
	m.mu.Lock()
	m.current = sess
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l(sess)
	}
}
