// Package session は認証セッションの永続化とインメモリ状態管理を提供する。
package session

import (
	"context"

	"github.com/sawaday/shohyo/internal/model"
)

// Store はセッションの永続化インターフェース。
// authToken・userName・iconUrlの3項目は常に一括で保存・削除される。
// ストアは永続的なミラーであり、正本はManagerが保持する。
type Store interface {
	// Load は保存済みセッションを読み込む。
	// 何も保存されていない場合はログアウト状態のセッションを返す。
	Load(ctx context.Context) (model.Session, error)

	// Save はセッションの3項目を一括で保存する。
	Save(ctx context.Context, s model.Session) error

	// Clear は保存済みセッションを削除する。
	// 何も保存されていない場合もエラーにならない。
	Clear(ctx context.Context) error
}
