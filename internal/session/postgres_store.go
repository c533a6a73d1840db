package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sawaday/shohyo/internal/model"
)

// PostgresStore はPostgreSQLによるセッションストア。
// コンテナ等のファイルシステムが揮発的な環境向けのバックエンド。
// session_stateテーブルは常に1行のみ保持する。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load は保存済みセッションを取得する。
// 行が存在しない場合はログアウト状態を返す。
func (s *PostgresStore) Load(ctx context.Context) (model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT auth_token, user_name, icon_url FROM session_state WHERE id = 1`,
	).Scan(&sess.Token, &sess.UserName, &sess.IconURL)

	if err == sql.ErrNoRows {
		return model.LoggedOut(), nil
	}
	if err != nil {
		return model.LoggedOut(), fmt.Errorf("セッションの読み込みに失敗しました: %w", err)
	}
	return sess, nil
}

// Save はセッションの3項目を1行にUPSERTする。
func (s *PostgresStore) Save(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (id, auth_token, user_name, icon_url, updated_at)
		 VALUES (1, $1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE
		 SET auth_token = $1, user_name = $2, icon_url = $3, updated_at = now()`,
		sess.Token, sess.UserName, sess.IconURL,
	)
	if err != nil {
		return fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}
	return nil
}

// Clear は保存済みセッションを削除する。
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
