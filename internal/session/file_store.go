package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sawaday/shohyo/internal/model"
)

// FileStore はJSONファイルによるセッションストア。
// プロセス再起動をまたいでセッションを保持する既定のバックエンド。
type FileStore struct {
	path string
}

// NewFileStore はFileStoreを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load は保存済みセッションをファイルから読み込む。
// ファイルが存在しない場合はログアウト状態を返す。
func (s *FileStore) Load(ctx context.Context) (model.Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.LoggedOut(), nil
	}
	if err != nil {
		return model.LoggedOut(), fmt.Errorf("セッションファイルの読み込みに失敗しました: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return model.LoggedOut(), fmt.Errorf("セッションファイルのパースに失敗しました: %w", err)
	}
	return sess, nil
}

// Save はセッションをファイルに保存する。
// 一時ファイルへの書き込みとrenameで原子的に置き換える。
// トークンを含むためパーミッションは0600とする。
func (s *FileStore) Save(ctx context.Context, sess model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("セッションのエンコードに失敗しました: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("セッションディレクトリの作成に失敗しました: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("セッションファイルの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("セッションファイルのパーミッション設定に失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("セッションファイルのクローズに失敗しました: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("セッションファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}

// Clear はセッションファイルを削除する。存在しない場合は何もしない。
func (s *FileStore) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("セッションファイルの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*FileStore)(nil)
