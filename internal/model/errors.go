// Package model はドメインモデルを定義する。
package model

import "fmt"

// エラー分類ごとのユーザー向け既定メッセージ。
const (
	// GenericRemoteMessage はエラーエンベロープが壊れている、
	// またはメッセージが欠落している場合のフォールバック。
	GenericRemoteMessage = "予期しないエラーが発生しました。"
	// GenericNetworkMessage はレスポンスを受信できなかった場合のメッセージ。
	GenericNetworkMessage = "ネットワークエラーが発生しました。"
	// AuthRequiredMessage は認証が必要な操作を未ログインで行った場合のメッセージ。
	AuthRequiredMessage = "ログインが必要です。"
)

// ValidationError はクライアント側のフォーム制約違反を表す。
// ネットワークに到達する前にローカルで回復される。
type ValidationError struct {
	Field   string // 対象フィールド名
	Message string // ユーザー向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError はバリデーションエラーを生成する。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RemoteError は非2xxレスポンスから導出されたエラーを表す。
// リモートサービスのエラーエンベロープ
// {ErrorCode, ErrorMessageJP, ErrorMessageEN} を保持する。
type RemoteError struct {
	StatusCode int    // HTTPステータスコード
	Code       int    // エンベロープのErrorCode
	MessageJP  string // 日本語メッセージ
	MessageEN  string // 英語メッセージ
}

// Error はユーザーに表示するメッセージを返す。
// 日本語メッセージが欠落している場合は既定メッセージにフォールバックする。
func (e *RemoteError) Error() string {
	if e.MessageJP != "" {
		return e.MessageJP
	}
	return GenericRemoteMessage
}

// NetworkError はレスポンスを受信できなかったトランスポート障害を表す。
type NetworkError struct {
	Err error // 原因となったトランスポートエラー
}

// Error は一般的なネットワークエラーメッセージを返す。
// 原因の詳細はログにのみ記録し、ユーザーには見せない。
func (e *NetworkError) Error() string {
	return GenericNetworkMessage
}

// Unwrap は原因となったエラーを返す。
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthRequiredError はトークンが必要な操作を未ログインで行ったことを表す。
// APIを呼び出す前にローカルで検出される。
type AuthRequiredError struct {
	Operation string // 要求された操作名
}

// Error はerrorインターフェースを実装する。
func (e *AuthRequiredError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %s", e.Operation, AuthRequiredMessage)
	}
	return AuthRequiredMessage
}
