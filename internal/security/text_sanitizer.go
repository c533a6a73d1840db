// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はリモートサービスから受け取った書評の
// テキストフィールドをサニタイズし、ブラウザに渡す前にXSSの
// リスクを除去する。書評はプレーンテキストの契約だが、リモート
// サービスの返す値をそのまま信頼しない。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
// 書評一覧・詳細のレスポンスをフロントエンドへ返す前に使用される。
type TextSanitizerService interface {
	// Sanitize はテキストからすべてのHTMLタグを除去して返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(text string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去し、テキストのみを通過させる。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからすべてのHTMLタグを除去して返す。
func (s *textSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return s.policy.Sanitize(text)
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
