package handler

import (
	"regexp"

	"github.com/sawaday/shohyo/internal/model"
)

// フォーム制約。元のフォームと同じ条件で、ネットワークに到達する前に
// ローカルで検証する。
var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	passwordPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+$`)
)

// passwordMinLength はパスワードの最小文字数。
const passwordMinLength = 6

// validateEmail はメールアドレスを検証する。
func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("email", "メールアドレスは必須です")
	}
	if !emailPattern.MatchString(email) {
		return model.NewValidationError("email", "有効なメールアドレスを入力してください")
	}
	return nil
}

// validatePassword はパスワードを検証する。
func validatePassword(password string) error {
	if password == "" {
		return model.NewValidationError("password", "パスワードは必須です")
	}
	if len(password) < passwordMinLength {
		return model.NewValidationError("password", "パスワードは6文字以上である必要があります")
	}
	if !passwordPattern.MatchString(password) {
		return model.NewValidationError("password", "パスワードは英数字、ピリオド、アンダースコア、パーセント、プラス、ハイフンのみ使用可能です")
	}
	return nil
}

// validateUserName は表示名を検証する。
func validateUserName(name string) error {
	if name == "" {
		return model.NewValidationError("name", "名前は必須です")
	}
	return nil
}

// validateReviewDraft は書評フォームの入力内容を検証する。
// URLの安全性検証は呼び出し側でURLGuardを通して行う。
func validateReviewDraft(draft model.ReviewDraft) error {
	if draft.Title == "" {
		return model.NewValidationError("title", "タイトルは必須です")
	}
	if draft.URL == "" {
		return model.NewValidationError("url", "URLは必須です")
	}
	if draft.Detail == "" {
		return model.NewValidationError("detail", "詳細情報は必須です")
	}
	if draft.Review == "" {
		return model.NewValidationError("review", "レビュー内容は必須です")
	}
	return nil
}
