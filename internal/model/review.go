// Package model はドメインモデルを定義する。
package model

// PageSize は書評一覧の1ページあたりの件数。
// リモートサービスとの固定契約であり、変更できない。
const PageSize = 10

// ReviewSummary は書評一覧に表示する1件分の射影を表す。
type ReviewSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Review   string `json:"review"`
	Reviewer string `json:"reviewer"`
	// IsMine はログインユーザーが作成した書評かを示すフラグ。
	// サーバーが返す場合はその値を信頼し、返さない場合は
	// reviewerとセッションのユーザー名の一致で判定する。
	IsMine bool `json:"isMine"`
}

// ReviewPage はフェッチ済みの1ページ分の書評一覧を表す。
type ReviewPage struct {
	Items      []ReviewSummary `json:"items"`
	PageNumber int             `json:"pageNumber"`
	// IsTerminal は返却件数がPageSize未満で、以降のページが
	// 存在しないことを示す。
	IsTerminal bool `json:"isTerminal"`
}

// BookDetail は書評1件の詳細を表す。
type BookDetail struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Detail   string `json:"detail"`
	Review   string `json:"review"`
	Reviewer string `json:"reviewer"`
	IsMine   bool   `json:"isMine"`
}

// ReviewDraft は書評の投稿・更新フォームの入力内容を表す。
type ReviewDraft struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Detail string `json:"detail"`
	Review string `json:"review"`
}

// UserProfile はリモートサービス上のユーザープロフィールを表す。
type UserProfile struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
}
