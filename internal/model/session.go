// Package model はドメインモデルを定義する。
package model

// Session は現在のユーザーの認証状態を表す。
// Tokenが空でないことと、ログイン中であることは同値。
// UserNameとIconURLはログアウト時にTokenと同時にクリアされる。
type Session struct {
	Token    string `json:"authToken"`
	UserName string `json:"userName"`
	IconURL  string `json:"iconUrl"`
}

// IsLoggedIn はログイン中かどうかを返す。
func (s Session) IsLoggedIn() bool {
	return s.Token != ""
}

// LoggedOut はログアウト状態のSessionを返す。
func LoggedOut() Session {
	return Session{}
}
