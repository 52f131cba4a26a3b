// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PartnerIDは自分のデータを閲覧・編集できる相手（共有先）への片方向の参照で、
// ユーザーごとに最大1件のみ保持する。
type User struct {
	ID        string
	Email     string
	Name      string
	PartnerID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SharesWith はこのユーザーが指定ユーザーへデータを共有しているかを返す。
func (u *User) SharesWith(userID string) bool {
	return u != nil && u.PartnerID != nil && *u.PartnerID == userID
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
