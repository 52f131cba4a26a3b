package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cycle, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInvalidDate      = "INVALID_DATE"
	ErrCodeInvalidDateRange = "INVALID_DATE_RANGE"
	ErrCodeInvalidHormone   = "INVALID_HORMONE_READING"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeCycleNotFound    = "CYCLE_NOT_FOUND"
	ErrCodeReadingNotFound  = "READING_NOT_FOUND"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
)

// IsAPIErrorCode はerrがcodeを持つAPIErrorかどうかを返す。
func IsAPIErrorCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewValidationError は必須項目の欠落や矛盾した入力のエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidDateError は日付の形式が不正な場合のエラーを生成する。
func NewInvalidDateError(field, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("%s の日付形式が不正です: %s", field, value),
		Category: "validation",
		Action:   "日付は YYYY-MM-DD 形式で指定してください。",
	}
}

// NewInvalidDateRangeError は期間の開始日が終了日より後の場合のエラーを生成する。
func NewInvalidDateRangeError(start, end string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateRange,
		Message:  fmt.Sprintf("開始日 %s が終了日 %s より後になっています。", start, end),
		Category: "validation",
		Action:   "開始日は終了日以前の日付を指定してください。",
	}
}

// NewInvalidHormoneReadingError は検査結果の値が不正な場合のエラーを生成する。
func NewInvalidHormoneReadingError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHormone,
		Message:  fmt.Sprintf("無効な検査結果です: %s", value),
		Category: "validation",
		Action:   "検査結果には Low、High、Peak のいずれかを指定してください。",
	}
}

// NewEmptyPatchError は更新フィールドが1つも指定されていない場合のエラーを生成する。
func NewEmptyPatchError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "hormone_readingまたはintercourseのいずれかを指定してください。",
		Category: "validation",
		Action:   "更新するフィールドを指定してください。",
	}
}

// NewForbiddenError は対象ユーザーのデータへの権限が無い場合のエラーを生成する。
// 存在しないデータと区別するため、NotFoundとは別のコードを使う。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このユーザーのデータにアクセスする権限がありません。",
		Category: "auth",
		Action:   "データの共有設定を相手に依頼してください。",
	}
}

// NewUnauthorizedError は未認証のリクエストに対するエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewCycleNotFoundError はサイクルが見つからない場合のエラーを生成する。
func NewCycleNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeCycleNotFound,
		Message:  fmt.Sprintf("指定されたサイクルが見つかりません: %s", ref),
		Category: "cycle",
		Action:   "サイクルの開始日を記録してから日次データを入力してください。",
	}
}

// NewReadingNotFoundError は日次記録が見つからない場合のエラーを生成する。
func NewReadingNotFoundError(readingID string) *APIError {
	return &APIError{
		Code:     ErrCodeReadingNotFound,
		Message:  fmt.Sprintf("指定された記録が見つかりません: %s", readingID),
		Category: "cycle",
		Action:   "記録IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "メールアドレスまたはユーザーIDを確認してください。",
	}
}
