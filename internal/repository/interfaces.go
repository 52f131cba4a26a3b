// Package repository はデータ永続化のインターフェースを定義する。
// エンジン層はこのインターフェースのみに依存し、ストレージ実装を直接参照しない。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/model"
)

// ErrReadingExists は同じ(cycle_id, date)の記録が既に存在する場合に返される。
var ErrReadingExists = errors.New("day reading already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdatePartner はユーザーの共有先を上書きする。nilを渡すと共有を解除する。
	UpdatePartner(ctx context.Context, userID string, partnerID *string) error

	// ListSharingWith は指定ユーザーへデータを共有しているユーザーのIDを返す。
	ListSharingWith(ctx context.Context, granteeID string) ([]string, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、cycles（およびcycle_days）はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CycleRepository はサイクルの永続化インターフェース。
type CycleRepository interface {
	// FindByID は指定IDのサイクルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Cycle, error)

	// FindOpenByOwner は所有者の進行中（end_date IS NULL）のサイクルを取得する。
	// 見つからない場合はnilを返す。
	FindOpenByOwner(ctx context.Context, ownerID string) (*model.Cycle, error)

	// ListCovering は指定日を期間内に含む所有者のサイクルを開始日の降順で返す。
	ListCovering(ctx context.Context, ownerID string, date civil.Date) ([]*model.Cycle, error)

	// ListByOwner は所有者の全サイクルを返す。順序は保証しない。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Cycle, error)

	// Create はサイクルを作成する。
	Create(ctx context.Context, cycle *model.Cycle) error

	// Close はサイクルの終了日を設定する。
	Close(ctx context.Context, id string, endDate civil.Date) error

	// Delete は指定IDのサイクルを削除する。
	// 紐づくcycle_daysはストレージ側のCASCADE削除に委ねる。
	Delete(ctx context.Context, id string) error

	// DeleteByOwner は所有者の全サイクルを削除する。削除件数を返す。
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// DayReadingRepository は日次記録の永続化インターフェース。
type DayReadingRepository interface {
	// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.DayReading, error)

	// FindByCycleAndDate はサイクルIDと日付で記録を取得する。見つからない場合はnilを返す。
	FindByCycleAndDate(ctx context.Context, cycleID string, date civil.Date) (*model.DayReading, error)

	// ListByCycle はサイクルの全記録を返す。順序は保証しない。
	ListByCycle(ctx context.Context, cycleID string) ([]*model.DayReading, error)

	// ListByOwner は所有者の全サイクルに属する全記録を返す。順序は保証しない。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.DayReading, error)

	// Create は記録を作成する。
	// 同じ(cycle_id, date)の記録が既に存在する場合は何も書き込まずErrReadingExistsを返す。
	Create(ctx context.Context, reading *model.DayReading) error

	// UpdateFields は指定されたフィールドのみを更新する。
	// patchでnilのフィールドは変更しない。
	UpdateFields(ctx context.Context, id string, patch model.ReadingPatch) error

	// Delete は指定IDの記録を削除する。
	Delete(ctx context.Context, id string) error
}

// OwnerTransactor は所有者単位で直列化されたトランザクションを提供する。
// サイクルの切り替え（進行中サイクルの終了と新規サイクルの作成）を
// 複数プロセスからの同時実行に対して原子的に行うために使う。
type OwnerTransactor interface {
	// WithOwnerLock は所有者をロックしたトランザクション内でfnを実行する。
	// fnがエラーを返した場合はロールバックする。
	WithOwnerLock(ctx context.Context, ownerID string, fn func(cycles CycleRepository, days DayReadingRepository) error) error
}

// DBTX は*sql.DBと*sql.Txの共通部分を抽象化するインターフェース。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
