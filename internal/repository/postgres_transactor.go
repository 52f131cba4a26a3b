package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/cyclelog/internal/model"
)

// PostgresOwnerTransactor はusers行のFOR UPDATEロックで所有者単位の直列化を行う。
type PostgresOwnerTransactor struct {
	db TxBeginner
}

// NewPostgresOwnerTransactor はPostgresOwnerTransactorを生成する。
func NewPostgresOwnerTransactor(db TxBeginner) *PostgresOwnerTransactor {
	return &PostgresOwnerTransactor{db: db}
}

// WithOwnerLock は所有者の行ロックを取得したトランザクション内でfnを実行する。
// 所有者が存在しない場合はUSER_NOT_FOUNDを返す。
func (t *PostgresOwnerTransactor) WithOwnerLock(
	ctx context.Context,
	ownerID string,
	fn func(cycles CycleRepository, days DayReadingRepository) error,
) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var lockedID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, ownerID).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to lock owner: %w", err)
	}

	if err := fn(NewPostgresCycleRepo(tx), NewPostgresDayReadingRepo(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OwnerTransactor = (*PostgresOwnerTransactor)(nil)
