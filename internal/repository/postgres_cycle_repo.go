package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/model"
)

// PostgresCycleRepo はPostgreSQLを使用したサイクルリポジトリ。
// *sql.DBと*sql.Txのどちらでも動作する。
type PostgresCycleRepo struct {
	db DBTX
}

// NewPostgresCycleRepo はPostgresCycleRepoを生成する。
func NewPostgresCycleRepo(db DBTX) *PostgresCycleRepo {
	return &PostgresCycleRepo{db: db}
}

const selectCycleColumns = `SELECT id, owner_id, start_date, end_date, created_at FROM cycles`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*model.Cycle, error) {
	c := &model.Cycle{}
	var start time.Time
	var end sql.NullTime
	if err := row.Scan(&c.ID, &c.OwnerID, &start, &end, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.StartDate = dateFromTime(start)
	c.EndDate = dateFromNull(end)
	return c, nil
}

func (r *PostgresCycleRepo) queryCycles(ctx context.Context, query string, args ...any) ([]*model.Cycle, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []*model.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cycles, nil
}

// FindByID は指定IDのサイクルを取得する。見つからない場合はnilを返す。
func (r *PostgresCycleRepo) FindByID(ctx context.Context, id string) (*model.Cycle, error) {
	c, err := scanCycle(r.db.QueryRowContext(ctx, selectCycleColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cycle: %w", err)
	}
	return c, nil
}

// FindOpenByOwner は所有者の進行中サイクルを取得する。
// 不整合で複数存在する場合は開始日が最も新しいものを返す。
func (r *PostgresCycleRepo) FindOpenByOwner(ctx context.Context, ownerID string) (*model.Cycle, error) {
	c, err := scanCycle(r.db.QueryRowContext(ctx,
		selectCycleColumns+` WHERE owner_id = $1 AND end_date IS NULL
		 ORDER BY start_date DESC, created_at DESC LIMIT 1`,
		ownerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open cycle: %w", err)
	}
	return c, nil
}

// ListCovering は指定日を期間内に含むサイクルを開始日の降順で返す。
func (r *PostgresCycleRepo) ListCovering(ctx context.Context, ownerID string, date civil.Date) ([]*model.Cycle, error) {
	cycles, err := r.queryCycles(ctx,
		selectCycleColumns+` WHERE owner_id = $1
		   AND start_date <= $2::date
		   AND (end_date IS NULL OR end_date >= $2::date)
		 ORDER BY start_date DESC, created_at DESC`,
		ownerID, dateParam(date),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list covering cycles: %w", err)
	}
	return cycles, nil
}

// ListByOwner は所有者の全サイクルを返す。
func (r *PostgresCycleRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Cycle, error) {
	cycles, err := r.queryCycles(ctx, selectCycleColumns+` WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	return cycles, nil
}

// Create はサイクルを作成する。
func (r *PostgresCycleRepo) Create(ctx context.Context, cycle *model.Cycle) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cycles (id, owner_id, start_date, end_date, created_at)
		 VALUES ($1, $2, $3::date, $4::date, $5)`,
		cycle.ID, cycle.OwnerID, dateParam(cycle.StartDate), nullableDateParam(cycle.EndDate), cycle.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	return nil
}

// Close はサイクルの終了日を設定する。
func (r *PostgresCycleRepo) Close(ctx context.Context, id string, endDate civil.Date) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE cycles SET end_date = $2::date WHERE id = $1`,
		id, dateParam(endDate),
	)
	if err != nil {
		return fmt.Errorf("failed to close cycle: %w", err)
	}
	return requireAffected(result, model.NewCycleNotFoundError(id))
}

// Delete は指定IDのサイクルを削除する。cycle_daysはON DELETE CASCADEで削除される。
func (r *PostgresCycleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cycles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cycle: %w", err)
	}
	return requireAffected(result, model.NewCycleNotFoundError(id))
}

// DeleteByOwner は所有者の全サイクルを削除する。
func (r *PostgresCycleRepo) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cycles WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cycles: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// requireAffected は1行も更新されなかった場合にnotFoundを返す。
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// compile-time interface check
var _ CycleRepository = (*PostgresCycleRepo)(nil)
