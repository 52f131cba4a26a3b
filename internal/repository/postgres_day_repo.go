package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/model"
)

// PostgresDayReadingRepo はPostgreSQLを使用した日次記録リポジトリ。
type PostgresDayReadingRepo struct {
	db DBTX
}

// NewPostgresDayReadingRepo はPostgresDayReadingRepoを生成する。
func NewPostgresDayReadingRepo(db DBTX) *PostgresDayReadingRepo {
	return &PostgresDayReadingRepo{db: db}
}

const selectDayColumns = `SELECT d.id, d.cycle_id, d.date, d.hormone_reading, d.intercourse FROM cycle_days d`

func scanDayReading(row rowScanner) (*model.DayReading, error) {
	dr := &model.DayReading{}
	var date time.Time
	var hormone sql.NullString
	if err := row.Scan(&dr.ID, &dr.CycleID, &date, &hormone, &dr.Intercourse); err != nil {
		return nil, err
	}
	dr.Date = dateFromTime(date)
	if hormone.Valid {
		dr.Hormone = model.HormoneReading(hormone.String)
	}
	return dr, nil
}

// hormoneParam は未検査をNULLとして渡す。
func hormoneParam(h model.HormoneReading) any {
	if h == model.HormoneUnknown {
		return nil
	}
	return string(h)
}

func (r *PostgresDayReadingRepo) queryReadings(ctx context.Context, query string, args ...any) ([]*model.DayReading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*model.DayReading
	for rows.Next() {
		dr, err := scanDayReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
func (r *PostgresDayReadingRepo) FindByID(ctx context.Context, id string) (*model.DayReading, error) {
	dr, err := scanDayReading(r.db.QueryRowContext(ctx, selectDayColumns+` WHERE d.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find day reading: %w", err)
	}
	return dr, nil
}

// FindByCycleAndDate はサイクルIDと日付で記録を取得する。見つからない場合はnilを返す。
func (r *PostgresDayReadingRepo) FindByCycleAndDate(ctx context.Context, cycleID string, date civil.Date) (*model.DayReading, error) {
	dr, err := scanDayReading(r.db.QueryRowContext(ctx,
		selectDayColumns+` WHERE d.cycle_id = $1 AND d.date = $2::date`,
		cycleID, dateParam(date),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find day reading: %w", err)
	}
	return dr, nil
}

// ListByCycle はサイクルの全記録を返す。
func (r *PostgresDayReadingRepo) ListByCycle(ctx context.Context, cycleID string) ([]*model.DayReading, error) {
	readings, err := r.queryReadings(ctx, selectDayColumns+` WHERE d.cycle_id = $1`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list day readings: %w", err)
	}
	return readings, nil
}

// ListByOwner は所有者の全サイクルに属する記録を返す。
func (r *PostgresDayReadingRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.DayReading, error) {
	readings, err := r.queryReadings(ctx,
		selectDayColumns+` JOIN cycles c ON c.id = d.cycle_id WHERE c.owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner day readings: %w", err)
	}
	return readings, nil
}

// Create は記録を作成する。
// 同時リクエストが先に同じ日付を作成していた場合はErrReadingExistsを返す。
// 競合時も呼び出し側のトランザクションは中断しない。
func (r *PostgresDayReadingRepo) Create(ctx context.Context, reading *model.DayReading) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO cycle_days (id, cycle_id, date, hormone_reading, intercourse)
		 VALUES ($1, $2, $3::date, $4, $5)
		 ON CONFLICT (cycle_id, date) DO NOTHING`,
		reading.ID, reading.CycleID, dateParam(reading.Date), hormoneParam(reading.Hormone), reading.Intercourse,
	)
	if err != nil {
		return fmt.Errorf("failed to insert day reading: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrReadingExists
	}
	return nil
}

// UpdateFields はpatchで指定されたフィールドのみを更新する。
// 指定が無い場合は何もしない。
func (r *PostgresDayReadingRepo) UpdateFields(ctx context.Context, id string, patch model.ReadingPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	sets := make([]string, 0, 2)
	args := []any{id}
	if patch.Hormone != nil {
		args = append(args, hormoneParam(*patch.Hormone))
		sets = append(sets, fmt.Sprintf("hormone_reading = $%d", len(args)))
	}
	if patch.Intercourse != nil {
		args = append(args, *patch.Intercourse)
		sets = append(sets, fmt.Sprintf("intercourse = $%d", len(args)))
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE cycle_days SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update day reading: %w", err)
	}
	return requireAffected(result, model.NewReadingNotFoundError(id))
}

// Delete は指定IDの記録を削除する。
func (r *PostgresDayReadingRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cycle_days WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete day reading: %w", err)
	}
	return requireAffected(result, model.NewReadingNotFoundError(id))
}

// compile-time interface check
var _ DayReadingRepository = (*PostgresDayReadingRepo)(nil)
