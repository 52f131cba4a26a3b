package cycle

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hitoshi/cyclelog/internal/model"
	"github.com/hitoshi/cyclelog/internal/repository"
)

// ReadingUpserter は日次記録の部分更新を行う。
// 指定されなかったフィールドは既存の値を維持し、新規作成時は既定値を使う。
type ReadingUpserter struct {
	days    repository.DayReadingRepository
	locator *Locator
	metrics Recorder
	newID   func() string
}

// NewReadingUpserter はReadingUpserterを生成する。
func NewReadingUpserter(days repository.DayReadingRepository, locator *Locator, metrics Recorder) *ReadingUpserter {
	return &ReadingUpserter{
		days:    days,
		locator: locator,
		metrics: orNop(metrics),
		newID:   uuid.NewString,
	}
}

// Upsert は(cycleID, date)の記録を作成または更新する。
// 同じpatchを繰り返し適用しても結果は変わらない。
// 同じ日付への初回書き込みが競合した場合は、先に作成された記録へpatchを適用する。
func (u *ReadingUpserter) Upsert(ctx context.Context, cycleID string, date civil.Date, patch model.ReadingPatch) (*model.DayReading, error) {
	existing, err := u.days.FindByCycleAndDate(ctx, cycleID, date)
	if err != nil {
		return nil, fmt.Errorf("日次記録の取得に失敗しました: %w", err)
	}

	if existing == nil {
		reading := &model.DayReading{
			ID:      u.newID(),
			CycleID: cycleID,
			Date:    date,
		}
		applyPatch(reading, patch)
		err := u.days.Create(ctx, reading)
		if err == nil {
			u.metrics.RecordReadingUpserted(true)
			return reading, nil
		}
		if !errors.Is(err, repository.ErrReadingExists) {
			return nil, fmt.Errorf("日次記録の作成に失敗しました: %w", err)
		}

		existing, err = u.days.FindByCycleAndDate(ctx, cycleID, date)
		if err != nil {
			return nil, fmt.Errorf("日次記録の取得に失敗しました: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("日次記録の作成に失敗しました: %w", repository.ErrReadingExists)
		}
	}

	if err := u.days.UpdateFields(ctx, existing.ID, patch); err != nil {
		return nil, fmt.Errorf("日次記録の更新に失敗しました: %w", err)
	}
	applyPatch(existing, patch)
	u.metrics.RecordReadingUpserted(false)
	return existing, nil
}

// UpsertRange はstartからendまでの各日付にpatchを適用する。
// 所属サイクルの無い日付はエラーにせずスキップする。
// ストレージエラーが発生した時点で中断し、それまでに適用した日付はそのまま残る。
func (u *ReadingUpserter) UpsertRange(ctx context.Context, ownerID string, start, end civil.Date, patch model.ReadingPatch) (model.RangeResult, error) {
	var result model.RangeResult
	if start.After(end) {
		return result, model.NewInvalidDateRangeError(start.String(), end.String())
	}

	for d := start; !d.After(end); d = d.AddDays(1) {
		c, err := u.locator.FindOwningCycle(ctx, ownerID, d)
		if err != nil {
			return result, err
		}
		if c == nil {
			result.Skipped++
			continue
		}
		if _, err := u.Upsert(ctx, c.ID, d, patch); err != nil {
			return result, err
		}
		result.Applied++
	}

	u.metrics.RecordRangeResult(result.Applied, result.Skipped)
	return result, nil
}

// applyPatch はpatchで指定されたフィールドのみをreadingに反映する。
func applyPatch(reading *model.DayReading, patch model.ReadingPatch) {
	if patch.Hormone != nil {
		reading.Hormone = *patch.Hormone
	}
	if patch.Intercourse != nil {
		reading.Intercourse = *patch.Intercourse
	}
}
