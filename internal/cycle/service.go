package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/metrics"
	"github.com/hitoshi/cyclelog/internal/model"
	"github.com/hitoshi/cyclelog/internal/repository"
)

// MaxRangeDays は期間一括更新で一度に指定できる最大日数。
const MaxRangeDays = 366

// Authorizer はactorがtargetのデータを操作できるかを判定する。
// 権限が無い場合はFORBIDDENのAPIErrorを返す。
type Authorizer interface {
	Authorize(ctx context.Context, actorID, targetID string) error
}

// Recorder はエンジンのメトリクス記録先。
type Recorder interface {
	RecordCycleOpened()
	RecordReadingUpserted(created bool)
	RecordRangeResult(applied, skipped int)
}

func orNop(r Recorder) Recorder {
	if r == nil {
		return metrics.Nop{}
	}
	return r
}

// Service はアクセス制御を通したサイクル操作の窓口。
// すべての操作は対象ユーザーのデータに触れる前に権限を確認する。
type Service struct {
	auth       Authorizer
	cycles     repository.CycleRepository
	days       repository.DayReadingRepository
	locator    *Locator
	filler     *Filler
	upserter   *ReadingUpserter
	transition *Transitioner
	aggregator *Aggregator
}

// NewService はServiceを生成する。recはnilでもよい。
func NewService(
	auth Authorizer,
	cycles repository.CycleRepository,
	days repository.DayReadingRepository,
	tx repository.OwnerTransactor,
	rec Recorder,
) *Service {
	locator := NewLocator(cycles)
	return &Service{
		auth:       auth,
		cycles:     cycles,
		days:       days,
		locator:    locator,
		filler:     NewFiller(cycles, days),
		upserter:   NewReadingUpserter(days, locator, rec),
		transition: NewTransitioner(tx, rec),
		aggregator: NewAggregator(cycles, days),
	}
}

// targetOrActor は対象が省略された場合にactor自身を対象とする。
func targetOrActor(actorID, targetID string) string {
	if targetID == "" {
		return actorID
	}
	return targetID
}

// OpenCycle は対象ユーザーの新しいサイクルを開始する。
func (s *Service) OpenCycle(ctx context.Context, actorID, targetID string, start civil.Date) (*model.Cycle, error) {
	if !start.IsValid() {
		return nil, model.NewValidationError("start_dateは必須です。")
	}
	ownerID := targetOrActor(actorID, targetID)
	if err := s.auth.Authorize(ctx, actorID, ownerID); err != nil {
		return nil, err
	}
	return s.transition.OpenCycle(ctx, ownerID, start)
}

// UpsertDay は対象ユーザーの指定日の記録を部分更新する。
// その日を含むサイクルが無い場合はCYCLE_NOT_FOUNDを返す。
func (s *Service) UpsertDay(ctx context.Context, actorID, targetID string, date civil.Date, patch model.ReadingPatch) (*model.DayReading, error) {
	if !date.IsValid() {
		return nil, model.NewValidationError("dateは必須です。")
	}
	if patch.IsEmpty() {
		return nil, model.NewEmptyPatchError()
	}
	ownerID := targetOrActor(actorID, targetID)
	if err := s.auth.Authorize(ctx, actorID, ownerID); err != nil {
		return nil, err
	}

	c, err := s.locator.FindOwningCycle(ctx, ownerID, date)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.NewCycleNotFoundError(date.String())
	}
	return s.upserter.Upsert(ctx, c.ID, date, patch)
}

// UpsertRange は対象ユーザーの期間内の各日付に同じ内容を適用する。
func (s *Service) UpsertRange(ctx context.Context, actorID, targetID string, start, end civil.Date, patch model.ReadingPatch) (model.RangeResult, error) {
	if !start.IsValid() || !end.IsValid() {
		return model.RangeResult{}, model.NewValidationError("start_dateとend_dateは必須です。")
	}
	if patch.IsEmpty() {
		return model.RangeResult{}, model.NewEmptyPatchError()
	}
	if start.After(end) {
		return model.RangeResult{}, model.NewInvalidDateRangeError(start.String(), end.String())
	}
	if end.DaysSince(start)+1 > MaxRangeDays {
		return model.RangeResult{}, model.NewValidationError(fmt.Sprintf("期間は%d日以内で指定してください。", MaxRangeDays))
	}
	ownerID := targetOrActor(actorID, targetID)
	if err := s.auth.Authorize(ctx, actorID, ownerID); err != nil {
		return model.RangeResult{}, err
	}

	result, err := s.upserter.UpsertRange(ctx, ownerID, start, end, patch)
	if err != nil {
		slog.Error("期間一括更新が途中で失敗しました",
			slog.String("owner_id", ownerID),
			slog.Int("applied", result.Applied),
			slog.Int("skipped", result.Skipped),
			slog.String("error", err.Error()),
		)
		return result, err
	}
	return result, nil
}

// ListCycles は対象ユーザーの全サイクルのタイムラインを開始日の新しい順で返す。
func (s *Service) ListCycles(ctx context.Context, actorID, targetID string) ([]*model.FilledCycle, error) {
	ownerID := targetOrActor(actorID, targetID)
	if err := s.auth.Authorize(ctx, actorID, ownerID); err != nil {
		return nil, err
	}

	cycles, err := s.cycles.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("サイクル一覧の取得に失敗しました: %w", err)
	}
	readings, err := s.days.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("日次記録の取得に失敗しました: %w", err)
	}

	byCycle := make(map[string][]*model.DayReading, len(cycles))
	for _, r := range readings {
		byCycle[r.CycleID] = append(byCycle[r.CycleID], r)
	}

	filled := make([]*model.FilledCycle, 0, len(cycles))
	for _, c := range cycles {
		filled = append(filled, FillTimeline(c, byCycle[c.ID]))
	}
	sort.SliceStable(filled, func(i, j int) bool {
		return newerThan(&filled[i].Cycle, &filled[j].Cycle)
	})
	return filled, nil
}

// GetCycle は指定サイクルのタイムラインを返す。
func (s *Service) GetCycle(ctx context.Context, actorID, cycleID string) (*model.FilledCycle, error) {
	c, err := s.findCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if err := s.auth.Authorize(ctx, actorID, c.OwnerID); err != nil {
		return nil, err
	}

	filled, err := s.filler.Fill(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if filled == nil {
		return nil, model.NewCycleNotFoundError(cycleID)
	}
	return filled, nil
}

// Analytics は対象ユーザーの集計結果を返す。
func (s *Service) Analytics(ctx context.Context, actorID, targetID string) (*model.Analytics, error) {
	ownerID := targetOrActor(actorID, targetID)
	if err := s.auth.Authorize(ctx, actorID, ownerID); err != nil {
		return nil, err
	}
	return s.aggregator.Compute(ctx, ownerID)
}

// DeleteCycle は指定サイクルを削除する。日次記録はストレージ側で連鎖削除される。
func (s *Service) DeleteCycle(ctx context.Context, actorID, cycleID string) error {
	c, err := s.findCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	if err := s.auth.Authorize(ctx, actorID, c.OwnerID); err != nil {
		return err
	}
	if err := s.cycles.Delete(ctx, cycleID); err != nil {
		return fmt.Errorf("サイクルの削除に失敗しました: %w", err)
	}

	slog.Info("サイクルを削除しました",
		slog.String("actor_id", actorID),
		slog.String("owner_id", c.OwnerID),
		slog.String("cycle_id", cycleID),
	)
	return nil
}

// DeleteReading は指定の日次記録を削除する。
// 記録の所有者のデータを操作できない場合はFORBIDDENを返す。
func (s *Service) DeleteReading(ctx context.Context, actorID, readingID string) error {
	reading, err := s.days.FindByID(ctx, readingID)
	if err != nil {
		return fmt.Errorf("日次記録の取得に失敗しました: %w", err)
	}
	if reading == nil {
		return model.NewReadingNotFoundError(readingID)
	}

	c, err := s.cycles.FindByID(ctx, reading.CycleID)
	if err != nil {
		return fmt.Errorf("サイクルの取得に失敗しました: %w", err)
	}
	if c == nil {
		return model.NewReadingNotFoundError(readingID)
	}
	if err := s.auth.Authorize(ctx, actorID, c.OwnerID); err != nil {
		return err
	}

	if err := s.days.Delete(ctx, readingID); err != nil {
		return fmt.Errorf("日次記録の削除に失敗しました: %w", err)
	}
	return nil
}

// ClearAll は所有者の全サイクルと日次記録を削除し、削除したサイクル数を返す。
// 共有先からは実行できないため、ownerIDには認証済みユーザー本人を渡すこと。
func (s *Service) ClearAll(ctx context.Context, ownerID string) (int64, error) {
	n, err := s.cycles.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("データの全削除に失敗しました: %w", err)
	}
	slog.Info("全データを削除しました",
		slog.String("owner_id", ownerID),
		slog.Int64("cycles", n),
	)
	return n, nil
}

func (s *Service) findCycle(ctx context.Context, cycleID string) (*model.Cycle, error) {
	c, err := s.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("サイクルの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCycleNotFoundError(cycleID)
	}
	return c, nil
}
