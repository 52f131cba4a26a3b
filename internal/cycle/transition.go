package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hitoshi/cyclelog/internal/model"
	"github.com/hitoshi/cyclelog/internal/repository"
)

// Transitioner は新しいサイクルの開始と、進行中サイクルの終了を行う。
type Transitioner struct {
	tx      repository.OwnerTransactor
	metrics Recorder
	newID   func() string
	now     func() time.Time
}

// NewTransitioner はTransitionerを生成する。
func NewTransitioner(tx repository.OwnerTransactor, metrics Recorder) *Transitioner {
	return &Transitioner{
		tx:      tx,
		metrics: orNop(metrics),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// OpenCycle はstartDateから始まる新しいサイクルを開始する。
//
// 処理手順:
//  1. 所有者の進行中サイクルを取得する
//  2. 存在すれば終了日をstartDateの前日に設定する
//  3. 新しいサイクルを終了日なしで作成する
//  4. 開始日の日次記録を既定値で作成する
//
// 一連の処理は所有者をロックした1つのトランザクション内で行い、
// 同時実行による進行中サイクルの重複を防ぐ。
// startDateが進行中サイクルの開始日より前でも検証は行わない。
func (t *Transitioner) OpenCycle(ctx context.Context, ownerID string, startDate civil.Date) (*model.Cycle, error) {
	var created *model.Cycle

	err := t.tx.WithOwnerLock(ctx, ownerID, func(cycles repository.CycleRepository, days repository.DayReadingRepository) error {
		// 1. 進行中サイクルの取得
		open, err := cycles.FindOpenByOwner(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("進行中サイクルの取得に失敗しました: %w", err)
		}

		// 2. 進行中サイクルを前日で終了
		if open != nil {
			end := startDate.AddDays(-1)
			if err := cycles.Close(ctx, open.ID, end); err != nil {
				return fmt.Errorf("進行中サイクルの終了に失敗しました: %w", err)
			}
			slog.Info("進行中サイクルを終了しました",
				slog.String("owner_id", ownerID),
				slog.String("cycle_id", open.ID),
				slog.String("end_date", end.String()),
			)
		}

		// 3. 新しいサイクルを作成
		c := &model.Cycle{
			ID:        t.newID(),
			OwnerID:   ownerID,
			StartDate: startDate,
			CreatedAt: t.now().UTC(),
		}
		if err := cycles.Create(ctx, c); err != nil {
			return fmt.Errorf("サイクルの作成に失敗しました: %w", err)
		}

		// 4. 開始日の日次記録を作成
		first := &model.DayReading{
			ID:      t.newID(),
			CycleID: c.ID,
			Date:    startDate,
		}
		if err := days.Create(ctx, first); err != nil {
			return fmt.Errorf("開始日の記録の作成に失敗しました: %w", err)
		}

		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.metrics.RecordCycleOpened()
	slog.Info("サイクルを開始しました",
		slog.String("owner_id", ownerID),
		slog.String("cycle_id", created.ID),
		slog.String("start_date", startDate.String()),
	)
	return created, nil
}
