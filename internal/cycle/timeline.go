package cycle

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/model"
	"github.com/hitoshi/cyclelog/internal/repository"
)

// Filler はサイクルの記録を読み込み、欠損日を補完したタイムラインを生成する。
type Filler struct {
	cycles repository.CycleRepository
	days   repository.DayReadingRepository
}

// NewFiller はFillerを生成する。
func NewFiller(cycles repository.CycleRepository, days repository.DayReadingRepository) *Filler {
	return &Filler{cycles: cycles, days: days}
}

// Fill は指定サイクルのタイムラインを返す。サイクルが存在しない場合はnilを返す。
// 結果はキャッシュせず、呼び出しのたびに永続化状態から再計算する。
func (f *Filler) Fill(ctx context.Context, cycleID string) (*model.FilledCycle, error) {
	c, err := f.cycles.FindByID(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("サイクルの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	readings, err := f.days.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("日次記録の取得に失敗しました: %w", err)
	}
	return FillTimeline(c, readings), nil
}

// FillTimeline はサイクルと記録から、開始日から上限日までの全日付を含むタイムラインを組み立てる。
//
// 上限日は開始日、終了日、最後の記録日のうち最も遅い日。
// 記録の無い日はプレースホルダで埋める。同じ日付の記録が複数ある場合はIDの小さいものを採用する。
func FillTimeline(c *model.Cycle, readings []*model.DayReading) *model.FilledCycle {
	// 1. 日付順に並べる（ストレージの並び順には依存しない）
	sorted := make([]*model.DayReading, 0, len(readings))
	for _, r := range readings {
		if r != nil {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	// 2. 日付で索引化する
	byDate := make(map[civil.Date]*model.DayReading, len(sorted))
	for _, r := range sorted {
		if _, dup := byDate[r.Date]; !dup {
			byDate[r.Date] = r
		}
	}

	// 3. 上限日を決める
	upper := c.StartDate
	if c.EndDate != nil && c.EndDate.After(upper) {
		upper = *c.EndDate
	}
	if n := len(sorted); n > 0 && sorted[n-1].Date.After(upper) {
		upper = sorted[n-1].Date
	}

	// 4. 開始日から上限日まで1日ずつ埋める
	days := make([]model.DayEntry, 0, upper.DaysSince(c.StartDate)+1)
	for d := c.StartDate; !d.After(upper); d = d.AddDays(1) {
		if r, ok := byDate[d]; ok {
			days = append(days, model.DayEntry{
				ID:          r.ID,
				Date:        d,
				Hormone:     r.Hormone,
				Intercourse: r.Intercourse,
			})
			continue
		}
		days = append(days, placeholder(d))
	}

	if len(days) == 0 {
		days = append(days, placeholder(c.StartDate))
	}

	return &model.FilledCycle{Cycle: *c, Days: days}
}

func placeholder(d civil.Date) model.DayEntry {
	return model.DayEntry{Date: d, Placeholder: true}
}
