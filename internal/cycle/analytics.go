package cycle

import (
	"context"
	"fmt"
	"math"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/model"
	"github.com/hitoshi/cyclelog/internal/repository"
)

// Aggregator はサイクル横断の集計を行う。集計値は保持せず毎回再計算する。
type Aggregator struct {
	cycles repository.CycleRepository
	days   repository.DayReadingRepository
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(cycles repository.CycleRepository, days repository.DayReadingRepository) *Aggregator {
	return &Aggregator{cycles: cycles, days: days}
}

// Compute は所有者の全サイクルと記録から集計結果を返す。
func (a *Aggregator) Compute(ctx context.Context, ownerID string) (*model.Analytics, error) {
	cycles, err := a.cycles.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("サイクル一覧の取得に失敗しました: %w", err)
	}
	readings, err := a.days.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("日次記録の取得に失敗しました: %w", err)
	}
	result := ComputeAnalytics(cycles, readings)
	return &result, nil
}

// ComputeAnalytics は平均周期と排卵ピークまでの平均日数を計算する。
//
// 平均周期は終了済みサイクルの日数（開始日・終了日を含む）の平均。
// ピークまでの日数は、Peakの記録を持つサイクルごとに最初のPeak日までの日数（開始日を1日目とする）を求め、その平均をとる。
// どちらも四捨五入した整数で、対象が無い場合は0。
func ComputeAnalytics(cycles []*model.Cycle, readings []*model.DayReading) model.Analytics {
	var result model.Analytics

	earliestPeak := make(map[string]civil.Date)
	for _, r := range readings {
		if r == nil || r.Hormone != model.HormonePeak {
			continue
		}
		if d, ok := earliestPeak[r.CycleID]; !ok || r.Date.Before(d) {
			earliestPeak[r.CycleID] = r.Date
		}
	}

	var lengthSum, peakSum int
	var open *model.Cycle
	for _, c := range cycles {
		if c == nil {
			continue
		}
		if c.IsOpen() {
			if open == nil || c.StartDate.After(open.StartDate) {
				open = c
			}
		} else {
			lengthSum += c.LengthDays()
			result.ClosedCycles++
		}
		if peak, ok := earliestPeak[c.ID]; ok {
			peakSum += peak.DaysSince(c.StartDate) + 1
			result.CyclesWithPeak++
		}
	}

	result.AverageCycleLength = roundedAverage(lengthSum, result.ClosedCycles)
	result.AverageDaysToPeak = roundedAverage(peakSum, result.CyclesWithPeak)

	if open != nil && result.ClosedCycles > 0 {
		next := open.StartDate.AddDays(result.AverageCycleLength)
		result.PredictedNextStart = &next
	}
	return result
}

func roundedAverage(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}
