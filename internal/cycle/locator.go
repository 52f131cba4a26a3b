// Package cycle はサイクルのタイムライン整合エンジンを提供する。
//
// サイクルの開始と終了の切り替え、日付から所属サイクルの特定、
// 欠損日を補完したタイムラインの再構成、日次記録の部分更新、
// サイクル横断の集計を担う。永続化はrepositoryパッケージのインターフェースに委ねる。
package cycle

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/model"
	"github.com/hitoshi/cyclelog/internal/repository"
)

// Locator は日付からその日を含むサイクルを特定する。
type Locator struct {
	cycles repository.CycleRepository
}

// NewLocator はLocatorを生成する。
func NewLocator(cycles repository.CycleRepository) *Locator {
	return &Locator{cycles: cycles}
}

// FindOwningCycle は所有者のサイクルのうちdateを期間内に含むものを返す。
// 該当が複数ある場合（データ不整合）は開始日が最も新しいものを選ぶ。
// 該当が無い場合はnilを返す。
func (l *Locator) FindOwningCycle(ctx context.Context, ownerID string, date civil.Date) (*model.Cycle, error) {
	candidates, err := l.cycles.ListCovering(ctx, ownerID, date)
	if err != nil {
		return nil, fmt.Errorf("所属サイクルの検索に失敗しました: %w", err)
	}
	return latestCovering(candidates, date), nil
}

// latestCovering はdateを含むサイクルから開始日が最も新しいものを選ぶ。
// ストレージの並び順には依存しない。開始日が同じ場合は作成日時、IDの順で比較する。
func latestCovering(cycles []*model.Cycle, date civil.Date) *model.Cycle {
	var best *model.Cycle
	for _, c := range cycles {
		if c == nil || !c.Covers(date) {
			continue
		}
		if best == nil || newerThan(c, best) {
			best = c
		}
	}
	return best
}

func newerThan(a, b *model.Cycle) bool {
	if a.StartDate != b.StartDate {
		return a.StartDate.After(b.StartDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
