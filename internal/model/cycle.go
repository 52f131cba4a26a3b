package model

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// HormoneReading は排卵検査の結果を表す。
// 空文字は未検査（DB上はNULL）を意味する。
type HormoneReading string

const (
	// HormoneUnknown は未検査を表す。
	HormoneUnknown HormoneReading = ""
	// HormoneLow は低値を表す。
	HormoneLow HormoneReading = "Low"
	// HormoneHigh は高値を表す。
	HormoneHigh HormoneReading = "High"
	// HormonePeak はピーク（LHサージ）を表す。
	HormonePeak HormoneReading = "Peak"
)

// ParseHormoneReading は文字列をHormoneReadingに変換する。
// 大文字小文字は区別しない。空文字はHormoneUnknownとして扱う。
func ParseHormoneReading(s string) (HormoneReading, bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return HormoneUnknown, true
	case strings.EqualFold(s, string(HormoneLow)):
		return HormoneLow, true
	case strings.EqualFold(s, string(HormoneHigh)):
		return HormoneHigh, true
	case strings.EqualFold(s, string(HormonePeak)):
		return HormonePeak, true
	}
	return HormoneUnknown, false
}

// Cycle は1人の所有者に属する連続した期間を表す。
// EndDateがnilのサイクルは「進行中」であり、所有者ごとに最大1件しか存在しない。
type Cycle struct {
	ID        string
	OwnerID   string
	StartDate civil.Date
	EndDate   *civil.Date
	CreatedAt time.Time
}

// IsOpen は進行中のサイクルかどうかを返す。
func (c *Cycle) IsOpen() bool {
	return c.EndDate == nil
}

// Covers は指定日がこのサイクルの期間内にあるかを返す。
func (c *Cycle) Covers(d civil.Date) bool {
	if d.Before(c.StartDate) {
		return false
	}
	return c.EndDate == nil || !d.After(*c.EndDate)
}

// LengthDays は終了済みサイクルの日数（開始日・終了日を含む）を返す。
// 進行中のサイクルでは0を返す。
func (c *Cycle) LengthDays() int {
	if c.EndDate == nil {
		return 0
	}
	return c.EndDate.DaysSince(c.StartDate) + 1
}

// DayReading はサイクル内の1日分の記録を表す。
// (CycleID, Date) の組は一意である。
type DayReading struct {
	ID          string
	CycleID     string
	Date        civil.Date
	Hormone     HormoneReading
	Intercourse bool
}

// ReadingPatch は日次記録の部分更新内容を表す。
// nilのフィールドは変更しない。Hormoneが空文字を指す場合は明示的なクリアを意味する。
type ReadingPatch struct {
	Hormone     *HormoneReading
	Intercourse *bool
}

// IsEmpty は更新対象のフィールドが1つも指定されていないかを返す。
func (p ReadingPatch) IsEmpty() bool {
	return p.Hormone == nil && p.Intercourse == nil
}

// DayEntry はタイムライン上の1日分のエントリを表す。
// 記録が存在しない日はPlaceholderがtrueになり、IDは空になる。
type DayEntry struct {
	ID          string
	Date        civil.Date
	Hormone     HormoneReading
	Intercourse bool
	Placeholder bool
}

// FilledCycle は欠損日をプレースホルダで補完したサイクルのタイムラインを表す。
// 読み取りのたびに再計算され、キャッシュされない。
type FilledCycle struct {
	Cycle
	Days []DayEntry
}

// Analytics はサイクル横断の集計結果を表す。
type Analytics struct {
	AverageCycleLength int
	AverageDaysToPeak  int
	ClosedCycles       int
	CyclesWithPeak     int
	// PredictedNextStart は進行中サイクルの開始日に平均周期を加えた予測日。
	// 進行中サイクルまたは終了済みサイクルが無い場合はnil。
	PredictedNextStart *civil.Date
}

// RangeResult は期間一括更新の結果を表す。
type RangeResult struct {
	Applied int
	Skipped int
}
