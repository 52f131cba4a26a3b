package cycle

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var exportHeader = []string{
	"cycle_id", "cycle_start", "cycle_end", "date", "cycle_day",
	"hormone_reading", "intercourse", "recorded",
}

// Export は対象ユーザーの全タイムラインをCSVでwに書き出す。
// サイクルは開始日の古い順、各サイクル内は日付順に並ぶ。プレースホルダの日も出力する。
func (s *Service) Export(ctx context.Context, actorID, targetID string, w io.Writer) error {
	filled, err := s.ListCycles(ctx, actorID, targetID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}

	for i := len(filled) - 1; i >= 0; i-- {
		fc := filled[i]
		end := ""
		if fc.EndDate != nil {
			end = fc.EndDate.String()
		}
		for _, d := range fc.Days {
			record := []string{
				fc.ID,
				fc.StartDate.String(),
				end,
				d.Date.String(),
				strconv.Itoa(d.Date.DaysSince(fc.StartDate) + 1),
				string(d.Hormone),
				strconv.FormatBool(d.Intercourse),
				strconv.FormatBool(!d.Placeholder),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	return nil
}
