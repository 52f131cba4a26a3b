package repository

import (
	"database/sql"
	"time"

	"cloud.google.com/go/civil"
)

// dateParam はcivil.DateをDATE列に渡すパラメータ文字列（YYYY-MM-DD）に変換する。
// time.Timeを経由しないため、接続のタイムゾーン設定に影響されない。
func dateParam(d civil.Date) string {
	return d.String()
}

// nullableDateParam はnilを許容する日付をパラメータに変換する。
func nullableDateParam(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// dateFromTime はDATE列から読み取ったtime.Timeをcivil.Dateに変換する。
// ドライバが返すロケーションの年月日をそのまま採用する。
func dateFromTime(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// dateFromNull はNULL許容のDATE列をcivil.Dateのポインタに変換する。
func dateFromNull(nt sql.NullTime) *civil.Date {
	if !nt.Valid {
		return nil
	}
	d := civil.DateOf(nt.Time)
	return &d
}
