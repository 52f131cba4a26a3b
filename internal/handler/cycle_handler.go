package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cyclelog/internal/middleware"
	"github.com/hitoshi/cyclelog/internal/model"
)

// CycleServiceInterface はサイクルハンドラーが必要とするサービスインターフェース。
// targetIDが空の場合はactor自身のデータを対象とする。
type CycleServiceInterface interface {
	OpenCycle(ctx context.Context, actorID, targetID string, start civil.Date) (*model.Cycle, error)
	UpsertDay(ctx context.Context, actorID, targetID string, date civil.Date, patch model.ReadingPatch) (*model.DayReading, error)
	UpsertRange(ctx context.Context, actorID, targetID string, start, end civil.Date, patch model.ReadingPatch) (model.RangeResult, error)
	ListCycles(ctx context.Context, actorID, targetID string) ([]*model.FilledCycle, error)
	GetCycle(ctx context.Context, actorID, cycleID string) (*model.FilledCycle, error)
	Analytics(ctx context.Context, actorID, targetID string) (*model.Analytics, error)
	DeleteCycle(ctx context.Context, actorID, cycleID string) error
	DeleteReading(ctx context.Context, actorID, readingID string) error
	Export(ctx context.Context, actorID, targetID string, w io.Writer) error
}

// CycleHandler はサイクルと日次記録のHTTPハンドラー。
type CycleHandler struct {
	service CycleServiceInterface
}

// NewCycleHandler はCycleHandlerを生成する。
func NewCycleHandler(service CycleServiceInterface) *CycleHandler {
	return &CycleHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

type openCycleRequest struct {
	StartDate string `json:"start_date"`
}

type cycleResponse struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	StartDate civil.Date  `json:"start_date"`
	EndDate   *civil.Date `json:"end_date"`
}

type dayEntryResponse struct {
	ID             string     `json:"id,omitempty"`
	Date           civil.Date `json:"date"`
	HormoneReading *string    `json:"hormone_reading"`
	Intercourse    bool       `json:"intercourse"`
	Placeholder    bool       `json:"placeholder"`
}

type filledCycleResponse struct {
	cycleResponse
	Days []dayEntryResponse `json:"days"`
}

type readingResponse struct {
	ID             string     `json:"id"`
	CycleID        string     `json:"cycle_id"`
	Date           civil.Date `json:"date"`
	HormoneReading *string    `json:"hormone_reading"`
	Intercourse    bool       `json:"intercourse"`
}

type rangeResponse struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// rangeFailureResponse は途中で失敗した期間一括更新のエラーレスポンス。
// それまでに適用された日付は取り消されないため、件数を併せて返す。
type rangeFailureResponse struct {
	middleware.ErrorResponseBody
	rangeResponse
}

type analyticsResponse struct {
	AverageCycleLength int         `json:"average_cycle_length"`
	AverageDaysToPeak  int         `json:"average_days_to_peak"`
	ClosedCycles       int         `json:"closed_cycles"`
	CyclesWithPeak     int         `json:"cycles_with_peak"`
	PredictedNextStart *civil.Date `json:"predicted_next_start"`
}

// patchFields は日次記録の部分更新フィールド。
// hormone_readingはキー省略で変更なし、nullまたは""でクリアを表す。
type patchFields struct {
	HormoneReading json.RawMessage `json:"hormone_reading"`
	Intercourse    *bool           `json:"intercourse"`
}

type upsertDayRequest struct {
	Date string `json:"date"`
	patchFields
}

type upsertRangeRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	patchFields
}

// toPatch はリクエストのフィールドをReadingPatchに変換する。
func (p patchFields) toPatch() (model.ReadingPatch, error) {
	patch := model.ReadingPatch{Intercourse: p.Intercourse}
	if len(p.HormoneReading) == 0 {
		return patch, nil
	}

	cleared := model.HormoneUnknown
	if bytes.Equal(bytes.TrimSpace(p.HormoneReading), []byte("null")) {
		patch.Hormone = &cleared
		return patch, nil
	}

	var raw string
	if err := json.Unmarshal(p.HormoneReading, &raw); err != nil {
		return model.ReadingPatch{}, model.NewInvalidHormoneReadingError(string(p.HormoneReading))
	}
	h, ok := model.ParseHormoneReading(raw)
	if !ok {
		return model.ReadingPatch{}, model.NewInvalidHormoneReadingError(raw)
	}
	patch.Hormone = &h
	return patch, nil
}

func hormoneJSON(h model.HormoneReading) *string {
	if h == model.HormoneUnknown {
		return nil
	}
	s := string(h)
	return &s
}

func toCycleResponse(c *model.Cycle) cycleResponse {
	return cycleResponse{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
	}
}

func toFilledCycleResponse(fc *model.FilledCycle) filledCycleResponse {
	days := make([]dayEntryResponse, len(fc.Days))
	for i, d := range fc.Days {
		days[i] = dayEntryResponse{
			ID:             d.ID,
			Date:           d.Date,
			HormoneReading: hormoneJSON(d.Hormone),
			Intercourse:    d.Intercourse,
			Placeholder:    d.Placeholder,
		}
	}
	return filledCycleResponse{cycleResponse: toCycleResponse(&fc.Cycle), Days: days}
}

func toReadingResponse(d *model.DayReading) readingResponse {
	return readingResponse{
		ID:             d.ID,
		CycleID:        d.CycleID,
		Date:           d.Date,
		HormoneReading: hormoneJSON(d.Hormone),
		Intercourse:    d.Intercourse,
	}
}

// --- ハンドラー ---

// OpenCycle は新しいサイクルを開始する。進行中のサイクルは開始日の前日で終了する。
// POST /api/cycles?target=xxx
func (h *CycleHandler) OpenCycle(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req openCycleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	c, err := h.service.OpenCycle(r.Context(), actorID, targetParam(r), start)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCycleResponse(c))
}

// ListCycles は補完済みタイムラインを開始日の新しい順で返す。
// GET /api/cycles?target=xxx
func (h *CycleHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filled, err := h.service.ListCycles(r.Context(), actorID, targetParam(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]filledCycleResponse, len(filled))
	for i, fc := range filled {
		resp[i] = toFilledCycleResponse(fc)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCycle は1件のサイクルのタイムラインを返す。
// GET /api/cycles/{id}
func (h *CycleHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	fc, err := h.service.GetCycle(r.Context(), actorID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFilledCycleResponse(fc))
}

// DeleteCycle はサイクルと紐づく記録を削除する。
// DELETE /api/cycles/{id}
func (h *CycleHandler) DeleteCycle(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteCycle(r.Context(), actorID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertDay は1日分の記録を部分更新する。
// PUT /api/days?target=xxx
func (h *CycleHandler) UpsertDay(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req upsertDayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	reading, err := h.service.UpsertDay(r.Context(), actorID, targetParam(r), date, patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReadingResponse(reading))
}

// UpsertRange は期間内の各日付に同じ内容を適用する。
// どのサイクルにも属さない日付はスキップし、件数で返す。
// PUT /api/days/range?target=xxx
func (h *CycleHandler) UpsertRange(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req upsertRangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.UpsertRange(r.Context(), actorID, targetParam(r), start, end, patch)
	if err != nil {
		if result == (model.RangeResult{}) {
			handleServiceError(w, r, err)
			return
		}
		writeRangeFailure(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse{Applied: result.Applied, Skipped: result.Skipped})
}

// DeleteReading は1日分の記録を削除する。
// DELETE /api/days/{id}
func (h *CycleHandler) DeleteReading(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReading(r.Context(), actorID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analytics は平均周期とピークまでの平均日数を返す。
// GET /api/analytics?target=xxx
func (h *CycleHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	a, err := h.service.Analytics(r.Context(), actorID, targetParam(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analyticsResponse{
		AverageCycleLength: a.AverageCycleLength,
		AverageDaysToPeak:  a.AverageDaysToPeak,
		ClosedCycles:       a.ClosedCycles,
		CyclesWithPeak:     a.CyclesWithPeak,
		PredictedNextStart: a.PredictedNextStart,
	})
}

// Export は全タイムラインをCSVで返す。
// GET /api/export.csv?target=xxx
func (h *CycleHandler) Export(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	// 権限エラー時にJSONで返せるよう、本文はバッファしてから書き出す
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), actorID, targetParam(r), &buf); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cyclelog.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export", slog.String("error", err.Error()))
	}
}

// writeRangeFailure は統一エラーフォーマットに適用済み・スキップ件数を加えて書き込む。
func writeRangeFailure(w http.ResponseWriter, r *http.Request, err error, result model.RangeResult) {
	status := http.StatusInternalServerError
	body := middleware.ErrorResponseBody{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "適用済みの日付は保存されています。残りの期間を再度送信してください。",
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status = mapAPIErrorToHTTPStatus(apiErr)
		body = middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		}
	} else {
		slog.Error("internal server error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("applied", result.Applied),
			slog.Int("skipped", result.Skipped),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, status, rangeFailureResponse{
		ErrorResponseBody: body,
		rangeResponse:     rangeResponse{Applied: result.Applied, Skipped: result.Skipped},
	})
}
