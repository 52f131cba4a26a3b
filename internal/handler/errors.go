package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/middleware"
	"github.com/hitoshi/cyclelog/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外はストレージ等の内部エラーとしてログに残し、500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation,
		model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidDate,
		model.ErrCodeInvalidDateRange,
		model.ErrCodeInvalidHormone:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeCycleNotFound, model.ErrCodeReadingNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// requireUser はセッションミドルウェアが注入したユーザーIDを返す。
// 取得できない場合は401を書き込んでfalseを返す。
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// targetParam はクエリパラメータtargetを返す。省略時は空文字（=自分自身）。
func targetParam(r *http.Request) string {
	return r.URL.Query().Get("target")
}

// decodeJSON はリクエストボディをdstへデコードする。
// 不正なJSONや未知のフィールドはINVALID_REQUESTとして返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return newInvalidRequestError(err)
	}
	if dec.More() {
		return newInvalidRequestError(errors.New("unexpected data after JSON body"))
	}
	return nil
}

func newInvalidRequestError(cause error) *model.APIError {
	msg := "リクエストボディが不正です。"
	if cause != nil && !errors.Is(cause, io.EOF) {
		msg = fmt.Sprintf("リクエストボディが不正です: %s", cause.Error())
	}
	return &model.APIError{
		Code:     model.ErrCodeInvalidRequest,
		Message:  msg,
		Category: "validation",
		Action:   "JSON形式のリクエストボディを送信してください。",
	}
}

// parseDateField はYYYY-MM-DD形式の日付を解析する。
// 空文字は未指定としてゼロ値を返し、必須チェックはサービス層に任せる。
func parseDateField(field, value string) (civil.Date, error) {
	if value == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(value)
	if err != nil || !d.IsValid() {
		return civil.Date{}, model.NewInvalidDateError(field, value)
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
