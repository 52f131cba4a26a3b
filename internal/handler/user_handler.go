package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cyclelog/internal/model"
)

// ShareServiceInterface はデータ共有設定のサービスインターフェース。
type ShareServiceInterface interface {
	ListVisibleTo(ctx context.Context, actorID string) ([]string, error)
	SetShare(ctx context.Context, ownerID, granteeEmailOrID string) (*model.User, error)
	ClearShare(ctx context.Context, ownerID string) error
}

// DataClearer は本人の記録データを削除する。
type DataClearer interface {
	ClearAll(ctx context.Context, ownerID string) (int64, error)
}

// UserServiceInterface はアカウント操作のサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw は退会処理を行う。記録データ、identity、セッションも削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler は共有設定とアカウント管理のHTTPハンドラー。
type UserHandler struct {
	shares  ShareServiceInterface
	data    DataClearer
	service UserServiceInterface
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
// cookiesは退会時にセッションCookieを消すために使う。
func NewUserHandler(shares ShareServiceInterface, data DataClearer, service UserServiceInterface, cookies AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		shares:  shares,
		data:    data,
		service: service,
		cookies: cookies,
	}
}

type shareRequest struct {
	Grantee string `json:"grantee"`
}

type shareResponse struct {
	PartnerID string `json:"partner_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

type visibleUser struct {
	ID   string `json:"id"`
	Self bool   `json:"self"`
}

// ListVisible はログインユーザーが閲覧できるユーザーの一覧を返す。先頭は本人。
// GET /api/users/visible
func (h *UserHandler) ListVisible(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ids, err := h.shares.ListVisibleTo(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]visibleUser, len(ids))
	for i, id := range ids {
		resp[i] = visibleUser{ID: id, Self: id == userID}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetShare は自分のデータの共有先を設定する。既存の共有先は置き換わる。
// PUT /api/users/me/share {"grantee": "email or user id"}
func (h *UserHandler) SetShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	grantee, err := h.shares.SetShare(r.Context(), userID, req.Grantee)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{
		PartnerID: grantee.ID,
		Email:     grantee.Email,
		Name:      grantee.Name,
	})
}

// ClearShare は共有を解除する。
// DELETE /api/users/me/share
func (h *UserHandler) ClearShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.shares.ClearShare(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearData は本人の全サイクルと記録を削除する。アカウントと共有設定は残る。
// DELETE /api/users/me/data
func (h *UserHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	deleted, err := h.data.ClearAll(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	slog.Info("user data cleared",
		slog.String("user_id", userID),
		slog.Int64("cycles_deleted", deleted),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Withdraw は退会処理を行い、セッションCookieを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, h.cookies.sessionCookie("", -1))
	w.WriteHeader(http.StatusNoContent)
}
