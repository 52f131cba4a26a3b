package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/cyclelog/internal/middleware"
	"github.com/hitoshi/cyclelog/internal/model"
)

func newTestUserHandler(shares *mockShareService, data *mockDataClearer, users *mockUserService) *UserHandler {
	if shares == nil {
		shares = &mockShareService{}
	}
	if data == nil {
		data = &mockDataClearer{}
	}
	if users == nil {
		users = &mockUserService{}
	}
	return NewUserHandler(shares, data, users, testAuthConfig)
}

func TestListVisible_MarksSelf(t *testing.T) {
	shares := &mockShareService{
		listVisibleToFn: func(ctx context.Context, actorID string) ([]string, error) {
			return []string{actorID, "owner-2", "owner-3"}, nil
		},
	}
	w := httptest.NewRecorder()
	newTestUserHandler(shares, nil, nil).ListVisible(w, authedRequest(http.MethodGet, "/api/users/visible", "", "me"))

	var resp []visibleUser
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp) != 3 || !resp[0].Self || resp[0].ID != "me" || resp[1].Self || resp[2].Self {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSetShare(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "by email", body: `{"grantee":"b@example.com"}`, wantStatus: http.StatusOK},
		{name: "unknown grantee", body: `{"grantee":"nobody@example.com"}`, err: model.NewUserNotFoundError(), wantStatus: http.StatusNotFound},
		{name: "self share", body: `{"grantee":"me"}`, err: model.NewValidationError("自分自身は共有先に指定できません。"), wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{"grantee":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := &mockShareService{
				setShareFn: func(ctx context.Context, ownerID, grantee string) (*model.User, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.User{ID: "user-b", Email: grantee, Name: "B"}, nil
				},
			}
			w := httptest.NewRecorder()
			newTestUserHandler(shares, nil, nil).SetShare(w, authedRequest(http.MethodPut, "/api/users/me/share", tt.body, "me"))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp shareResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.PartnerID != "user-b" || resp.Email != "b@example.com" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestClearShare(t *testing.T) {
	var cleared string
	shares := &mockShareService{
		clearShareFn: func(ctx context.Context, ownerID string) error {
			cleared = ownerID
			return nil
		},
	}
	w := httptest.NewRecorder()
	newTestUserHandler(shares, nil, nil).ClearShare(w, authedRequest(http.MethodDelete, "/api/users/me/share", "", "me"))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if cleared != "me" {
		t.Errorf("cleared = %q, want me", cleared)
	}
}

func TestClearData(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		data := &mockDataClearer{
			clearAllFn: func(ctx context.Context, ownerID string) (int64, error) {
				return 4, nil
			},
		}
		w := httptest.NewRecorder()
		newTestUserHandler(nil, data, nil).ClearData(w, authedRequest(http.MethodDelete, "/api/users/me/data", "", "me"))

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		data := &mockDataClearer{
			clearAllFn: func(ctx context.Context, ownerID string) (int64, error) {
				return 0, errors.New("db down")
			},
		}
		w := httptest.NewRecorder()
		newTestUserHandler(nil, data, nil).ClearData(w, authedRequest(http.MethodDelete, "/api/users/me/data", "", "me"))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}

func TestWithdraw(t *testing.T) {
	t.Run("clears session cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		newTestUserHandler(nil, nil, nil).Withdraw(w, authedRequest(http.MethodDelete, "/api/users/me", "", "me"))

		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if c := findResponseCookie(w, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
			t.Errorf("session cookie should be cleared, got %+v", c)
		}
	})

	t.Run("unknown user keeps cookie", func(t *testing.T) {
		users := &mockUserService{
			withdrawFn: func(ctx context.Context, userID string) error {
				return model.NewUserNotFoundError()
			},
		}
		w := httptest.NewRecorder()
		newTestUserHandler(nil, nil, users).Withdraw(w, authedRequest(http.MethodDelete, "/api/users/me", "", "me"))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if c := findResponseCookie(w, middleware.SessionCookieName); c != nil {
			t.Errorf("cookie must not be touched on failure, got %+v", c)
		}
	})
}
