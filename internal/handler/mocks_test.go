package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/middleware"
	"github.com/hitoshi/cyclelog/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://idp.example.com/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

type mockCycleService struct {
	openCycleFn     func(ctx context.Context, actorID, targetID string, start civil.Date) (*model.Cycle, error)
	upsertDayFn     func(ctx context.Context, actorID, targetID string, date civil.Date, patch model.ReadingPatch) (*model.DayReading, error)
	upsertRangeFn   func(ctx context.Context, actorID, targetID string, start, end civil.Date, patch model.ReadingPatch) (model.RangeResult, error)
	listCyclesFn    func(ctx context.Context, actorID, targetID string) ([]*model.FilledCycle, error)
	getCycleFn      func(ctx context.Context, actorID, cycleID string) (*model.FilledCycle, error)
	analyticsFn     func(ctx context.Context, actorID, targetID string) (*model.Analytics, error)
	deleteCycleFn   func(ctx context.Context, actorID, cycleID string) error
	deleteReadingFn func(ctx context.Context, actorID, readingID string) error
	exportFn        func(ctx context.Context, actorID, targetID string, w io.Writer) error
}

func (m *mockCycleService) OpenCycle(ctx context.Context, actorID, targetID string, start civil.Date) (*model.Cycle, error) {
	if m.openCycleFn != nil {
		return m.openCycleFn(ctx, actorID, targetID, start)
	}
	return &model.Cycle{ID: "cycle-new", OwnerID: actorID, StartDate: start}, nil
}

func (m *mockCycleService) UpsertDay(ctx context.Context, actorID, targetID string, date civil.Date, patch model.ReadingPatch) (*model.DayReading, error) {
	if m.upsertDayFn != nil {
		return m.upsertDayFn(ctx, actorID, targetID, date, patch)
	}
	return &model.DayReading{ID: "reading-1", CycleID: "cycle-1", Date: date}, nil
}

func (m *mockCycleService) UpsertRange(ctx context.Context, actorID, targetID string, start, end civil.Date, patch model.ReadingPatch) (model.RangeResult, error) {
	if m.upsertRangeFn != nil {
		return m.upsertRangeFn(ctx, actorID, targetID, start, end, patch)
	}
	return model.RangeResult{}, nil
}

func (m *mockCycleService) ListCycles(ctx context.Context, actorID, targetID string) ([]*model.FilledCycle, error) {
	if m.listCyclesFn != nil {
		return m.listCyclesFn(ctx, actorID, targetID)
	}
	return nil, nil
}

func (m *mockCycleService) GetCycle(ctx context.Context, actorID, cycleID string) (*model.FilledCycle, error) {
	if m.getCycleFn != nil {
		return m.getCycleFn(ctx, actorID, cycleID)
	}
	return nil, model.NewCycleNotFoundError(cycleID)
}

func (m *mockCycleService) Analytics(ctx context.Context, actorID, targetID string) (*model.Analytics, error) {
	if m.analyticsFn != nil {
		return m.analyticsFn(ctx, actorID, targetID)
	}
	return &model.Analytics{}, nil
}

func (m *mockCycleService) DeleteCycle(ctx context.Context, actorID, cycleID string) error {
	if m.deleteCycleFn != nil {
		return m.deleteCycleFn(ctx, actorID, cycleID)
	}
	return nil
}

func (m *mockCycleService) DeleteReading(ctx context.Context, actorID, readingID string) error {
	if m.deleteReadingFn != nil {
		return m.deleteReadingFn(ctx, actorID, readingID)
	}
	return nil
}

func (m *mockCycleService) Export(ctx context.Context, actorID, targetID string, w io.Writer) error {
	if m.exportFn != nil {
		return m.exportFn(ctx, actorID, targetID, w)
	}
	return nil
}

type mockShareService struct {
	listVisibleToFn func(ctx context.Context, actorID string) ([]string, error)
	setShareFn      func(ctx context.Context, ownerID, grantee string) (*model.User, error)
	clearShareFn    func(ctx context.Context, ownerID string) error
}

func (m *mockShareService) ListVisibleTo(ctx context.Context, actorID string) ([]string, error) {
	if m.listVisibleToFn != nil {
		return m.listVisibleToFn(ctx, actorID)
	}
	return []string{actorID}, nil
}

func (m *mockShareService) SetShare(ctx context.Context, ownerID, grantee string) (*model.User, error) {
	if m.setShareFn != nil {
		return m.setShareFn(ctx, ownerID, grantee)
	}
	return &model.User{ID: grantee}, nil
}

func (m *mockShareService) ClearShare(ctx context.Context, ownerID string) error {
	if m.clearShareFn != nil {
		return m.clearShareFn(ctx, ownerID)
	}
	return nil
}

type mockDataClearer struct {
	clearAllFn func(ctx context.Context, ownerID string) (int64, error)
}

func (m *mockDataClearer) ClearAll(ctx context.Context, ownerID string) (int64, error) {
	if m.clearAllFn != nil {
		return m.clearAllFn(ctx, ownerID)
	}
	return 0, nil
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// --- ヘルパー ---

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

// authedRequest はセッションミドルウェア通過後のリクエストを作る。
func authedRequest(method, target, body, userID string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}
