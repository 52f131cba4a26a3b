package cycle

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/cyclelog/internal/model"
	"github.com/hitoshi/cyclelog/internal/repository"
)

// --- インメモリストア ---

// memStore はテスト用のインメモリ永続化層。
// cycles削除時にcycle_daysを連鎖削除し、WithOwnerLockは所有者単位で直列化する。
type memStore struct {
	mu     sync.Mutex
	cycles map[string]*model.Cycle
	days   map[string]*model.DayReading

	lockMu     sync.Mutex
	ownerLocks map[string]*sync.Mutex

	// テストから注入するエラー
	createDayErr  error
	failOnDateErr map[civil.Date]error
}

func newMemStore() *memStore {
	return &memStore{
		cycles:        map[string]*model.Cycle{},
		days:          map[string]*model.DayReading{},
		ownerLocks:    map[string]*sync.Mutex{},
		failOnDateErr: map[civil.Date]error{},
	}
}

func (s *memStore) cycleRepo() *memCycles { return &memCycles{s: s} }
func (s *memStore) dayRepo() *memDays     { return &memDays{s: s} }

func copyCycle(c *model.Cycle) *model.Cycle {
	cp := *c
	if c.EndDate != nil {
		end := *c.EndDate
		cp.EndDate = &end
	}
	return &cp
}

func copyReading(r *model.DayReading) *model.DayReading {
	cp := *r
	return &cp
}

// put はテストの前提データとしてサイクルを直接登録する。
func (s *memStore) put(c *model.Cycle) *model.Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, len(s.cycles), time.UTC)
	}
	s.cycles[c.ID] = copyCycle(c)
	return c
}

// putReading はテストの前提データとして日次記録を直接登録する。
func (s *memStore) putReading(r *model.DayReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[r.ID] = copyReading(r)
}

func (s *memStore) openCycles(ownerID string) []*model.Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*model.Cycle
	for _, c := range s.cycles {
		if c.OwnerID == ownerID && c.EndDate == nil {
			open = append(open, copyCycle(c))
		}
	}
	return open
}

func (s *memStore) readingsAt(cycleID string, date civil.Date) []*model.DayReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DayReading
	for _, r := range s.days {
		if r.CycleID == cycleID && r.Date == date {
			out = append(out, copyReading(r))
		}
	}
	return out
}

func (s *memStore) WithOwnerLock(ctx context.Context, ownerID string, fn func(repository.CycleRepository, repository.DayReadingRepository) error) error {
	s.lockMu.Lock()
	l, ok := s.ownerLocks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.ownerLocks[ownerID] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(s.cycleRepo(), s.dayRepo())
}

// --- CycleRepository ---

type memCycles struct{ s *memStore }

func (m *memCycles) FindByID(ctx context.Context, id string) (*model.Cycle, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.cycles[id]; ok {
		return copyCycle(c), nil
	}
	return nil, nil
}

func (m *memCycles) FindOpenByOwner(ctx context.Context, ownerID string) (*model.Cycle, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var best *model.Cycle
	for _, c := range m.s.cycles {
		if c.OwnerID == ownerID && c.EndDate == nil && (best == nil || c.StartDate.After(best.StartDate)) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyCycle(best), nil
}

// ListCovering は並び順を保証しない（Locator側の並べ替えを検証するため）。
func (m *memCycles) ListCovering(ctx context.Context, ownerID string, date civil.Date) ([]*model.Cycle, error) {
	if err := m.s.failOnDateErr[date]; err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.Cycle
	for _, c := range m.s.cycles {
		if c.OwnerID == ownerID && c.Covers(date) {
			out = append(out, copyCycle(c))
		}
	}
	return out, nil
}

func (m *memCycles) ListByOwner(ctx context.Context, ownerID string) ([]*model.Cycle, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.Cycle
	for _, c := range m.s.cycles {
		if c.OwnerID == ownerID {
			out = append(out, copyCycle(c))
		}
	}
	return out, nil
}

func (m *memCycles) Create(ctx context.Context, c *model.Cycle) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.cycles[c.ID] = copyCycle(c)
	return nil
}

func (m *memCycles) Close(ctx context.Context, id string, endDate civil.Date) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.cycles[id]
	if !ok {
		return model.NewCycleNotFoundError(id)
	}
	c.EndDate = &endDate
	return nil
}

func (m *memCycles) Delete(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.cycles[id]; !ok {
		return model.NewCycleNotFoundError(id)
	}
	delete(m.s.cycles, id)
	for rid, r := range m.s.days {
		if r.CycleID == id {
			delete(m.s.days, rid)
		}
	}
	return nil
}

func (m *memCycles) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, c := range m.s.cycles {
		if c.OwnerID != ownerID {
			continue
		}
		delete(m.s.cycles, id)
		for rid, r := range m.s.days {
			if r.CycleID == id {
				delete(m.s.days, rid)
			}
		}
		n++
	}
	return n, nil
}

// --- DayReadingRepository ---

type memDays struct{ s *memStore }

func (m *memDays) FindByID(ctx context.Context, id string) (*model.DayReading, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r, ok := m.s.days[id]; ok {
		return copyReading(r), nil
	}
	return nil, nil
}

func (m *memDays) FindByCycleAndDate(ctx context.Context, cycleID string, date civil.Date) (*model.DayReading, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.days {
		if r.CycleID == cycleID && r.Date == date {
			return copyReading(r), nil
		}
	}
	return nil, nil
}

func (m *memDays) ListByCycle(ctx context.Context, cycleID string) ([]*model.DayReading, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.DayReading
	for _, r := range m.s.days {
		if r.CycleID == cycleID {
			out = append(out, copyReading(r))
		}
	}
	return out, nil
}

func (m *memDays) ListByOwner(ctx context.Context, ownerID string) ([]*model.DayReading, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.DayReading
	for _, r := range m.s.days {
		if c, ok := m.s.cycles[r.CycleID]; ok && c.OwnerID == ownerID {
			out = append(out, copyReading(r))
		}
	}
	return out, nil
}

func (m *memDays) Create(ctx context.Context, r *model.DayReading) error {
	if m.s.createDayErr != nil {
		return m.s.createDayErr
	}
	if err := m.s.failOnDateErr[r.Date]; err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.days {
		if existing.CycleID == r.CycleID && existing.Date == r.Date {
			return repository.ErrReadingExists
		}
	}
	m.s.days[r.ID] = copyReading(r)
	return nil
}

func (m *memDays) UpdateFields(ctx context.Context, id string, patch model.ReadingPatch) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.days[id]
	if !ok {
		return model.NewReadingNotFoundError(id)
	}
	if patch.Hormone != nil {
		r.Hormone = *patch.Hormone
	}
	if patch.Intercourse != nil {
		r.Intercourse = *patch.Intercourse
	}
	return nil
}

func (m *memDays) Delete(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.days[id]; !ok {
		return model.NewReadingNotFoundError(id)
	}
	delete(m.s.days, id)
	return nil
}

var (
	_ repository.CycleRepository      = (*memCycles)(nil)
	_ repository.DayReadingRepository = (*memDays)(nil)
	_ repository.OwnerTransactor      = (*memStore)(nil)
)

// --- テストヘルパー ---

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *civil.Date {
	d := date(s)
	return &d
}

func hormone(h model.HormoneReading) *model.HormoneReading { return &h }

func boolPtr(b bool) *bool { return &b }

// fakeAuth は許可された(actor, target)の組のみを通すAuthorizer。
type fakeAuth struct {
	grants map[[2]string]bool
	calls  int
}

func newFakeAuth(pairs ...[2]string) *fakeAuth {
	a := &fakeAuth{grants: map[[2]string]bool{}}
	for _, p := range pairs {
		a.grants[p] = true
	}
	return a
}

func (a *fakeAuth) Authorize(ctx context.Context, actorID, targetID string) error {
	a.calls++
	if actorID == targetID || a.grants[[2]string{actorID, targetID}] {
		return nil
	}
	return model.NewForbiddenError()
}
