package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
	"expo-engine/backend/internal/repository"
	pkgerrors "expo-engine/backend/pkg/errors"
)

// ── Mock EventRepository ──

type mockEventRepo struct {
	events map[string]*model.Event
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{events: make(map[string]*model.Event)}
}

func (m *mockEventRepo) Create(_ context.Context, event *model.Event) error {
	if event.EventID == "" {
		event.EventID = "evt-" + event.Name
	}
	m.events[event.EventID] = event
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	if e, ok := m.events[id]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventRepo) ListIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ── Mock StandRepository ──

type mockStandRepo struct {
	stands map[string]*model.Stand
}

func newMockStandRepo() *mockStandRepo {
	return &mockStandRepo{stands: make(map[string]*model.Stand)}
}

func (m *mockStandRepo) Create(_ context.Context, stand *model.Stand) error {
	if stand.StandID == "" {
		stand.StandID = "stand-" + stand.Code
	}
	m.stands[stand.StandID] = stand
	return nil
}

func (m *mockStandRepo) GetByID(_ context.Context, id string) (*model.Stand, error) {
	if s, ok := m.stands[id]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStandRepo) TransitionStatus(_ context.Context, id, from, to, updatedBy string) error {
	s, ok := m.stands[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if s.Status != from {
		return pkgerrors.ErrOptimisticLock
	}
	s.Status = to
	s.UpdatedBy = &updatedBy
	return nil
}

// ── Mock CompanyRepository ──

type mockCompanyRepo struct {
	companies map[string]*model.Company
}

func newMockCompanyRepo() *mockCompanyRepo {
	return &mockCompanyRepo{companies: make(map[string]*model.Company)}
}

func (m *mockCompanyRepo) Create(_ context.Context, company *model.Company) error {
	if company.CompanyID == "" {
		company.CompanyID = "co-" + company.Name
	}
	m.companies[company.CompanyID] = company
	return nil
}

func (m *mockCompanyRepo) GetByID(_ context.Context, id string) (*model.Company, error) {
	if c, ok := m.companies[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCompanyRepo) ListByIDs(_ context.Context, ids []string) ([]model.Company, error) {
	var result []model.Company
	for _, id := range ids {
		if c, ok := m.companies[id]; ok {
			result = append(result, *c)
		}
	}
	return result, nil
}

// ── Mock ActivityRepository ──

type mockActivityRepo struct {
	activities map[string]*model.Activity
	listErr    error
}

func newMockActivityRepo() *mockActivityRepo {
	return &mockActivityRepo{activities: make(map[string]*model.Activity)}
}

func (m *mockActivityRepo) Create(_ context.Context, activity *model.Activity) error {
	if activity.ActivityID == "" {
		activity.ActivityID = "act-" + activity.Title
	}
	if activity.Version == 0 {
		activity.Version = 1
	}
	m.activities[activity.ActivityID] = activity
	return nil
}

func (m *mockActivityRepo) GetByID(_ context.Context, id string) (*model.Activity, error) {
	if a, ok := m.activities[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockActivityRepo) sorted(filter func(*model.Activity) bool) []model.Activity {
	result := make([]model.Activity, 0)
	for _, a := range m.activities {
		if filter(a) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ActivityID < result[j].ActivityID })
	return result
}

func (m *mockActivityRepo) ListByEvent(_ context.Context, eventID string) ([]model.Activity, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(func(a *model.Activity) bool { return a.EventID == eventID }), nil
}

func (m *mockActivityRepo) ListByIDs(_ context.Context, eventID string, ids []string) ([]model.Activity, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return m.sorted(func(a *model.Activity) bool { return a.EventID == eventID && wanted[a.ActivityID] }), nil
}

func (m *mockActivityRepo) ListBooked(_ context.Context, eventID string) ([]model.Activity, error) {
	result := m.sorted(func(a *model.Activity) bool {
		return a.EventID == eventID && a.Status != engine.ActivityCancelled && a.StartTime != nil && a.EndTime != nil
	})
	sort.SliceStable(result, func(i, j int) bool { return result[i].StartTime.Before(*result[j].StartTime) })
	return result, nil
}

func (m *mockActivityRepo) UpdateSchedule(_ context.Context, activity *model.Activity, start, end time.Time, updatedBy string) error {
	stored, ok := m.activities[activity.ActivityID]
	if !ok || stored.Version != activity.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.StartTime, stored.EndTime = &start, &end
	stored.Status = engine.ActivityScheduled
	stored.Version++
	stored.UpdatedBy = &updatedBy
	activity.StartTime, activity.EndTime = &start, &end
	activity.Status = engine.ActivityScheduled
	activity.Version = stored.Version
	return nil
}

// ── Mock AssignmentRequestRepository ──

type mockAssignmentRequestRepo struct {
	requests  map[string]*model.AssignmentRequest
	companies *mockCompanyRepo
}

func newMockAssignmentRequestRepo(companies *mockCompanyRepo) *mockAssignmentRequestRepo {
	return &mockAssignmentRequestRepo{requests: make(map[string]*model.AssignmentRequest), companies: companies}
}

func (m *mockAssignmentRequestRepo) Create(_ context.Context, req *model.AssignmentRequest) error {
	for _, r := range m.requests {
		if r.CompanyID == req.CompanyID && r.EventID == req.EventID {
			return fmt.Errorf("duplicate key value violates unique constraint \"uk_request_company_event\"")
		}
	}
	if req.RequestID == "" {
		req.RequestID = "req-" + req.CompanyID
	}
	if req.Version == 0 {
		req.Version = 1
	}
	m.requests[req.RequestID] = req
	return nil
}

func (m *mockAssignmentRequestRepo) withCompany(r *model.AssignmentRequest) model.AssignmentRequest {
	cp := *r
	if c, ok := m.companies.companies[r.CompanyID]; ok {
		cp.Company = c
	}
	return cp
}

func (m *mockAssignmentRequestRepo) GetByID(_ context.Context, id string) (*model.AssignmentRequest, error) {
	if r, ok := m.requests[id]; ok {
		cp := m.withCompany(r)
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAssignmentRequestRepo) ListByEvent(_ context.Context, eventID string, statuses []string) ([]model.AssignmentRequest, error) {
	allowed := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	result := make([]model.AssignmentRequest, 0)
	for _, r := range m.requests {
		if r.EventID != eventID || (len(statuses) > 0 && !allowed[r.Status]) {
			continue
		}
		result = append(result, m.withCompany(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RequestID < result[j].RequestID })
	return result, nil
}

func (m *mockAssignmentRequestRepo) ListByCompany(_ context.Context, companyID string) ([]model.AssignmentRequest, error) {
	var result []model.AssignmentRequest
	for _, r := range m.requests {
		if r.CompanyID == companyID {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *mockAssignmentRequestRepo) UpdateScore(_ context.Context, id string, score float64) error {
	r, ok := m.requests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	r.PriorityScore = score
	return nil
}

func (m *mockAssignmentRequestRepo) UpdateOutcome(_ context.Context, req *model.AssignmentRequest, status string, assignedStandID *string, updatedBy string) error {
	stored, ok := m.requests[req.RequestID]
	if !ok || stored.Version != req.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.Status = status
	stored.AssignedStandID = assignedStandID
	stored.Version++
	stored.UpdatedBy = &updatedBy
	req.Status = status
	req.AssignedStandID = assignedStandID
	req.Version = stored.Version
	return nil
}

// ── Mock ScheduleConflictRepository ──
// 以 ActiveKey 模拟唯一索引，以 status+version 模拟比较交换

type mockScheduleConflictRepo struct {
	conflicts map[string]*model.ScheduleConflict
	nextID    int
	createErr error
}

func newMockScheduleConflictRepo() *mockScheduleConflictRepo {
	return &mockScheduleConflictRepo{conflicts: make(map[string]*model.ScheduleConflict)}
}

func (m *mockScheduleConflictRepo) CreateIfAbsent(_ context.Context, conflict *model.ScheduleConflict) (bool, error) {
	if m.createErr != nil {
		return false, m.createErr
	}
	if conflict.ActiveKey != nil {
		for _, c := range m.conflicts {
			if c.ActiveKey != nil && *c.ActiveKey == *conflict.ActiveKey {
				return false, nil
			}
		}
	}
	m.nextID++
	if conflict.ConflictID == "" {
		conflict.ConflictID = fmt.Sprintf("sc-%03d", m.nextID)
	}
	conflict.Version = 1
	conflict.CreatedAt = time.Now()
	cp := *conflict
	m.conflicts[conflict.ConflictID] = &cp
	return true, nil
}

func (m *mockScheduleConflictRepo) FindActive(_ context.Context, pairKey string, kind engine.ConflictKind) (*model.ScheduleConflict, error) {
	key := engine.ActiveConflictKey(pairKey, kind)
	for _, c := range m.conflicts {
		if c.ActiveKey != nil && *c.ActiveKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScheduleConflictRepo) GetByID(_ context.Context, id string) (*model.ScheduleConflict, error) {
	if c, ok := m.conflicts[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScheduleConflictRepo) sorted(filter func(*model.ScheduleConflict) bool) []model.ScheduleConflict {
	result := make([]model.ScheduleConflict, 0)
	for _, c := range m.conflicts {
		if filter(c) {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ConflictID < result[j].ConflictID })
	return result
}

func (m *mockScheduleConflictRepo) ListActiveByEvent(_ context.Context, eventID string) ([]model.ScheduleConflict, error) {
	return m.sorted(func(c *model.ScheduleConflict) bool {
		return c.EventID == eventID && !engine.IsTerminal(c.Status)
	}), nil
}

func (m *mockScheduleConflictRepo) ListByEvent(_ context.Context, eventID string, filter repository.ConflictFilter) ([]model.ScheduleConflict, int64, error) {
	all := m.sorted(func(c *model.ScheduleConflict) bool {
		return c.EventID == eventID &&
			(filter.Status == "" || c.Status == filter.Status) &&
			(filter.Kind == "" || c.Kind == filter.Kind) &&
			(filter.Severity == "" || c.Severity == filter.Severity)
	})
	total := int64(len(all))
	if filter.Limit > 0 {
		start := min(filter.Offset, len(all))
		end := min(start+filter.Limit, len(all))
		all = all[start:end]
	}
	return all, total, nil
}

func (m *mockScheduleConflictRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]model.ScheduleConflict, error) {
	result := m.sorted(func(c *model.ScheduleConflict) bool {
		return !engine.IsTerminal(c.Status) && c.Deadline != nil && c.Deadline.Before(now) &&
			!c.ConflictLifecycle.ToEngine().SweepSettled()
	})
	sort.SliceStable(result, func(i, j int) bool { return result[i].Deadline.Before(*result[j].Deadline) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockScheduleConflictRepo) CountByEvent(_ context.Context, eventID string) ([]repository.ConflictCount, error) {
	type key struct{ kind, severity, status string }
	counts := make(map[key]int64)
	for _, c := range m.conflicts {
		if c.EventID == eventID {
			counts[key{c.Kind, c.Severity, c.Status}]++
		}
	}
	result := make([]repository.ConflictCount, 0, len(counts))
	for k, v := range counts {
		result = append(result, repository.ConflictCount{Kind: k.kind, Severity: k.severity, Status: k.status, Total: v})
	}
	return result, nil
}

func (m *mockScheduleConflictRepo) UpdateLifecycle(_ context.Context, conflict *model.ScheduleConflict, next model.ConflictLifecycle, updatedBy string) error {
	stored, ok := m.conflicts[conflict.ConflictID]
	if !ok || stored.Status != conflict.Status || stored.Version != conflict.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.ConflictLifecycle = next
	stored.Version++
	stored.UpdatedBy = &updatedBy
	if engine.IsTerminal(next.Status) {
		stored.ActiveKey = nil
	}
	conflict.ConflictLifecycle = next
	conflict.Version = stored.Version
	conflict.ActiveKey = stored.ActiveKey
	return nil
}

// ── Mock StandConflictRepository ──

type mockStandConflictRepo struct {
	conflicts map[string]*model.StandConflict
	nextID    int
}

func newMockStandConflictRepo() *mockStandConflictRepo {
	return &mockStandConflictRepo{conflicts: make(map[string]*model.StandConflict)}
}

func (m *mockStandConflictRepo) CreateIfAbsent(_ context.Context, conflict *model.StandConflict) (bool, error) {
	if conflict.ActiveKey != nil {
		for _, c := range m.conflicts {
			if c.ActiveKey != nil && *c.ActiveKey == *conflict.ActiveKey {
				return false, nil
			}
		}
	}
	m.nextID++
	if conflict.StandConflictID == "" {
		conflict.StandConflictID = fmt.Sprintf("stc-%03d", m.nextID)
	}
	conflict.Version = 1
	conflict.CreatedAt = time.Now()
	cp := *conflict
	m.conflicts[conflict.StandConflictID] = &cp
	return true, nil
}

func (m *mockStandConflictRepo) FindActiveByStand(_ context.Context, standID string) (*model.StandConflict, error) {
	for _, c := range m.conflicts {
		if c.ActiveKey != nil && *c.ActiveKey == standID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStandConflictRepo) GetByID(_ context.Context, id string) (*model.StandConflict, error) {
	if c, ok := m.conflicts[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStandConflictRepo) ListByEvent(_ context.Context, eventID string, filter repository.ConflictFilter) ([]model.StandConflict, int64, error) {
	result := make([]model.StandConflict, 0)
	for _, c := range m.conflicts {
		if c.EventID == eventID && (filter.Status == "" || c.Status == filter.Status) {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StandConflictID < result[j].StandConflictID })
	return result, int64(len(result)), nil
}

func (m *mockStandConflictRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]model.StandConflict, error) {
	result := make([]model.StandConflict, 0)
	for _, c := range m.conflicts {
		if !engine.IsTerminal(c.Status) && c.Deadline != nil && c.Deadline.Before(now) &&
			!c.ConflictLifecycle.ToEngine().SweepSettled() {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Deadline.Before(*result[j].Deadline) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockStandConflictRepo) UpdateResolution(_ context.Context, conflict *model.StandConflict, next model.ConflictLifecycle, assignedCompanyID *string, compensated []string, updatedBy string) error {
	stored, ok := m.conflicts[conflict.StandConflictID]
	if !ok || stored.Status != conflict.Status || stored.Version != conflict.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.ConflictLifecycle = next
	stored.AssignedCompanyID = assignedCompanyID
	stored.CompensatedCompanies = compensated
	stored.Version++
	stored.UpdatedBy = &updatedBy
	if engine.IsTerminal(next.Status) {
		stored.ActiveKey = nil
	}
	cp := *stored
	*conflict = cp
	return nil
}

// ── Mock ResolutionHistoryRepository ──

type mockHistoryRepo struct {
	entries []model.ResolutionHistoryEntry
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{}
}

func (m *mockHistoryRepo) Append(_ context.Context, entries []model.ResolutionHistoryEntry) error {
	for i := range entries {
		if entries[i].ReversesSeq != nil {
			for _, e := range m.entries {
				if e.ReversesSeq != nil && *e.ReversesSeq == *entries[i].ReversesSeq {
					return fmt.Errorf("duplicate key value violates unique constraint \"uk_history_reverses\"")
				}
			}
		}
		entries[i].Seq = int64(len(m.entries) + 1)
		entries[i].CreatedAt = time.Now()
		m.entries = append(m.entries, entries[i])
	}
	return nil
}

func (m *mockHistoryRepo) GetBySeq(_ context.Context, seq int64) (*model.ResolutionHistoryEntry, error) {
	for _, e := range m.entries {
		if e.Seq == seq {
			cp := e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockHistoryRepo) ListByConflict(_ context.Context, standConflictID string) ([]model.ResolutionHistoryEntry, error) {
	result := make([]model.ResolutionHistoryEntry, 0)
	for _, e := range m.entries {
		if e.StandConflictID == standConflictID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockHistoryRepo) IsReversed(_ context.Context, seq int64) (bool, error) {
	for _, e := range m.entries {
		if e.ReversesSeq != nil && *e.ReversesSeq == seq {
			return true, nil
		}
	}
	return false, nil
}

// ── Mock DetectionLocker ──

type mockLocker struct {
	held    map[string]string
	lockErr error
	unlocks int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]string)}
}

func (m *mockLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if m.lockErr != nil {
		return "", false, m.lockErr
	}
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	token := "tok-" + key
	m.held[key] = token
	return token, true, nil
}

func (m *mockLocker) Unlock(_ context.Context, key, token string) error {
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.unlocks++
	return nil
}

// ── 聚合 ──

type mockRepos struct {
	events    *mockEventRepo
	stands    *mockStandRepo
	companies *mockCompanyRepo
	acts      *mockActivityRepo
	requests  *mockAssignmentRequestRepo
	conflicts *mockScheduleConflictRepo
	standCfs  *mockStandConflictRepo
	history   *mockHistoryRepo
}

// newMockRepository 未设置 db，Transaction 直接以当前聚合执行
func newMockRepository() (*repository.Repository, *mockRepos) {
	companies := newMockCompanyRepo()
	m := &mockRepos{
		events:    newMockEventRepo(),
		stands:    newMockStandRepo(),
		companies: companies,
		acts:      newMockActivityRepo(),
		requests:  newMockAssignmentRequestRepo(companies),
		conflicts: newMockScheduleConflictRepo(),
		standCfs:  newMockStandConflictRepo(),
		history:   newMockHistoryRepo(),
	}
	repo := &repository.Repository{
		Event:             m.events,
		Stand:             m.stands,
		Company:           m.companies,
		Activity:          m.acts,
		AssignmentRequest: m.requests,
		ScheduleConflict:  m.conflicts,
		StandConflict:     m.standCfs,
		History:           m.history,
	}
	return repo, m
}
