package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"expo-engine/backend/internal/api/middleware"
	"expo-engine/backend/internal/dto"
	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/service"
	pkgerrors "expo-engine/backend/pkg/errors"
	"expo-engine/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock ConflictService ──

type mockConflictService struct {
	detectResult  *dto.DetectionResponse
	detectErr     error
	detectActor   string
	getResult     *dto.ConflictResponse
	getErr        error
	listResult    []dto.ConflictResponse
	listTotal     int64
	listReq       *dto.ConflictListRequest
	activeCalled  bool
	transitionErr error
	transitionReq *dto.TransitionRequest
	sweepResult   *dto.SweepResponse
}

func (m *mockConflictService) DetectActivityConflicts(_ context.Context, _ string, actorID string) (*dto.DetectionResponse, error) {
	m.detectActor = actorID
	return m.detectResult, m.detectErr
}
func (m *mockConflictService) Get(_ context.Context, _ string) (*dto.ConflictResponse, error) {
	return m.getResult, m.getErr
}
func (m *mockConflictService) ListByEvent(_ context.Context, _ string, req *dto.ConflictListRequest) ([]dto.ConflictResponse, int64, error) {
	m.listReq = req
	return m.listResult, m.listTotal, nil
}
func (m *mockConflictService) ListActive(_ context.Context, _ string) ([]dto.ConflictResponse, error) {
	m.activeCalled = true
	return m.listResult, nil
}
func (m *mockConflictService) Summary(_ context.Context, eventID string) (*dto.ConflictSummaryResponse, error) {
	return &dto.ConflictSummaryResponse{EventID: eventID}, nil
}
func (m *mockConflictService) Transition(_ context.Context, id string, req *dto.TransitionRequest, _ string) (*dto.ConflictResponse, error) {
	m.transitionReq = req
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	return &dto.ConflictResponse{ID: id}, nil
}
func (m *mockConflictService) EscalateExpired(_ context.Context) (*dto.SweepResponse, error) {
	return m.sweepResult, nil
}

// ── Mock StandConflictService ──

type mockStandConflictService struct {
	revertSeq int64
	revertErr error
}

func (m *mockStandConflictService) DetectStandConflicts(_ context.Context, eventID string) (*dto.StandCandidatesResponse, error) {
	return &dto.StandCandidatesResponse{EventID: eventID}, nil
}
func (m *mockStandConflictService) PersistCandidate(_ context.Context, _ string, req *dto.PersistStandConflictRequest, _ string) (*dto.StandConflictResponse, error) {
	return &dto.StandConflictResponse{StandID: req.StandID}, nil
}
func (m *mockStandConflictService) Get(_ context.Context, _ string) (*dto.StandConflictResponse, error) {
	return nil, service.ErrStandConflictNotFound
}
func (m *mockStandConflictService) ListByEvent(_ context.Context, _ string, _ *dto.StandConflictListRequest) ([]dto.StandConflictResponse, int64, error) {
	return []dto.StandConflictResponse{}, 0, nil
}
func (m *mockStandConflictService) Transition(_ context.Context, _ string, _ *dto.TransitionRequest, _ string) (*dto.StandConflictResponse, error) {
	return nil, fmt.Errorf("%w: 企业 co-x 不在冲突企业列表中", pkgerrors.ErrConstraintViolation)
}
func (m *mockStandConflictService) ListHistory(_ context.Context, _ string) ([]dto.HistoryEntryResponse, error) {
	return []dto.HistoryEntryResponse{}, nil
}
func (m *mockStandConflictService) RevertEntry(_ context.Context, seq int64, _ *dto.RevertHistoryRequest, _ string) (*dto.HistoryEntryResponse, error) {
	m.revertSeq = seq
	if m.revertErr != nil {
		return nil, m.revertErr
	}
	return &dto.HistoryEntryResponse{Seq: seq + 1, Reason: "reversion"}, nil
}

// ── Mock SchedulingService ──

type mockSchedulingService struct {
	slotsErr error
}

func (m *mockSchedulingService) GenerateSlots(_ context.Context, eventID string, _ *dto.GenerateSlotsRequest) (*engine.SlotSet, error) {
	if m.slotsErr != nil {
		return nil, m.slotsErr
	}
	return &engine.SlotSet{EventID: eventID}, nil
}
func (m *mockSchedulingService) AutoSchedule(_ context.Context, eventID string, req *dto.AutoScheduleRequest, _ string) (*dto.AutoScheduleResponse, error) {
	return &dto.AutoScheduleResponse{EventID: eventID, Persisted: !req.DryRun}, nil
}

// ── Mock PriorityService ──

type mockPriorityService struct{}

func (m *mockPriorityService) ComputePriorityScore(_ context.Context, companyID string) (*dto.PriorityScoreResponse, error) {
	if companyID == "missing" {
		return nil, service.ErrCompanyNotFound
	}
	return &dto.PriorityScoreResponse{CompanyID: companyID, Score: 60}, nil
}
func (m *mockPriorityService) RefreshRequestScores(_ context.Context, eventID string) (*dto.RefreshScoresResponse, error) {
	return &dto.RefreshScoresResponse{EventID: eventID}, nil
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportConflicts(_ context.Context, _ string) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}
func (m *mockExportService) ExportScheduleICS(_ context.Context, _ string) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func setAuth(c *gin.Context) {
	c.Set(middleware.ActorIDKey, "coord-1")
	c.Set(middleware.RoleKey, "coordinador")
}

// withAuth 模拟认证中间件已注入操作人
func withAuth(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		setAuth(c)
		h(c)
	}
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func serve(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

// ═══════════════════════════════════════════════════════════
// 错误映射
// ═══════════════════════════════════════════════════════════

func TestHandleServiceError_Mapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"not found", service.ErrConflictNotFound, http.StatusNotFound, codeNotFound},
		{"export empty", service.ErrExportNoSchedule, http.StatusNotFound, codeNotFound},
		{"invalid transition", fmt.Errorf("%w: x", pkgerrors.ErrInvalidTransition), http.StatusConflict, codeInvalidTransition},
		{"optimistic lock", pkgerrors.ErrOptimisticLock, http.StatusConflict, codeOptimisticLock},
		{"detection running", service.ErrDetectionInProgress, http.StatusConflict, codeDetectionInProgress},
		{"constraint", service.ErrEntryAlreadyReversed, http.StatusUnprocessableEntity, codeConstraintViolation},
		{"computation", fmt.Errorf("%w: 日期格式错误", pkgerrors.ErrComputation), http.StatusUnprocessableEntity, codeComputation},
		{"unknown", errors.New("pq: connection reset"), http.StatusInternalServerError, 50000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { handleServiceError(c, tc.err) })
			w := serve(r, "GET", "/x", nil)

			if w.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, w.Code)
			}
			if resp := parseResponse(w); resp.Code != tc.code {
				t.Errorf("expected code %d, got %d", tc.code, resp.Code)
			}
		})
	}
}

func TestHandleServiceError_InternalHidesDetails(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { handleServiceError(c, errors.New("pq: password authentication failed")) })
	w := serve(r, "GET", "/x", nil)

	if strings.Contains(w.Body.String(), "password") {
		t.Error("500 响应不应暴露内部错误信息")
	}
}

// ═══════════════════════════════════════════════════════════
// ConflictHandler Tests
// ═══════════════════════════════════════════════════════════

func TestConflictHandler_Detect_Success(t *testing.T) {
	mock := &mockConflictService{detectResult: &dto.DetectionResponse{EventID: "evt-1", TotalFound: 2, NewlyCreated: 2}}
	h := NewConflictHandler(mock)

	r := gin.New()
	r.POST("/events/:id/conflicts/detect", withAuth(h.Detect))
	w := serve(r, "POST", "/events/evt-1/conflicts/detect", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.detectActor != "coord-1" {
		t.Errorf("操作人应来自认证上下文，实际=%s", mock.detectActor)
	}
}

func TestConflictHandler_Detect_Unauthenticated(t *testing.T) {
	h := NewConflictHandler(&mockConflictService{})

	r := gin.New()
	r.POST("/events/:id/conflicts/detect", h.Detect)
	w := serve(r, "POST", "/events/evt-1/conflicts/detect", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestConflictHandler_Detect_InProgress(t *testing.T) {
	h := NewConflictHandler(&mockConflictService{detectErr: service.ErrDetectionInProgress})

	r := gin.New()
	r.POST("/events/:id/conflicts/detect", withAuth(h.Detect))
	w := serve(r, "POST", "/events/evt-1/conflicts/detect", nil)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestConflictHandler_List_Paged(t *testing.T) {
	mock := &mockConflictService{listResult: []dto.ConflictResponse{{ID: "sc-1"}}, listTotal: 41}
	h := NewConflictHandler(mock)

	r := gin.New()
	r.GET("/events/:id/conflicts", h.List)
	w := serve(r, "GET", "/events/evt-1/conflicts?kind=ubicacion&page=2&page_size=20", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.listReq == nil || mock.listReq.Kind != "ubicacion" {
		t.Errorf("查询参数应传入 service，实际=%+v", mock.listReq)
	}

	var body struct {
		Data response.PageData `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Pagination.TotalPages != 3 || body.Data.Pagination.Page != 2 {
		t.Errorf("分页信息不符: %+v", body.Data.Pagination)
	}
}

func TestConflictHandler_List_InvalidFilter(t *testing.T) {
	h := NewConflictHandler(&mockConflictService{})

	r := gin.New()
	r.GET("/events/:id/conflicts", h.List)
	w := serve(r, "GET", "/events/evt-1/conflicts?severity=extrema", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestConflictHandler_List_Active(t *testing.T) {
	mock := &mockConflictService{listResult: []dto.ConflictResponse{}}
	h := NewConflictHandler(mock)

	r := gin.New()
	r.GET("/events/:id/conflicts", h.List)
	w := serve(r, "GET", "/events/evt-1/conflicts?active=true", nil)

	if w.Code != http.StatusOK || !mock.activeCalled {
		t.Errorf("active=true 应调用 ListActive，status=%d", w.Code)
	}
}

func TestConflictHandler_Get_NotFound(t *testing.T) {
	h := NewConflictHandler(&mockConflictService{getErr: service.ErrConflictNotFound})

	r := gin.New()
	r.GET("/conflicts/:id", h.Get)
	w := serve(r, "GET", "/conflicts/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestConflictHandler_Transition(t *testing.T) {
	cases := []struct {
		name   string
		body   interface{}
		err    error
		status int
	}{
		{"success", dto.TransitionRequest{Action: "asignar", ReviewerID: "rev-1"}, nil, http.StatusOK},
		{"unknown action rejected by binding", map[string]string{"action": "borrar"}, nil, http.StatusBadRequest},
		{"illegal transition", dto.TransitionRequest{Action: "aprobar"}, fmt.Errorf("%w: x", pkgerrors.ErrInvalidTransition), http.StatusConflict},
		{"missing field", dto.TransitionRequest{Action: "ignorar"}, fmt.Errorf("%w: 缺少必填参数 justification", pkgerrors.ErrConstraintViolation), http.StatusUnprocessableEntity},
		{"stale version", dto.TransitionRequest{Action: "asignar", ReviewerID: "rev-1"}, pkgerrors.ErrOptimisticLock, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewConflictHandler(&mockConflictService{transitionErr: tc.err})
			r := gin.New()
			r.POST("/conflicts/:id/transitions", withAuth(h.Transition))
			w := serve(r, "POST", "/conflicts/sc-1/transitions", jsonBody(tc.body))

			if w.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════
// StandConflictHandler Tests
// ═══════════════════════════════════════════════════════════

func TestStandConflictHandler_Persist(t *testing.T) {
	h := NewStandConflictHandler(&mockStandConflictService{})

	r := gin.New()
	r.POST("/events/:id/stand-conflicts", withAuth(h.Persist))

	w := serve(r, "POST", "/events/evt-1/stand-conflicts", jsonBody(dto.PersistStandConflictRequest{StandID: "stand-s1"}))
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}

	w = serve(r, "POST", "/events/evt-1/stand-conflicts", jsonBody(map[string]string{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少 stand_id 期望 400, got %d", w.Code)
	}
}

func TestStandConflictHandler_Transition_InvalidWinner(t *testing.T) {
	h := NewStandConflictHandler(&mockStandConflictService{})

	r := gin.New()
	r.POST("/stand-conflicts/:id/transitions", withAuth(h.Transition))
	w := serve(r, "POST", "/stand-conflicts/stc-1/transitions", jsonBody(dto.TransitionRequest{
		Action: "resolver", ResolutionAction: "x", Description: "y", AssignedCompanyID: "co-x",
	}))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestStandConflictHandler_Revert(t *testing.T) {
	mock := &mockStandConflictService{}
	h := NewStandConflictHandler(mock)

	r := gin.New()
	r.POST("/history/:seq/revert", withAuth(h.Revert))

	w := serve(r, "POST", "/history/7/revert", jsonBody(dto.RevertHistoryRequest{Reason: "企业撤回"}))
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
	if mock.revertSeq != 7 {
		t.Errorf("期望 seq=7，实际=%d", mock.revertSeq)
	}

	w = serve(r, "POST", "/history/abc/revert", jsonBody(dto.RevertHistoryRequest{Reason: "企业撤回"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("非法 seq 期望 400, got %d", w.Code)
	}

	mock.revertErr = service.ErrEntryAlreadyReversed
	w = serve(r, "POST", "/history/7/revert", jsonBody(dto.RevertHistoryRequest{Reason: "企业撤回"}))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("重复撤销期望 422, got %d", w.Code)
	}
}

func TestStandConflictHandler_Get_NotFound(t *testing.T) {
	h := NewStandConflictHandler(&mockStandConflictService{})

	r := gin.New()
	r.GET("/stand-conflicts/:id", h.Get)
	w := serve(r, "GET", "/stand-conflicts/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// SchedulingHandler / PriorityHandler Tests
// ═══════════════════════════════════════════════════════════

func TestSchedulingHandler_GenerateSlots(t *testing.T) {
	mock := &mockSchedulingService{}
	h := NewSchedulingHandler(mock)

	r := gin.New()
	r.POST("/events/:id/slots", h.GenerateSlots)

	w := serve(r, "POST", "/events/evt-1/slots", jsonBody(dto.GenerateSlotsRequest{StartDate: "2026-03-10", EndDate: "2026-03-12"}))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	w = serve(r, "POST", "/events/evt-1/slots", jsonBody(map[string]interface{}{"start_date": "2026-03-10", "end_date": "2026-03-12", "slot_minutes": 2}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("slot_minutes 过小期望 400, got %d", w.Code)
	}

	mock.slotsErr = fmt.Errorf("%w: 开始日期格式错误", pkgerrors.ErrComputation)
	w = serve(r, "POST", "/events/evt-1/slots", jsonBody(dto.GenerateSlotsRequest{StartDate: "10/03/2026", EndDate: "2026-03-12"}))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("日期格式错误期望 422, got %d", w.Code)
	}
}

func TestSchedulingHandler_AutoSchedule_RequiresActivities(t *testing.T) {
	h := NewSchedulingHandler(&mockSchedulingService{})

	r := gin.New()
	r.POST("/events/:id/auto-schedule", withAuth(h.AutoSchedule))

	w := serve(r, "POST", "/events/evt-1/auto-schedule", jsonBody(dto.AutoScheduleRequest{
		Slots: dto.GenerateSlotsRequest{StartDate: "2026-03-10", EndDate: "2026-03-10"},
	}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少 activity_ids 期望 400, got %d", w.Code)
	}
}

func TestPriorityHandler_GetScore(t *testing.T) {
	h := NewPriorityHandler(&mockPriorityService{})

	r := gin.New()
	r.GET("/companies/:id/priority-score", h.GetScore)

	if w := serve(r, "GET", "/companies/co-a/priority-score", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := serve(r, "GET", "/companies/missing/priority-score", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_ExportConflicts_Success(t *testing.T) {
	h := NewExportHandler(&mockExportService{
		buf:      bytes.NewBufferString("PK-fake-xlsx"),
		filename: "conflictos_Expo 2026.xlsx",
	})

	r := gin.New()
	r.GET("/events/:id/export/conflicts", h.ExportConflicts)
	w := serve(r, "GET", "/events/evt-1/export/conflicts", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != contentTypeXLSX {
		t.Errorf("Content-Type 不符: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "conflictos_Expo+2026.xlsx") {
		t.Errorf("Content-Disposition 不符: %s", cd)
	}
}

func TestExportHandler_ExportScheduleICS_Empty(t *testing.T) {
	h := NewExportHandler(&mockExportService{err: service.ErrExportNoSchedule})

	r := gin.New()
	r.GET("/events/:id/export/schedule.ics", h.ExportScheduleICS)
	w := serve(r, "GET", "/events/evt-1/export/schedule.ics", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
