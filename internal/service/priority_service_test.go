package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
)

func setupTestPriorityService() (*priorityService, *mockRepos) {
	repo, m := newMockRepository()
	svc := NewPriorityService(repo, zap.NewNop()).(*priorityService)
	svc.now = func() time.Time { return fixedNow }
	return svc, m
}

func TestPriorityService_ComputePriorityScore(t *testing.T) {
	svc, m := setupTestPriorityService()
	first := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	_ = m.companies.Create(context.Background(), &model.Company{
		CompanyID:          "co-a",
		Name:               "Acme",
		Participations:     8,
		AverageRating:      floatp(4.5),
		FirstParticipation: &first,
	})

	resp, err := svc.ComputePriorityScore(context.Background(), "co-a")
	if err != nil {
		t.Fatalf("评分应成功: %v", err)
	}
	// 25（上限）+ 45 + 5 年*2
	if resp.Score != 80 {
		t.Errorf("期望评分 80，实际=%v", resp.Score)
	}
	if resp.SeniorityYears != 5 {
		t.Errorf("期望资历 5 年，实际=%d", resp.SeniorityYears)
	}
}

func TestPriorityService_ComputePriorityScore_NewCompany(t *testing.T) {
	svc, m := setupTestPriorityService()
	_ = m.companies.Create(context.Background(), &model.Company{CompanyID: "co-new", Name: "Nueva"})

	resp, err := svc.ComputePriorityScore(context.Background(), "co-new")
	if err != nil {
		t.Fatalf("评分应成功: %v", err)
	}
	if resp.Score != 0 || resp.SeniorityYears != 0 {
		t.Errorf("无历史企业评分应为 0，实际 score=%v years=%d", resp.Score, resp.SeniorityYears)
	}
}

func TestPriorityService_ComputePriorityScore_NotFound(t *testing.T) {
	svc, _ := setupTestPriorityService()

	_, err := svc.ComputePriorityScore(context.Background(), "missing")
	if !errors.Is(err, ErrCompanyNotFound) {
		t.Errorf("期望 ErrCompanyNotFound，实际: %v", err)
	}
}

func TestPriorityService_RefreshRequestScores(t *testing.T) {
	svc, m := setupTestPriorityService()
	seedStandCompetition(m)
	ctx := context.Background()

	// co-d 已是最新评分，不应计入 updated
	m.requests.requests["req-co-d"].PriorityScore = 15
	// 已驳回的申请不参与
	m.requests.requests["req-co-c"].Status = engine.RequestRejected
	// 企业缺失的申请计入 errors
	_ = m.requests.Create(ctx, &model.AssignmentRequest{
		RequestID: "req-ghost", CompanyID: "co-ghost", EventID: "evt-1", Status: engine.RequestRequested,
	})

	resp, err := svc.RefreshRequestScores(ctx, "evt-1")
	if err != nil {
		t.Fatalf("刷新应成功: %v", err)
	}
	if resp.Updated != 2 {
		t.Errorf("期望更新 2 条（co-a、co-b），实际=%d", resp.Updated)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].ItemID != "req-ghost" {
		t.Errorf("期望 req-ghost 记入 errors，实际=%+v", resp.Errors)
	}
	if got := m.requests.requests["req-co-a"].PriorityScore; got != 60 {
		t.Errorf("co-a 评分期望 60，实际=%v", got)
	}
	if got := m.requests.requests["req-co-c"].PriorityScore; got != 0 {
		t.Errorf("已驳回申请评分不应被刷新，实际=%v", got)
	}
}

func TestPriorityService_RefreshRequestScores_EventNotFound(t *testing.T) {
	svc, _ := setupTestPriorityService()

	_, err := svc.RefreshRequestScores(context.Background(), "missing")
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("期望 ErrEventNotFound，实际: %v", err)
	}
}
