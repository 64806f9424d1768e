package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"expo-engine/backend/internal/dto"
	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
)

// ── 测试辅助 ──

func setupTestExportService() (*exportService, *mockRepos) {
	repo, m := newMockRepository()
	svc := NewExportService(repo, zap.NewNop()).(*exportService)
	svc.now = func() time.Time { return fixedNow }
	return svc, m
}

// ── ExportConflicts 测试 ──

func TestExportService_ExportConflicts_EventNotFound(t *testing.T) {
	svc, _ := setupTestExportService()

	_, _, err := svc.ExportConflicts(context.Background(), "missing")
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("期望 ErrEventNotFound，实际: %v", err)
	}
}

func TestExportService_ExportConflicts_NoConflicts(t *testing.T) {
	svc, m := setupTestExportService()
	_ = m.events.Create(context.Background(), &model.Event{EventID: "evt-1", Name: "Expo 2026"})

	_, _, err := svc.ExportConflicts(context.Background(), "evt-1")
	if !errors.Is(err, ErrExportNoConflicts) {
		t.Errorf("期望 ErrExportNoConflicts，实际: %v", err)
	}
}

func TestExportService_ExportConflicts_Success(t *testing.T) {
	svc, m := setupTestExportService()
	ctx := context.Background()

	// 复用检测与登记流程准备数据
	_ = m.events.Create(ctx, &model.Event{EventID: "evt-1", Name: "Expo 2026"})
	seedHallOne(m)
	conflicts := NewConflictService(testEngineConfig(), svc.repo, nil, nil, zap.NewNop())
	if _, err := conflicts.DetectActivityConflicts(ctx, "evt-1", "coord-1"); err != nil {
		t.Fatalf("检测应成功: %v", err)
	}

	stands := NewStandConflictService(testEngineConfig(), svc.repo, nil, zap.NewNop())
	seedStandCompetition(m)
	if _, err := stands.PersistCandidate(ctx, "evt-1", &dto.PersistStandConflictRequest{StandID: "stand-s1"}, "coord-1"); err != nil {
		t.Fatalf("登记展位冲突应成功: %v", err)
	}

	buf, filename, err := svc.ExportConflicts(ctx, "evt-1")
	if err != nil {
		t.Fatalf("ExportConflicts 应成功: %v", err)
	}
	if filename != "conflictos_Expo 2026.xlsx" {
		t.Errorf("文件名不符，实际=%s", filename)
	}
	// Excel .xlsx 文件以 PK (0x504B) 开头
	if buf.Len() < 2 || buf.Bytes()[0] != 0x50 || buf.Bytes()[1] != 0x4B {
		t.Fatal("输出内容不是有效的 xlsx 文件格式（应以 PK 开头）")
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("读取导出文件失败: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("活动冲突")
	if err != nil {
		t.Fatalf("读取活动冲突 Sheet 失败: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("期望表头 + 2 行活动冲突，实际=%d", len(rows))
	}

	rows, err = f.GetRows("展位冲突")
	if err != nil {
		t.Fatalf("读取展位冲突 Sheet 失败: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("期望表头 + 1 行展位冲突，实际=%d", len(rows))
	}
	if !strings.Contains(rows[1][1], "Acme (60)") {
		t.Errorf("竞争企业列应包含评分，实际=%s", rows[1][1])
	}
}

// ── ExportScheduleICS 测试 ──

func TestExportService_ExportScheduleICS_NoSchedule(t *testing.T) {
	svc, m := setupTestExportService()
	_ = m.events.Create(context.Background(), &model.Event{EventID: "evt-1", Name: "Expo 2026"})
	_ = m.acts.Create(context.Background(), &model.Activity{
		ActivityID: "act-draft", EventID: "evt-1", Title: "Borrador", Status: engine.ActivityDraft, DurationMinutes: 30,
	})

	_, _, err := svc.ExportScheduleICS(context.Background(), "evt-1")
	if !errors.Is(err, ErrExportNoSchedule) {
		t.Errorf("期望 ErrExportNoSchedule，实际: %v", err)
	}
}

func TestExportService_ExportScheduleICS_Success(t *testing.T) {
	svc, m := setupTestExportService()
	ctx := context.Background()
	_ = m.events.Create(ctx, &model.Event{EventID: "evt-1", Name: "Expo 2026"})
	seedHallOne(m)

	buf, filename, err := svc.ExportScheduleICS(ctx, "evt-1")
	if err != nil {
		t.Fatalf("ExportScheduleICS 应成功: %v", err)
	}
	if filename != "programa_Expo 2026.ics" {
		t.Errorf("文件名不符，实际=%s", filename)
	}

	cal, err := ics.ParseCalendar(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("解析导出的日历失败: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("期望 2 个 VEVENT，实际=%d", len(events))
	}
	if events[0].Id() != "act-a@expo-engine" {
		t.Errorf("UID 应由活动 ID 派生，实际=%s", events[0].Id())
	}
	summary := events[0].GetProperty(ics.ComponentPropertySummary)
	if summary == nil || summary.Value != "Apertura" {
		t.Errorf("SUMMARY 应为活动标题")
	}
	start, err := events[0].GetStartAt()
	if err != nil || !start.Equal(*hourOn(9, 0)) {
		t.Errorf("DTSTART 应为 09:00 UTC，实际=%v err=%v", start, err)
	}
}
