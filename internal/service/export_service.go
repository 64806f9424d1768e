package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"expo-engine/backend/internal/engine"
	"expo-engine/backend/internal/model"
	"expo-engine/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoConflicts  = errors.New("该展会暂无冲突记录")
	ErrExportNoSchedule   = errors.New("该展会暂无已排定的活动")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

const icsProductID = "-//expo-engine//programa//ES"

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response：
//   - ExportConflicts：活动冲突与展位冲突各一个 Sheet
//   - ExportScheduleICS：已排定活动导出为 iCalendar (RFC 5545)
type ExportService interface {
	ExportConflicts(ctx context.Context, eventID string) (*bytes.Buffer, string, error)
	ExportScheduleICS(ctx context.Context, eventID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger, now: time.Now}
}

// ═══════════════════════════════════════════════════════════
// ExportConflicts，冲突报表导出为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "活动冲突"：类型 | 严重程度 | 活动 A | 活动 B | 描述 | 状态 | 优先级 | 紧急 | 期限 | 处理人
//   - Sheet "展位冲突"：展位 | 竞争企业（评分） | 获胜企业 | 状态 | 期限
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportConflicts(ctx context.Context, eventID string) (*bytes.Buffer, string, error) {
	// 1. 查询展会
	event, err := s.repo.Event.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrEventNotFound
		}
		s.logger.Error("查询展会失败", zap.Error(err))
		return nil, "", err
	}

	// 2. 查询两类冲突（不分页）
	scheduleConflicts, _, err := s.repo.ScheduleConflict.ListByEvent(ctx, eventID, repository.ConflictFilter{})
	if err != nil {
		s.logger.Error("查询活动冲突失败", zap.Error(err))
		return nil, "", err
	}
	standConflicts, _, err := s.repo.StandConflict.ListByEvent(ctx, eventID, repository.ConflictFilter{})
	if err != nil {
		s.logger.Error("查询展位冲突失败", zap.Error(err))
		return nil, "", err
	}
	if len(scheduleConflicts) == 0 && len(standConflicts) == 0 {
		return nil, "", ErrExportNoConflicts
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	urgentStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	now := s.now()

	// 活动冲突
	sheet := "活动冲突"
	idx, _ := f.NewSheet(sheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"类型", "严重程度", "活动 A", "活动 B", "描述", "状态", "优先级", "紧急", "期限", "处理人"}
	widths := []float64{10, 10, 38, 38, 50, 14, 8, 6, 22, 20}
	writeHeader(f, sheet, headers, widths, headerStyle)

	row := 2
	for i := range scheduleConflicts {
		c := &scheduleConflicts[i]
		values := []interface{}{
			c.Kind, c.Severity, c.ActivityAID, c.ActivityBID, c.Description,
			c.Status, c.Priority, yesNo(c.IsUrgent), formatOptional(c.Deadline), derefOr(c.ReviewerID, "-"),
		}
		for col, v := range values {
			f.SetCellValue(sheet, cell(colName(col), row), v)
		}
		if c.IsUrgent || c.ToEngine().IsExpired(now) {
			f.SetCellStyle(sheet, cell("A", row), cell(colName(len(headers)-1), row), urgentStyle)
		}
		row++
	}

	// 展位冲突
	sheet = "展位冲突"
	f.NewSheet(sheet)
	headers = []string{"展位", "竞争企业（评分）", "获胜企业", "补偿企业", "状态", "期限"}
	widths = []float64{38, 60, 38, 38, 14, 22}
	writeHeader(f, sheet, headers, widths, headerStyle)

	row = 2
	for i := range standConflicts {
		c := &standConflicts[i]
		claims := make([]string, 0, len(c.Companies))
		for _, claim := range c.Claims() {
			claims = append(claims, fmt.Sprintf("%s (%.0f)", claim.Name, claim.PriorityScore))
		}
		values := []interface{}{
			c.StandID,
			strings.Join(claims, "; "),
			derefOr(c.AssignedCompanyID, "-"),
			strings.Join(c.CompensatedCompanies, "; "),
			c.Status,
			formatOptional(c.Deadline),
		}
		for col, v := range values {
			f.SetCellValue(sheet, cell(colName(col), row), v)
		}
		row++
	}

	// 4. 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("conflictos_%s.xlsx", event.Name)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportScheduleICS，已排定活动导出为 iCalendar
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportScheduleICS(ctx context.Context, eventID string) (*bytes.Buffer, string, error) {
	event, err := s.repo.Event.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrEventNotFound
		}
		s.logger.Error("查询展会失败", zap.Error(err))
		return nil, "", err
	}

	activities, err := s.repo.Activity.ListBooked(ctx, eventID)
	if err != nil {
		s.logger.Error("查询已排定活动失败", zap.Error(err))
		return nil, "", err
	}
	if len(activities) == 0 {
		return nil, "", ErrExportNoSchedule
	}

	cal := buildCalendar(event, activities, s.now())

	buf := bytes.NewBufferString(cal.Serialize())
	if buf.Len() == 0 {
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("programa_%s.ics", event.Name)
	return buf, filename, nil
}

// buildCalendar 每个活动一个 VEVENT，UID 取活动 ID 保证重复导入幂等
func buildCalendar(event *model.Event, activities []model.Activity, now time.Time) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetName(event.Name)

	for i := range activities {
		a := &activities[i]
		if a.StartTime == nil || a.EndTime == nil {
			continue
		}
		vevent := cal.AddEvent(a.ActivityID + "@expo-engine")
		vevent.SetDtStampTime(now)
		vevent.SetStartAt(a.StartTime.UTC())
		vevent.SetEndAt(a.EndTime.UTC())
		vevent.SetSummary(a.Title)
		vevent.SetDescription(fmt.Sprintf("%s · %s", a.ActivityType, a.Modality))
		if a.Location != nil {
			vevent.SetLocation(*a.Location)
		}
		if a.Status == engine.ActivityCancelled {
			vevent.SetStatus(ics.ObjectStatusCancelled)
		} else {
			vevent.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return cal
}

// ── 辅助函数 ──

func writeHeader(f *excelize.File, sheet string, headers []string, widths []float64, style int) {
	for i, h := range headers {
		col := colName(i)
		f.SetColWidth(sheet, col, col, widths[i])
		f.SetCellValue(sheet, cell(col, 1), h)
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(headers)-1), 1), style)
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
