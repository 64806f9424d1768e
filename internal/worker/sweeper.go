package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"expo-engine/backend/internal/dto"
)

// ExpirySweeper 执行一次超期巡检
type ExpirySweeper interface {
	EscalateExpired(ctx context.Context) (*dto.SweepResponse, error)
}

// Sweeper 周期性超期巡检
type Sweeper struct {
	svc      ExpirySweeper
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper 创建 Sweeper；interval <= 0 时取 15 分钟
func NewSweeper(svc ExpirySweeper, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Start 启动后台巡检，重复调用无副作用
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)

	s.logger.Info("超期巡检已启动", zap.Duration("interval", s.interval))
}

// Stop 停止巡检并等待进行中的一轮结束
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("超期巡检已停止")
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一轮巡检，错误只记录不中断循环
func (s *Sweeper) RunOnce(ctx context.Context) {
	result, err := s.svc.EscalateExpired(ctx)
	if err != nil {
		s.logger.Error("超期巡检失败", zap.Error(err))
		return
	}
	if result.Escalated > 0 || result.Flagged > 0 || len(result.Errors) > 0 {
		s.logger.Info("超期巡检完成",
			zap.Int("escalated", result.Escalated),
			zap.Int("flagged", result.Flagged),
			zap.Int("errors", len(result.Errors)),
		)
	}
}
