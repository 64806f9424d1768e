package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"expo-engine/backend/internal/dto"
)

var (
	detectEventID     string
	detectAll         bool
	detectConcurrency int
)

// activityDetector 单个展会的活动冲突检测
type activityDetector interface {
	DetectActivityConflicts(ctx context.Context, eventID, actorID string) (*dto.DetectionResponse, error)
}

// eventDetection 单个展会的检测结果
type eventDetection struct {
	EventID string                 `json:"event_id"`
	Result  *dto.DetectionResponse `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "对展会执行活动冲突检测",
	Long: `对指定展会（--event）或全部展会（--all）执行活动冲突检测。

--all 时按 --concurrency 并发执行，单个展会失败不影响其他展会。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (detectEventID == "") == !detectAll {
			return errors.New("必须且只能指定 --event 或 --all 之一")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		ids := []string{detectEventID}
		if detectAll {
			ids, err = a.repo.Event.ListIDs(ctx)
			if err != nil {
				return fmt.Errorf("查询展会列表失败: %w", err)
			}
		}

		results, err := detectEvents(ctx, a.svc.Conflict, ids, actorID, detectConcurrency)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), results)
		}
		return printDetections(cmd.OutOrStdout(), results)
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectEventID, "event", "", "展会 ID")
	detectCmd.Flags().BoolVar(&detectAll, "all", false, "检测全部展会")
	detectCmd.Flags().IntVar(&detectConcurrency, "concurrency", 4, "--all 时的并发数")
}

// detectEvents 按并发上限逐个展会检测，结果顺序与 ids 一致
// 单个展会的业务错误记录在结果中；仅 ctx 取消时返回错误
func detectEvents(ctx context.Context, d activityDetector, ids []string, actor string, limit int) ([]eventDetection, error) {
	if limit < 1 {
		limit = 1
	}

	results := make([]eventDetection, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := d.DetectActivityConflicts(gctx, id, actor)
			results[i] = eventDetection{EventID: id, Result: res}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func printDetections(w io.Writer, results []eventDetection) error {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			fmt.Fprintf(w, "✗ %s: %s\n", r.EventID, r.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s: 发现 %d 条，新建 %d 条", r.EventID, r.Result.TotalFound, r.Result.NewlyCreated)
		if n := len(r.Result.Errors); n > 0 {
			fmt.Fprintf(w, "，%d 条写入失败", n)
		}
		fmt.Fprintln(w)
	}

	if failed > 0 {
		return fmt.Errorf("%d 个展会检测失败", failed)
	}
	return nil
}
