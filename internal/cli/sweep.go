package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "执行一次超期巡检",
	Long: `扫描全部超期未处理的冲突：
处理中的冲突强制升级到 engine.escalation_target，其余超期冲突追加超期通知。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		result, err := a.svc.Conflict.EscalateExpired(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, result)
		}
		fmt.Fprintf(out, "已升级 %d 条，已标记超期 %d 条\n", result.Escalated, result.Flagged)
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  ✗ %s: %s\n", e.ItemID, e.Reason)
		}
		return nil
	},
}
