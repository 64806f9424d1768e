package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"expo-engine/backend/pkg/database"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "数据库迁移",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "执行全部未应用的迁移",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newDBApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sqlDB, err := a.db.DB()
		if err != nil {
			return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
		}
		return database.RunMigrations(sqlDB, a.logger)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "回滚迁移",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateSteps < 1 {
			return fmt.Errorf("--steps 必须 >= 1")
		}

		a, err := newDBApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sqlDB, err := a.db.DB()
		if err != nil {
			return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
		}
		return database.RollbackMigrations(sqlDB, migrateSteps, a.logger)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "回滚步数")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
