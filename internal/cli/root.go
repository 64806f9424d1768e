package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	// 全局参数
	configPath string
	jsonOutput bool
	actorID    string
)

// rootCmd expoctl 根命令
var rootCmd = &cobra.Command{
	Use:     "expoctl",
	Version: "dev",
	Short:   "展会冲突引擎运维命令行",
	Long: `expoctl 直接连接引擎数据库执行运维操作：

  detect   对一个或全部展会执行冲突检测
  sweep    执行一次超期巡检
  migrate  执行或回滚数据库迁移
  token    为调试签发 Access Token`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion 设置版本号
func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出结果")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "expoctl", "记录在审计字段中的操作人")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

// printJSON 以缩进 JSON 输出
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化输出失败: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
