package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"expo-engine/backend/pkg/jwt"
)

var tokenRole string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发调试用 Access Token",
	Long: `使用 auth.jwt_secret 为 --actor 签发 Access Token，
有效期取 auth.access_token_ttl。仅用于本地调试与联调。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(actorID, tokenRole)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"actor_id":     actorID,
				"role":         tokenRole,
				"access_token": token,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", "coordinador", "角色（admin / coordinador / viewer）")
}
