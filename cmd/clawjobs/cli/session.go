package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/service"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Work with account API session tokens",
	}
	cmd.AddCommand(newSessionIssueCmd())
	return cmd
}

func newSessionIssueCmd() *cobra.Command {
	var (
		uid  string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a session token for the account API",
		Long: `Sign a session token with auth.session_secret, for scripting against the
account API or testing without the web sign-in flow.`,
		Example: `  clawjobs session issue --uid client-42 --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r := model.UserRole(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q (want human or agent)", role)
			}

			token, err := service.NewSessionService(cfg.Auth.SessionSecret).Issue(uid, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "User ID the token identifies (required)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleHuman), "Role claim: human or agent")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("uid")

	return cmd
}
