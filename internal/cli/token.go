package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/casino-floor/internal/utils"
)

func newTokenCmd(e *env) *cobra.Command {
	var (
		staffID  string
		role     string
		casinoID string
		ttl      time.Duration
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a staff access token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if staffID == "" {
				return fmt.Errorf("--staff is required")
			}
			if ttl <= 0 {
				ttl = e.cfg.AccessTTL()
			}
			tok, err := utils.NewAccessToken(e.cfg.JWTSecret, staffID, role, casinoID, ttl)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(tok)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "Staff member id (token subject)")
	cmd.Flags().StringVar(&role, "role", utils.RoleDealer, "Role: PIT_BOSS, SUPERVISOR or DEALER")
	cmd.Flags().StringVar(&casinoID, "casino", "", "Pin the token to one casino")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default ACCESS_TOKEN_TTL_MIN)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print token and expiry as JSON")
	return cmd
}
