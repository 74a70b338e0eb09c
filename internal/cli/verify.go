package cli

import (
	"github.com/spf13/cobra"

	"apy-alerts/internal/app"
)

var (
	verifyPoolID string
	verifyAsset  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Cross-check a pool's APY against the on-chain Aave supply rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.VerifyOptions{
			PoolID: verifyPoolID,
			Asset:  verifyAsset,
		}
		return getApp().Verify(cmd.Context(), opts)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPoolID, "pool-id", "", "Upstream pool identifier")
	verifyCmd.Flags().StringVar(&verifyAsset, "asset", "", "Reserve asset address (0x...)")
}
