package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePoolID string
	simulateSymbol string
	simulateAPY    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一个池的 APY 并触发告警流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePoolID == "" {
			return errors.New("--pool-id 必须提供")
		}
		if simulateAPY < 0 {
			return errors.New("--apy 不能为负数")
		}

		apy := decimal.NewFromFloat(simulateAPY)
		return getApp().SimulateAlert(cmd.Context(), simulatePoolID, simulateSymbol, apy)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePoolID, "pool-id", "", "模拟池的标识")
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "USDC", "模拟池的资产符号")
	simulateCmd.Flags().Float64Var(&simulateAPY, "apy", 0, "模拟 APY（百分比）")
}
