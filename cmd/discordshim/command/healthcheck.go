package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// healthCheckCmd 适合作为容器的 HEALTHCHECK：成功退出码为 0，否则为 1。
var healthCheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running relay end to end through the control channel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ctx, done, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := app.HealthCheck(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}
