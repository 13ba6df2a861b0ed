package command

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, ctx, done, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer done()
		return app.Serve(ctx)
	},
}
