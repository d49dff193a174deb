package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"surveydesk-go/internal/runtime"
	"surveydesk-go/internal/session"
)

func newBootstrapCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Obtain a visitor credential if none is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), func(app *runtime.App) error {
				res := app.Bootstrapper.Ensure(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Status, res.Reason)
				if res.Status == session.StatusFailed {
					return fmt.Errorf("visitor bootstrap failed: %s", res.Reason)
				}
				return nil
			})
		},
	}
}
