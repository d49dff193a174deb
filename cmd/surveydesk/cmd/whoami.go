package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/logging"
	"surveydesk-go/internal/runtime"
)

func newWhoAmICmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show stored credentials and login state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), func(app *runtime.App) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "logged in: %t\n", app.Login.LoggedIn())
				for _, slot := range credential.Slots() {
					token, ok := app.Store.Get(cmd.Context(), slot)
					if !ok {
						fmt.Fprintf(out, "%-8s (none)\n", slot)
						continue
					}
					fmt.Fprintf(out, "%-8s %s", slot, logging.MaskToken(token))
					printClaims(out, token)
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

// printClaims shows subject and expiry for JWT credentials. The signature
// is not checked; only the backend can do that.
func printClaims(w io.Writer, token string) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return
	}
	if claims.Subject != "" {
		fmt.Fprintf(w, " subject=%s", claims.Subject)
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		state := "valid"
		if time.Now().After(exp) {
			state = "expired"
		}
		fmt.Fprintf(w, " expires=%s (%s)", exp.UTC().Format(time.RFC3339), state)
	}
}
