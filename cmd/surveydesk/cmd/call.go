package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"surveydesk-go/internal/runtime"
	"surveydesk-go/internal/upstream"
)

type callOptions struct {
	data    string
	key     string
	surface string
	query   map[string]string
}

func newCallCmd(o *rootOptions) *cobra.Command {
	co := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call METHOD ENDPOINT",
		Short: "Send an authenticated request to the API",
		Example: `  surveydesk call GET /api/GetMembers
  surveydesk call POST /api/AddMember --data '{"email":"ana@example.com"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(args[0])
			switch method {
			case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return fmt.Errorf("unsupported method %q", args[0])
			}
			return o.withApp(cmd.Context(), func(app *runtime.App) error {
				return co.run(cmd, app, method, args[1])
			})
		},
	}
	cmd.Flags().StringVarP(&co.data, "data", "d", "", "request body; JSON is sent as application/json")
	cmd.Flags().StringVar(&co.key, "key", "", "cancellation key")
	cmd.Flags().StringVar(&co.surface, "surface", "", "UI surface the request belongs to")
	cmd.Flags().StringToStringVarP(&co.query, "query", "q", nil, "query parameters (k=v)")
	return cmd
}

func (co *callOptions) run(cmd *cobra.Command, app *runtime.App, method, endpoint string) error {
	var body any
	if co.data != "" {
		if gjson.Valid(co.data) {
			body = json.RawMessage(co.data)
		} else {
			body = co.data
		}
	}
	opts := upstream.Options{CancelKey: co.key, SurfaceID: co.surface}
	if len(co.query) > 0 {
		opts.Query = url.Values{}
		for k, v := range co.query {
			opts.Query.Set(k, v)
		}
	}

	res, err := app.API.Do(cmd.Context(), method, endpoint, body, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch res.Kind {
	case upstream.BodyEmpty:
		fmt.Fprintf(out, "%d (empty)\n", res.Status)
	case upstream.BodyJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, res.Raw, "", "  "); err != nil {
			buf.Reset()
			buf.Write(res.Raw)
		}
		fmt.Fprintln(out, buf.String())
	default:
		fmt.Fprintln(out, res.Text())
	}
	return nil
}
