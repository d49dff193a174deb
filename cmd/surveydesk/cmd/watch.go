package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/events"
	"surveydesk-go/internal/logging"
	"surveydesk-go/internal/runtime"
)

type watchLine struct {
	Time    time.Time   `json:"time"`
	Kind    events.Kind `json:"kind"`
	Payload any         `json:"payload,omitempty"`
}

func newWatchCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print credential, language and account events until interrupted",
		Long: `Follows the credential store for writes made by other processes (for
example a signin in another terminal) and the config file for language
changes, printing one JSON line per event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), func(app *runtime.App) error {
				return runWatch(cmd.Context(), cmd.OutOrStdout(), app, o.configPath)
			})
		},
	}
}

func runWatch(ctx context.Context, out io.Writer, app *runtime.App, configPath string) error {
	var mu sync.Mutex
	enc := json.NewEncoder(out)
	emit := func(_ context.Context, ev events.Event) {
		line := watchLine{Time: ev.Timestamp, Kind: ev.Kind, Payload: ev.Payload}
		if ch, ok := ev.Payload.(credential.Change); ok {
			line.Payload = map[string]any{
				"slot":    ch.Slot,
				"present": ch.Present,
				"token":   logging.MaskToken(ch.Value),
			}
		}
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(line)
	}
	for _, kind := range events.Kinds() {
		id, err := app.Hub.Subscribe(kind, emit)
		if err != nil {
			return err
		}
		defer app.Hub.Unsubscribe(kind, id)
	}

	if err := app.WatchCredentials(); err != nil {
		return fmt.Errorf("credential watch: %w", err)
	}
	if m, err := config.NewManager(configPath); err == nil {
		if _, statErr := os.Stat(m.Path()); statErr == nil {
			if err := app.FollowConfig(m); err != nil {
				log.WithError(err).Warn("config watch unavailable")
			}
		}
	}

	log.WithField("backend", app.Config.Storage.Backend).Info("watching for changes; press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}
