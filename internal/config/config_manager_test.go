package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"surveydesk-go/internal/events"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, lang string) {
	t.Helper()
	body := "storage:\n  backend: memory\nui:\n  language: " + lang + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestManagerReloadDispatchesLanguageChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "en")

	cm, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(cm.Close)

	hub := events.NewHub()
	cm.SetDispatcher(hub)

	var mu sync.Mutex
	var got []string
	_, err = hub.Subscribe(events.LanguageChanged, func(_ context.Context, evt events.Event) {
		mu.Lock()
		got = append(got, evt.Payload.(string))
		mu.Unlock()
	})
	require.NoError(t, err)

	writeConfig(t, path, "fr")
	cm.reload()

	require.Equal(t, "fr", cm.Config().UI.Language)
	mu.Lock()
	require.Equal(t, []string{"fr"}, got)
	mu.Unlock()

	// same language: callbacks run, no language event
	cm.reload()
	mu.Lock()
	require.Len(t, got, 1)
	mu.Unlock()
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "en")

	cm, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(cm.Close)

	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: nope\n"), 0o600))
	cm.reload()
	require.Equal(t, "memory", cm.Config().Storage.Backend)
}

func TestManagerWatchPicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "en")

	cm, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(cm.Close)
	cm.debounce = 10 * time.Millisecond

	changed := make(chan *Config, 4)
	cm.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	require.NoError(t, cm.Watch())

	writeConfig(t, path, "es")

	select {
	case c := <-changed:
		require.Equal(t, "es", c.UI.Language)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
