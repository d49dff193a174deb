package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/devserver"
)

type cliEnv struct {
	configPath string
	server     *devserver.Server
	devCfg     *config.Config
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	devCfg := config.Defaults()
	devCfg.DevServer.RateLimitRPS = 0
	srv, err := devserver.New(devCfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`api:
  base_url: %s
storage:
  backend: file
  path: %s
  watch: false
session:
  auto_bootstrap: false
`, ts.URL, filepath.Join(dir, "credentials.json"))
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return &cliEnv{configPath: path, server: srv, devCfg: devCfg}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBootstrapThenSkip(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run(t, "bootstrap")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ok:"), out)

	out, err = e.run(t, "bootstrap")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "skipped:"), out)
	assert.EqualValues(t, 1, e.server.Stats().ExchangeCalls)

	out, err = e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in: false")
	assert.Contains(t, out, "user     (none)")
	assert.NotContains(t, out, "visitor  (none)")
}

func TestSignInCallSignOut(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "signin", "--email", e.devCfg.DevServer.DemoEmail, "--password", "wrong")
	require.Error(t, err)

	out, err := e.run(t, "signin", "--email", e.devCfg.DevServer.DemoEmail, "--password", e.devCfg.DevServer.DemoPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as")

	out, err = e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in: true")
	assert.Contains(t, out, "subject="+e.devCfg.DevServer.DemoEmail)
	assert.Contains(t, out, "(valid)")

	out, err = e.run(t, "call", "post", "/api/AddMember", "--data", `{"email":"ana@example.com"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "ana@example.com"`)

	out, err = e.run(t, "call", "GET", "/api/GetMembers", "--key", "members")
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.com")

	out, err = e.run(t, "call", "DELETE", "/api/DeleteMember", "-q", "email=ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "204 (empty)\n", out)

	_, err = e.run(t, "signout")
	require.NoError(t, err)
	out, err = e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in: false")
	assert.Contains(t, out, "visitor  (none)")
}

func TestCallRejectsUnknownMethod(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "call", "TRACE", "/api/GetMembers")
	assert.ErrorContains(t, err, "unsupported method")

	_, err = e.run(t, "call", "GET")
	assert.Error(t, err)
}

func TestPrintClaims(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ana@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	token, err := expired.SignedString([]byte("k"))
	require.NoError(t, err)

	var buf bytes.Buffer
	printClaims(&buf, token)
	assert.Contains(t, buf.String(), "subject=ana@example.com")
	assert.Contains(t, buf.String(), "(expired)")

	buf.Reset()
	printClaims(&buf, "6f1c7f2e-9a43-4d2b-8f7e-3b2f1c0d9e8a")
	assert.Empty(t, buf.String())
}

func TestTracingSpansOneCommand(t *testing.T) {
	e := newCLIEnv(t)
	t.Setenv(config.EnvPrefix+"TRACING_ENDPOINT", "127.0.0.1:4317")

	root, opts := newRootCmd()
	var active bool
	root.AddCommand(&cobra.Command{
		Use: "noop",
		RunE: func(*cobra.Command, []string) error {
			active = opts.traceShutdown != nil
			return nil
		},
	})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", e.configPath, "noop"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.True(t, active)
	assert.Nil(t, opts.traceShutdown)
	assert.NoError(t, opts.shutdownTracing(context.Background()))
}
