package logging

import (
	"bytes"
	"path/filepath"
	"testing"

	"surveydesk-go/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		status int
		hasErr bool
		want   string
	}{
		{0, true, "network_error"},
		{401, true, "http_401"},
		{403, true, "http_403"},
		{500, true, "http_5xx"},
		{404, true, "http_4xx"},
		{200, false, "ok"},
		{200, true, "error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorKind(tc.status, tc.hasErr), "status=%d err=%v", tc.status, tc.hasErr)
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "****(3)", MaskToken("abc"))
	assert.Equal(t, "abcd****(8)", MaskToken("abcdefgh"))
}

func TestSetupDebugUsesTextFormatter(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.Debug = true
	cfg.Security.LogFile = filepath.Join(t.TempDir(), "logs", "app.log")

	var buf bytes.Buffer
	require.NoError(t, SetupWithOutput(cfg, &buf))
	t.Cleanup(func() { _ = SetupWithOutput(nil, &bytes.Buffer{}) })

	assert.Equal(t, log.DebugLevel, log.GetLevel())
	log.Debug("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.FileExists(t, cfg.Security.LogFile)
}
