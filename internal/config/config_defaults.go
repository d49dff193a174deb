package config

import "surveydesk-go/internal/constants"

// Default bootstrap key material, matching the deployed backend.
const defaultBootstrapKey = "Srv3yD3sk#2019!k"

// Defaults returns a configuration usable against a local dev server.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:          "http://localhost:8080",
			CredentialHeader: constants.DefaultCredentialHeader,
			SessionPath:      constants.DefaultSessionPath,
			LoginPath:        constants.DefaultLoginPath,
		},
		Session: SessionConfig{
			BootstrapKey:        defaultBootstrapKey,
			HandshakeTimeoutSec: int(constants.DefaultHandshakeTimeout.Seconds()),
			AutoBootstrap:       true,
		},
		Storage: StorageConfig{
			Backend:     "file",
			Path:        "~/.surveydesk/credentials.json",
			RedisPrefix: "surveydesk:",
			Watch:       true,
		},
		Cookie: CookieConfig{
			Enabled: true,
			TTLDays: 365,
		},
		Transport: TransportConfig{
			DialTimeoutSec:         int(constants.DefaultDialTimeout.Seconds()),
			TLSHandshakeTimeoutSec: int(constants.DefaultTLSHandshakeTimeout.Seconds()),
		},
		Tracing: TracingConfig{
			Insecure:    true,
			SampleRatio: 1,
		},
		UI: UIConfig{
			Language: "en",
		},
		DevServer: DevServerConfig{
			Addr:           ":8080",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			JWTSecret:      "surveydesk-dev-secret",
			DemoEmail:      "demo@surveydesk.local",
			DemoPassword:   "demo-password",
		},
	}
}
