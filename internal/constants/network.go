package constants

import "time"

// HTTP client connection pool settings for the dashboard API.
const (
	BaseMaxIdleConns        = 64
	BaseMaxIdleConnsPerHost = 16
	BaseIdleConnTimeout     = 90 * time.Second

	// DefaultKeepAlive keeps idle API connections warm between screens.
	DefaultKeepAlive = 30 * time.Second
)

// Credential header. The backend reads either spelling, so both are sent.
const (
	DefaultCredentialHeader = "token"
)

// Default API surface paths.
const (
	DefaultSessionPath = "/api/GetSessionId"
	DefaultLoginPath   = "/api/Login"
	RootPath           = "/"
)
