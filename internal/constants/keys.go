package constants

import "time"

// Persisted credential keys. Durable store keys and cookie names share spelling
// so the two channels can be inspected side by side.
const (
	UserTokenKey    = "userToken"
	VisitorTokenKey = "visitorToken"

	// LegacyTokenKey 旧版单凭证存储键（仅迁移时读取一次）
	LegacyTokenKey = "t"
	// LegacyTokenCookie 旧版单凭证 cookie 名
	LegacyTokenCookie = "token"
)

// CookieTTL is the lifetime of a mirrored credential cookie.
const CookieTTL = 365 * 24 * time.Hour

// CookiePath scopes mirrored cookies to the whole site.
const CookiePath = "/"
