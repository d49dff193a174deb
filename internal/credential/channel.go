package credential

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/storage"
)

// Channel is one place a credential is persisted.
type Channel interface {
	Name() string
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// DurableChannel persists credentials in a storage backend. It is the
// source of truth for reads.
type DurableChannel struct {
	kv storage.KV
}

func NewDurableChannel(kv storage.KV) *DurableChannel {
	return &DurableChannel{kv: kv}
}

func (d *DurableChannel) Name() string { return "durable" }

func (d *DurableChannel) Load(ctx context.Context, key string) (string, bool, error) {
	v, err := d.kv.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (d *DurableChannel) Save(ctx context.Context, key, value string) error {
	return d.kv.Set(ctx, key, value)
}

func (d *DurableChannel) Remove(ctx context.Context, key string) error {
	return d.kv.Delete(ctx, key)
}

// NewCookieJar returns a jar using the public suffix list, suitable for
// sharing between the cookie mirror and the dispatcher's http.Client.
func NewCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// CookieChannel mirrors credentials into cookies for the API origin.
type CookieChannel struct {
	jar  http.CookieJar
	base *url.URL
	ttl  time.Duration
	now  func() time.Time
}

func NewCookieChannel(jar http.CookieJar, base *url.URL, ttl time.Duration) *CookieChannel {
	if ttl <= 0 {
		ttl = constants.CookieTTL
	}
	return &CookieChannel{jar: jar, base: base, ttl: ttl, now: time.Now}
}

func (c *CookieChannel) Name() string { return "cookie" }

func (c *CookieChannel) Load(_ context.Context, name string) (string, bool, error) {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value, true, nil
		}
	}
	return "", false, nil
}

func (c *CookieChannel) Save(_ context.Context, name, value string) error {
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:    name,
		Value:   value,
		Path:    constants.CookiePath,
		Expires: c.now().Add(c.ttl),
	}})
	return nil
}

func (c *CookieChannel) Remove(_ context.Context, name string) error {
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:   name,
		Path:   constants.CookiePath,
		MaxAge: -1,
	}})
	return nil
}
