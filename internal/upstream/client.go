package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/upstream/strategy"
)

// Navigator moves the UI to a path. The dispatcher sends "/" after a 401.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// CredentialClearer is the write side the dispatcher needs on 401.
type CredentialClearer interface {
	Clear(ctx context.Context, slot credential.Slot) error
}

// Options tune a single call.
type Options struct {
	// CancelKey deduplicates calls: a new call with the same key cancels the
	// previous one.
	CancelKey string
	// SurfaceID groups the call with others from the same UI surface.
	// Without CancelKey, a unique key is generated for the call.
	SurfaceID string
	// OnLoadingChange is called with true before the request and with false
	// once it settles, whatever the outcome.
	OnLoadingChange func(loading bool)
	Query           url.Values
	Headers         http.Header
}

// Client is the authenticated request dispatcher.
type Client struct {
	base      *url.URL
	header    string
	http      *http.Client
	selector  *strategy.Selector
	store     CredentialClearer
	registry  *Registry
	navigator Navigator
}

// New creates a dispatcher for cfg's API. The http client has no cookie jar
// until WithHTTPClient or WithJar installs one.
func New(cfg *config.Config, selector *strategy.Selector, store CredentialClearer) *Client {
	header := strings.TrimSpace(cfg.API.CredentialHeader)
	if header == "" {
		header = constants.DefaultCredentialHeader
	}
	return &Client{
		base:     cfg.BaseURL(),
		header:   header,
		http:     NewHTTPClient(cfg, nil),
		selector: selector,
		store:    store,
		registry: NewRegistry(),
	}
}

// WithHTTPClient replaces the underlying http client.
func (c *Client) WithHTTPClient(h *http.Client) *Client { c.http = h; return c }

// WithJar installs a cookie jar on the underlying http client.
func (c *Client) WithJar(jar http.CookieJar) *Client { c.http.Jar = jar; return c }

// WithNavigator sets the navigator notified on 401.
func (c *Client) WithNavigator(n Navigator) *Client { c.navigator = n; return c }

// WithRegistry shares a cancellation registry between clients.
func (c *Client) WithRegistry(r *Registry) *Client { c.registry = r; return c }

// Registry returns the cancellation registry.
func (c *Client) Registry() *Registry { return c.registry }

// Selector returns the credential selector.
func (c *Client) Selector() *strategy.Selector { return c.selector }

func (c *Client) Get(ctx context.Context, endpoint string, opts Options) (*Result, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, opts)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any, opts Options) (*Result, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body, opts)
}

func (c *Client) Put(ctx context.Context, endpoint string, body any, opts Options) (*Result, error) {
	return c.Do(ctx, http.MethodPut, endpoint, body, opts)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts Options) (*Result, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, body, opts)
}

func (c *Client) Delete(ctx context.Context, endpoint string, opts Options) (*Result, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, opts)
}

// CancelRequest aborts the call registered under key.
func (c *Client) CancelRequest(key string) bool {
	return c.registry.Cancel(key)
}

// CancelSurfaceRequests aborts every call started for surface.
func (c *Client) CancelSurfaceRequests(surface string) int {
	return c.registry.CancelSurface(surface)
}

// resolveKey picks the dedup key for a call, or "" when it is untracked.
func resolveKey(opts Options) string {
	if opts.CancelKey != "" {
		return opts.CancelKey
	}
	if opts.SurfaceID != "" {
		return opts.SurfaceID + ":" + uuid.NewString()
	}
	return ""
}

func (c *Client) endpointURL(endpoint string, query url.Values) (string, error) {
	var raw string
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		raw = endpoint
	} else {
		raw = strings.TrimRight(c.base.String(), "/") + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encodeBody returns the payload and its content type.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case json.RawMessage:
		return b, "application/json", nil
	case []byte:
		return b, "application/json", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return data, "application/json", nil
	}
}

// setCredential writes the credential under both spellings of the header.
// Header keys are assigned directly to bypass canonicalization.
func (c *Client) setCredential(h http.Header, token string) {
	lower := strings.ToLower(c.header)
	canonical := http.CanonicalHeaderKey(c.header)
	h[lower] = []string{token}
	if canonical != lower {
		h[canonical] = []string{token}
	}
}
