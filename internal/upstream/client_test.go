package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/credential"
	apperrors "surveydesk-go/internal/errors"
	"surveydesk-go/internal/monitoring/tracing"
	"surveydesk-go/internal/storage"
	"surveydesk-go/internal/upstream/strategy"
)

type harness struct {
	srv      *httptest.Server
	store    *credential.Store
	client   *Client
	navigate []string
	mu       sync.Mutex
}

func newHarness(t *testing.T, h http.Handler) *harness {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.API.BaseURL = srv.URL

	jar, err := credential.NewCookieJar()
	require.NoError(t, err)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	hs := &harness{srv: srv}
	hs.store = credential.NewStore(
		credential.NewDurableChannel(storage.NewMemoryBackend()),
		credential.NewCookieChannel(jar, base, 0),
		nil,
	)
	hs.client = New(cfg, strategy.NewSelector(nil, hs.store), hs.store).
		WithJar(jar).
		WithNavigator(NavigatorFunc(func(p string) {
			hs.mu.Lock()
			hs.navigate = append(hs.navigate, p)
			hs.mu.Unlock()
		}))
	return hs
}

func TestCredentialHeaderBothSpellings(t *testing.T) {
	var got http.Header
	hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	ctx := context.Background()
	require.NoError(t, hs.store.Set(ctx, credential.SlotUser, "user-tok"))

	res, err := hs.client.Get(ctx, "/api/GetMembers", Options{})
	require.NoError(t, err)
	assert.Equal(t, BodyJSON, res.Kind)
	assert.True(t, res.Get("ok").Bool())
	// both spellings arrive, canonicalized into one key server side
	assert.Equal(t, []string{"user-tok", "user-tok"}, got.Values("Token"))
}

func TestNoHeaderWithoutCredential(t *testing.T) {
	var got http.Header
	hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	// visitor-only endpoint with only a user credential present
	require.NoError(t, hs.store.Set(context.Background(), credential.SlotUser, "user-tok"))

	res, err := hs.client.Post(context.Background(), "/api/StartSurvey", map[string]string{"id": "1"}, Options{})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Empty(t, got.Values("Token"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
}

func TestResponseClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   apperrors.Kind
		result BodyKind
	}{
		{"json object", 200, `{"a":1}`, "", BodyJSON},
		{"json array", 200, ` [1,2] `, "", BodyJSON},
		{"plain text", 200, "abc-123", "", BodyText},
		{"empty 200", 200, "", "", BodyEmpty},
		{"no content", 204, "", "", BodyEmpty},
		{"html page", 200, "<!DOCTYPE html><html></html>", apperrors.KindProtocol, 0},
		{"broken json", 200, `{"a":`, apperrors.KindProtocol, 0},
		{"forbidden", 403, "not your survey", apperrors.KindForbidden, 0},
		{"server", 500, "panic: nil map", apperrors.KindServer, 0},
		{"not found", 404, "missing", apperrors.KindHTTP, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			res, err := hs.client.Get(context.Background(), "/api/GetSurveys", Options{})
			if tc.kind == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.result, res.Kind)
				return
			}
			require.Error(t, err)
			var re *apperrors.RequestError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.kind, re.Kind)
			assert.Equal(t, tc.status, re.Status)
			switch tc.kind {
			case apperrors.KindForbidden:
				assert.Equal(t, tc.body, re.Message)
			case apperrors.KindServer:
				assert.NotContains(t, re.Message, "panic")
			case apperrors.KindProtocol:
				assert.NotEmpty(t, re.Message)
			}
		})
	}
}

func TestUnauthorizedClearsActingSlotAndNavigates(t *testing.T) {
	hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ctx := context.Background()
	require.NoError(t, hs.store.Set(ctx, credential.SlotUser, "expired"))
	require.NoError(t, hs.store.Set(ctx, credential.SlotVisitor, "visitor"))

	_, err := hs.client.Get(ctx, "/api/GetMembers", Options{})
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))

	_, ok := hs.store.Get(ctx, credential.SlotUser)
	assert.False(t, ok)
	_, ok = hs.store.Get(ctx, credential.SlotVisitor)
	assert.True(t, ok)
	assert.Equal(t, []string{"/"}, hs.navigate)
}

func TestLoadingCallbacksAlwaysSettle(t *testing.T) {
	hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	var states []bool
	_, err := hs.client.Get(context.Background(), "/api/GetSurveys", Options{
		OnLoadingChange: func(loading bool) { states = append(states, loading) },
	})
	require.Error(t, err)
	assert.Equal(t, []bool{true, false}, states)
}

// blockingHandler holds requests marked ?block=1 until the client goes away.
func blockingHandler(started chan<- string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("block") == "1" {
			started <- r.URL.Query().Get("n")
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		_, _ = io.WriteString(w, `"fresh"`)
	})
}

func TestSameKeySupersedesPendingCall(t *testing.T) {
	started := make(chan string, 1)
	hs := newHarness(t, blockingHandler(started))
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() {
		_, err := hs.client.Get(ctx, "/api/GetSurveys", Options{
			CancelKey: "survey-list",
			Query:     url.Values{"block": {"1"}, "n": {"a"}},
		})
		errA <- err
	}()
	require.Equal(t, "a", <-started)

	res, err := hs.client.Get(ctx, "/api/GetSurveys", Options{CancelKey: "survey-list"})
	require.NoError(t, err)
	assert.Equal(t, `"fresh"`, res.Text())

	select {
	case err := <-errA:
		require.True(t, apperrors.IsCanceled(err), "got %v", err)
		assert.Equal(t, apperrors.CancelSuperseded, apperrors.CancelReasonOf(err))
	case <-time.After(3 * time.Second):
		t.Fatal("superseded call did not settle")
	}
	assert.Equal(t, 0, hs.client.Registry().Len())
}

func TestCancelSurfaceRequests(t *testing.T) {
	started := make(chan string, 3)
	hs := newHarness(t, blockingHandler(started))
	ctx := context.Background()

	var wg sync.WaitGroup
	var canceled atomic.Int32
	for _, key := range []string{"k1", "k2", "k3"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := hs.client.Get(ctx, "/api/GetSurveys", Options{
				CancelKey: key,
				SurfaceID: "dashboard",
				Query:     url.Values{"block": {"1"}, "n": {key}},
			})
			if apperrors.CancelReasonOf(err) == apperrors.CancelAborted {
				canceled.Add(1)
			}
		}(key)
	}
	for i := 0; i < 3; i++ {
		<-started
	}

	assert.Equal(t, 3, hs.client.CancelSurfaceRequests("dashboard"))
	assert.Empty(t, hs.client.Registry().SurfaceKeys("dashboard"))
	wg.Wait()
	assert.Equal(t, int32(3), canceled.Load())
	assert.Equal(t, 0, hs.client.CancelSurfaceRequests("dashboard"))
}

func TestSurfaceWithoutKeyGetsUniqueKeys(t *testing.T) {
	started := make(chan string, 2)
	hs := newHarness(t, blockingHandler(started))

	errs := make(chan error, 2)
	for _, n := range []string{"x", "y"} {
		go func(n string) {
			_, err := hs.client.Get(context.Background(), "/api/GetSurveys", Options{
				SurfaceID: "billing",
				Query:     url.Values{"block": {"1"}, "n": {n}},
			})
			errs <- err
		}(n)
	}
	<-started
	<-started
	// neither call superseded the other
	assert.Len(t, hs.client.Registry().SurfaceKeys("billing"), 2)
	assert.Equal(t, 2, hs.client.CancelSurfaceRequests("billing"))
	for i := 0; i < 2; i++ {
		assert.True(t, apperrors.IsCanceled(<-errs))
	}
}

func TestCancelRequest(t *testing.T) {
	started := make(chan string, 1)
	hs := newHarness(t, blockingHandler(started))

	errc := make(chan error, 1)
	go func() {
		_, err := hs.client.Get(context.Background(), "/api/GetSurveys", Options{
			CancelKey: "report",
			Query:     url.Values{"block": {"1"}, "n": {"r"}},
		})
		errc <- err
	}()
	<-started
	assert.True(t, hs.client.CancelRequest("report"))
	err := <-errc
	assert.Equal(t, apperrors.CancelAborted, apperrors.CancelReasonOf(err))
	assert.False(t, hs.client.CancelRequest("report"))
}

func TestParentContextCancelIsAborted(t *testing.T) {
	started := make(chan string, 1)
	hs := newHarness(t, blockingHandler(started))
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := hs.client.Get(ctx, "/api/GetSurveys", Options{Query: url.Values{"block": {"1"}, "n": {"p"}}})
		errc <- err
	}()
	<-started
	cancel()
	err := <-errc
	assert.Equal(t, apperrors.CancelAborted, apperrors.CancelReasonOf(err))
}

func TestNetworkError(t *testing.T) {
	hs := newHarness(t, http.NotFoundHandler())
	hs.srv.Close()
	_, err := hs.client.Get(context.Background(), "/api/GetSurveys", Options{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNetwork, apperrors.KindOf(err))
}

func TestRawSkipsCredentialAndRegistry(t *testing.T) {
	var got http.Header
	var query url.Values
	hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, query = r.Header.Clone(), r.URL.Query()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ctx := context.Background()
	require.NoError(t, hs.store.Set(ctx, credential.SlotUser, "u"))

	_, err := hs.client.Raw(ctx, "/api/GetSessionId", map[string]string{"secret": "abc"})
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
	assert.Empty(t, got.Values("Token"))
	assert.Equal(t, "abc", query.Get("secret"))
	_, ok := hs.store.Get(ctx, credential.SlotUser)
	assert.True(t, ok)
	assert.Empty(t, hs.navigate)
}

func TestDecodeAs(t *testing.T) {
	hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"email":"a@b.c"}]`)
	}))
	res, err := hs.client.Get(context.Background(), "/api/GetSurveys", Options{})
	require.NoError(t, err)
	type row struct {
		Email string `json:"email"`
	}
	rows, err := DecodeAs[[]row](res)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a@b.c", rows[0].Email)

	text := &Result{Kind: BodyText, Raw: []byte("x")}
	_, err = DecodeAs[map[string]any](text)
	assert.Error(t, err)
}

func TestEndpointURL(t *testing.T) {
	cfg := config.Defaults()
	cfg.API.BaseURL = "http://example.test/prefix/"
	c := New(cfg, strategy.NewSelector(nil, nil), nil)

	u, err := c.endpointURL("/api/GetSurveys", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/prefix/api/GetSurveys?page=2", u)

	u, err = c.endpointURL("https://other.test/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://other.test/x", u)
}

func TestSettleReportsLateCancellation(t *testing.T) {
	ok := &Result{Status: http.StatusOK, Kind: BodyText, Raw: []byte("late")}

	res, err := settle(context.Background(), "/api/GetSurveys", ok, nil)
	require.NoError(t, err)
	assert.Same(t, ok, res)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(apperrors.ErrSuperseded)
	res, err = settle(ctx, "/api/GetSurveys", ok, nil)
	assert.Nil(t, res)
	assert.Equal(t, apperrors.CancelSuperseded, apperrors.CancelReasonOf(err))

	// an HTTP failure classified after the key was superseded is reported as canceled too
	res, err = settle(ctx, "/api/GetSurveys", nil, apperrors.MapHTTPStatus("/api/GetSurveys", http.StatusBadGateway, nil))
	assert.Nil(t, res)
	assert.Equal(t, apperrors.CancelSuperseded, apperrors.CancelReasonOf(err))

	aborted := apperrors.Canceled("/api/GetSurveys", apperrors.CancelAborted, nil)
	_, err = settle(ctx, "/api/GetSurveys", nil, aborted)
	assert.Same(t, aborted, err)
}

// supersedingTransport answers every call and, once the body is handed
// back, registers a newer call under the same key.
type supersedingTransport struct {
	registry *Registry
	key      string
}

func (st *supersedingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       &supersedeOnClose{ReadCloser: io.NopCloser(strings.NewReader(`{"ok":true}`)), st: st},
		Request:    r,
	}, nil
}

type supersedeOnClose struct {
	io.ReadCloser
	st *supersedingTransport
}

func (b *supersedeOnClose) Close() error {
	_, cancel := context.WithCancelCause(context.Background())
	b.st.registry.Register(b.st.key, "", cancel)
	return b.ReadCloser.Close()
}

func TestSupersededWhileReadingNeverSucceeds(t *testing.T) {
	hs := newHarness(t, http.NotFoundHandler())
	st := &supersedingTransport{registry: hs.client.Registry(), key: "survey-list"}
	hs.client.WithHTTPClient(&http.Client{Transport: st})

	res, err := hs.client.Get(context.Background(), "/api/GetSurveys", Options{CancelKey: "survey-list"})
	assert.Nil(t, res)
	assert.Equal(t, apperrors.CancelSuperseded, apperrors.CancelReasonOf(err))
}

func TestDispatchPropagatesTraceContext(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := tracing.Init(context.Background(), tracing.Options{Exporter: exp})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	var traceparent string
	hs := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		_, _ = io.WriteString(w, `{}`)
	}))
	_, err = hs.client.Get(context.Background(), "/api/GetSurveys", Options{})
	require.NoError(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Dispatch GET", spans[0].Name)
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, spans[0].SpanContext.TraceID().String())
	assert.Contains(t, traceparent, spans[0].SpanContext.SpanID().String())
}
