package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/credential"
	apperrors "surveydesk-go/internal/errors"
	"surveydesk-go/internal/logging"
	"surveydesk-go/internal/monitoring"
	"surveydesk-go/internal/monitoring/tracing"
	"surveydesk-go/internal/upstream/strategy"
)

// Do performs one authenticated call. Failures are *apperrors.RequestError;
// canceled calls report whether they were superseded or aborted.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, opts Options) (*Result, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if key := resolveKey(opts); key != "" {
		id := c.registry.Register(key, opts.SurfaceID, cancel)
		defer c.registry.Release(key, id)
	}

	sel := c.selector.Select(reqCtx, endpoint)

	if opts.OnLoadingChange != nil {
		opts.OnLoadingChange(true)
		defer opts.OnLoadingChange(false)
	}

	req, err := c.newRequest(reqCtx, method, endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	if sel.Present && credential.Validate(sel.Token) {
		c.setCredential(req.Header, sel.Token)
	}

	return c.send(reqCtx, req, endpoint, &sel)
}

// Raw performs an unauthenticated GET outside the cancellation registry.
// A 401 here never clears credentials.
func (c *Client) Raw(ctx context.Context, endpoint string, query map[string]string) (*Result, error) {
	opts := Options{}
	if len(query) > 0 {
		opts.Query = make(map[string][]string, len(query))
		for k, v := range query {
			opts.Query.Set(k, v)
		}
	}
	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	req, err := c.newRequest(reqCtx, http.MethodGet, endpoint, nil, opts)
	if err != nil {
		return nil, err
	}
	return c.send(reqCtx, req, endpoint, nil)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any, opts Options) (*http.Request, error) {
	target, err := c.endpointURL(endpoint, opts.Query)
	if err != nil {
		return nil, apperrors.New(apperrors.KindHTTP, endpoint, err.Error())
	}
	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, apperrors.New(apperrors.KindHTTP, endpoint, err.Error())
	}
	var rdr *bytes.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	var req *http.Request
	if rdr != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, rdr)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindHTTP, endpoint, err.Error())
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", constants.UserAgent())
	return req, nil
}

// send executes req and classifies the outcome. sel is nil for raw calls.
func (c *Client) send(ctx context.Context, req *http.Request, endpoint string, sel *strategy.Selection) (*Result, error) {
	start := time.Now()
	monitoring.DispatchInFlight.Inc()
	defer monitoring.DispatchInFlight.Dec()

	spanCtx, span := tracing.StartSpan(ctx, "upstream", "Dispatch "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("dispatch.endpoint", endpoint),
		))
	defer span.End()
	if sel != nil {
		span.SetAttributes(
			attribute.String("dispatch.policy", sel.Policy.String()),
			attribute.Bool("dispatch.credential", sel.Present),
		)
	}

	var (
		res    *Result
		err    error
		status int
	)
	req = req.WithContext(spanCtx)
	tracing.Inject(spanCtx, req.Header)
	resp, doErr := c.http.Do(req)
	if doErr != nil {
		err = apperrors.MapTransport(endpoint, doErr, context.Cause(ctx))
	} else {
		status = resp.StatusCode
		raw, readErr := ReadAll(resp)
		switch cause := context.Cause(ctx); {
		case cause != nil:
			// never hand back a response for a call that was superseded meanwhile
			err = apperrors.MapTransport(endpoint, readErr, cause)
		case readErr != nil:
			err = apperrors.MapTransport(endpoint, readErr, nil)
		default:
			res, err = c.classify(ctx, endpoint, status, raw, sel)
		}
	}
	res, err = settle(ctx, endpoint, res, err)

	c.observe(req.Method, endpoint, status, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.KindOf(err)))
	} else {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	return res, err
}

// settle turns the outcome into a cancellation when ctx gained a cause
// while the response was being classified.
func settle(ctx context.Context, endpoint string, res *Result, err error) (*Result, error) {
	cause := context.Cause(ctx)
	if cause == nil || apperrors.IsCanceled(err) {
		return res, err
	}
	return nil, apperrors.MapTransport(endpoint, nil, cause)
}

func (c *Client) classify(ctx context.Context, endpoint string, status int, raw []byte, sel *strategy.Selection) (*Result, error) {
	switch {
	case status == http.StatusUnauthorized:
		if sel != nil {
			c.handleUnauthorized(ctx, endpoint, sel)
		}
		return nil, apperrors.MapHTTPStatus(endpoint, status, raw)
	case status == http.StatusNoContent:
		return &Result{Status: status, Kind: BodyEmpty}, nil
	case status < 200 || status >= 300:
		rerr := apperrors.MapHTTPStatus(endpoint, status, raw)
		if rerr.Kind == apperrors.KindServer {
			log.WithFields(log.Fields{"endpoint": endpoint, "status": status, "body": truncate(raw, 2048)}).
				Error("server error from API")
		}
		return nil, rerr
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Result{Status: status, Kind: BodyEmpty}, nil
	}
	if credential.LooksLikeHTML(string(trimmed[:min(len(trimmed), 64)])) {
		log.WithFields(log.Fields{"endpoint": endpoint, "status": status}).Warn("HTML response where JSON was expected")
		return nil, &apperrors.RequestError{
			Kind: apperrors.KindProtocol, Status: status, Endpoint: endpoint,
			Message: apperrors.ProtocolHTMLMessage, Body: raw,
		}
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if !gjson.ValidBytes(trimmed) {
			return nil, &apperrors.RequestError{
				Kind: apperrors.KindProtocol, Status: status, Endpoint: endpoint,
				Message: apperrors.ProtocolJSONMessage, Body: raw,
			}
		}
		return &Result{Status: status, Kind: BodyJSON, Raw: trimmed}, nil
	}
	return &Result{Status: status, Kind: BodyText, Raw: raw}, nil
}

// handleUnauthorized clears the credential the call acted with and sends
// the UI back to the root.
func (c *Client) handleUnauthorized(ctx context.Context, endpoint string, sel *strategy.Selection) {
	fields := log.Fields{"endpoint": endpoint, "slot": sel.Slot}
	if sel.Slot != "" && c.store != nil {
		if err := c.store.Clear(context.WithoutCancel(ctx), sel.Slot); err != nil {
			log.WithFields(fields).WithError(err).Warn("failed to clear rejected credential")
		}
	}
	log.WithFields(fields).Warn("credential rejected, returning to root")
	if c.navigator != nil {
		c.navigator.Navigate(constants.RootPath)
	}
}

func (c *Client) observe(method, endpoint string, status int, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	elapsed := time.Since(start)
	monitoring.DispatchRequestsTotal.WithLabelValues(method, outcome).Inc()
	monitoring.DispatchDuration.WithLabelValues(method, outcome).Observe(elapsed.Seconds())

	entry := log.WithFields(log.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status":      status,
		"outcome":     outcome,
		"duration_ms": logging.DurationMS(elapsed),
	})
	if reason := apperrors.CancelReasonOf(err); reason != "" {
		monitoring.DispatchCanceledTotal.WithLabelValues(string(reason)).Inc()
		entry.WithField("cancel_reason", reason).Debug("request canceled")
		return
	}
	entry.Debug("request settled")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...(%d bytes)", b[:n], len(b))
}
