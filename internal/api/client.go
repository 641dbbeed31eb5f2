// Package api is the HTTP client the state slices dispatch through. It
// speaks the backend's JSON envelope and carries session cookies.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"blogclient/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
)

// RequestIDHeader correlates a client call with backend logs.
const RequestIDHeader = "X-Request-ID"

// maxBody caps how much of a response body is read.
const maxBody = 4 << 20

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewJar returns a cookie jar scoped with the public suffix list.
func NewJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// NewHTTPClient returns an *http.Client that keeps cookies in jar.
// A nil jar disables credential propagation.
func NewHTTPClient(timeout time.Duration, jar http.CookieJar) *http.Client {
	return &http.Client{Timeout: timeout, Jar: jar}
}

// Client issues calls against the blog backend.
type Client struct {
	base   *url.URL
	doer   Doer
	tracer trace.Tracer
	newID  func() string
}

// New returns a Client rooted at baseURL. A nil doer uses
// http.DefaultClient, which sends no cookies.
func New(baseURL string, doer Doer) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		base:   u,
		doer:   doer,
		tracer: otel.Tracer("blogclient/api"),
		newID:  func() string { return uuid.NewString() },
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Response is a decoded 2xx answer.
type Response struct {
	Status    int
	RequestID string
	Envelope  models.Envelope
	// Malformed is set when the body was not a JSON envelope.
	Malformed bool
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) (Response, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

func (c *Client) Delete(ctx context.Context, path string) (Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends one request. Non-2xx answers and transport failures come
// back as *Error.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (Response, error) {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}

	reqID := c.newID()
	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("blog.request_id", reqID),
		))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(RequestIDHeader, reqID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.doer.Do(req)
	if err != nil {
		apiErr := transportError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, apiErr.Code)
		return Response{RequestID: reqID}, apiErr
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		apiErr := transportError(ctx, err)
		span.SetStatus(codes.Error, apiErr.Code)
		return Response{Status: resp.StatusCode, RequestID: reqID}, apiErr
	}

	out := Response{Status: resp.StatusCode, RequestID: reqID}
	if err := json.Unmarshal(raw, &out.Envelope); err != nil {
		out.Malformed = true
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := statusError(resp.StatusCode, envelopeFields{code: out.Envelope.Code, message: out.Envelope.Message})
		span.SetStatus(codes.Error, apiErr.Code)
		return out, apiErr
	}
	return out, nil
}

type envelopeFields struct {
	code    string
	message string
}

// DecodeData unmarshals the envelope's data into v. It reports false
// when there is no data.
func DecodeData(resp Response, v any) (bool, error) {
	if resp.Malformed || !resp.Envelope.HasData() {
		return false, nil
	}
	if err := json.Unmarshal(resp.Envelope.Data, v); err != nil {
		return false, fmt.Errorf("decode response data: %w", err)
	}
	return true, nil
}
