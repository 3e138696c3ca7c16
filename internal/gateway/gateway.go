package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/rexlx/vexmarket/internal/logging"
)

// Requester is what components depend on; *Gateway implements it.
type Requester interface {
	Send(ctx context.Context, method, path string, body any) Result
	SendFile(ctx context.Context, path, name string, data []byte) Result
}

// Gateway wraps every call to the backend. It never returns a Go error:
// the outcome is always described by a Result.
type Gateway struct {
	base     *url.URL
	client   *http.Client
	throttle *Throttle
	logger   *slog.Logger
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client. A client without a cookie jar
// gets one.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithThrottle limits how fast requests leave the client.
func WithThrottle(t *Throttle) Option {
	return func(g *Gateway) { g.throttle = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a gateway for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing API base URL: %w", err)
	}
	g := &Gateway{base: base}
	for _, o := range opts {
		o(g)
	}
	if g.client == nil {
		g.client = &http.Client{}
	}
	if g.client.Jar == nil {
		// the session cookie rides along like credentials: 'include'
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		g.client.Jar = jar
	}
	g.logger = logging.OrDiscard(g.logger)
	return g, nil
}

// BaseURL is the API origin requests are resolved against.
func (g *Gateway) BaseURL() string {
	return g.base.String()
}

// CookieJar holds the session cookie. The realtime dialer shares it.
func (g *Gateway) CookieJar() http.CookieJar {
	return g.client.Jar
}

func (g *Gateway) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.base.String() + path
}

// Send issues a JSON request. body is encoded only for non-GET methods.
func (g *Gateway) Send(ctx context.Context, method, path string, body any) Result {
	var (
		reader      io.Reader
		contentType string
	)
	if method != http.MethodGet && body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{Err: fmt.Errorf("encoding request body: %w", err)}
		}
		reader = bytes.NewReader(b)
		contentType = "application/json"
	}
	return g.do(ctx, method, path, reader, contentType)
}

// SendFile uploads a single file as multipart field "file".
func (g *Gateway) SendFile(ctx context.Context, path, name string, data []byte) Result {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Result{Err: fmt.Errorf("creating form file: %w", err)}
	}
	if _, err := fw.Write(data); err != nil {
		return Result{Err: fmt.Errorf("writing form file: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return Result{Err: fmt.Errorf("closing multipart body: %w", err)}
	}
	return g.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
}

func (g *Gateway) do(ctx context.Context, method, path string, body io.Reader, contentType string) Result {
	target := g.resolve(path)
	reqID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, reqID)
	log := logging.FromContext(ctx, g.logger).With("method", method, "path", path)

	if g.throttle != nil {
		if err := g.throttle.Wait(ctx, target); err != nil {
			log.Warn("request throttled", "error", err)
			return Result{Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Result{Err: fmt.Errorf("building request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	res, err := g.client.Do(req)
	if err != nil {
		log.Warn("request failed", "error", err, "took", time.Since(start))
		return Result{Err: err}
	}
	defer res.Body.Close()

	out := Result{
		Fetched: true,
		OK:      res.StatusCode >= 200 && res.StatusCode < 300,
		Status:  res.StatusCode,
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		out.Err = fmt.Errorf("reading response body: %w", err)
	} else if len(bytes.TrimSpace(raw)) > 0 {
		if json.Valid(raw) {
			out.Data = raw
		} else {
			out.Err = fmt.Errorf("response from %s is not JSON", path)
		}
	}
	log.Debug("request done", "status", res.StatusCode, "took", time.Since(start))
	return out
}
