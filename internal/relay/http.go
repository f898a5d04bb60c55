package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cipherline/internal/domain"
)

const errBodyLimit = 512

// HTTP talks to the relay over its REST API.
type HTTP struct {
	Base  string
	Token string
	HTTP  *http.Client

	limiter *rate.Limiter
	log     *zap.Logger
}

// Option configures an HTTP client.
type Option func(*HTTP)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *HTTP) { c.HTTP = hc } }

// WithRateLimit bounds requests per second. A non-positive rps disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTP) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(c *HTTP) { c.log = l } }

// NewHTTP returns a client for base authenticated with token.
func NewHTTP(base, token string, opts ...Option) *HTTP {
	c := &HTTP{
		Base:    strings.TrimRight(base, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(20), 10),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.Named("relay")
	return c
}

// WebSocketURL returns the socket URL of the relay for token.
func (c *HTTP) WebSocketURL() (string, error) {
	return WebSocketURL(c.Base, c.Token)
}

// WebSocketURL turns an http(s) base URL into the relay socket URL.
func WebSocketURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func (c *HTTP) do(ctx context.Context, method, path string, body io.Reader, hdr http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug("request",
		zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("dur", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("relay %s %s: %w", method, path, domain.ErrNotFound)
	}
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		resp.Body.Close()
		return nil, fmt.Errorf("relay %s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	return resp, nil
}

func (c *HTTP) postJSON(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if in != nil {
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
	}
	resp, err := c.do(ctx, http.MethodPost, path, buf, http.Header{"Content-Type": {"application/json"}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

var (
	_ domain.Directory = (*HTTP)(nil)
	_ domain.BlobStore = (*HTTP)(nil)
	_ domain.Roster    = (*HTTP)(nil)
)
