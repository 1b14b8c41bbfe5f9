// Package api talks to the WeCanFarm backend: login, registration and crop
// image analysis. Every exchange is a single JSON POST with no retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wecanfarm/wecanfarm/internal/session"
)

// Timeout bounds. Options above these are clamped, zero means the bound.
const (
	MaxAuthConnectTimeout    = 15 * time.Second
	MaxAuthReadTimeout       = 30 * time.Second
	MaxAnalyzeConnectTimeout = 30 * time.Second
	MaxAnalyzeReadTimeout    = 60 * time.Second

	// DefaultBypassHeader skips the tunnel provider's browser warning page.
	DefaultBypassHeader = "ngrok-skip-browser-warning"

	maxResponseBytes = 32 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// BypassHeader is sent with value "true" on every request. Empty omits it.
	BypassHeader string

	AuthConnectTimeout    time.Duration
	AuthReadTimeout       time.Duration
	AnalyzeConnectTimeout time.Duration
	AnalyzeReadTimeout    time.Duration

	Logger zerolog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	bypass  string
	auth    *http.Client
	analyze *http.Client
	log     zerolog.Logger
}

// NewClient returns a Client for the backend at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Client{
		baseURL: base,
		bypass:  opts.BypassHeader,
		auth: newHTTPClient(
			clamp(opts.AuthConnectTimeout, MaxAuthConnectTimeout),
			clamp(opts.AuthReadTimeout, MaxAuthReadTimeout),
		),
		analyze: newHTTPClient(
			clamp(opts.AnalyzeConnectTimeout, MaxAnalyzeConnectTimeout),
			clamp(opts.AnalyzeReadTimeout, MaxAnalyzeReadTimeout),
		),
		log: opts.Logger.With().Str("component", "api").Logger(),
	}, nil
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string { return c.baseURL }

func clamp(d, limit time.Duration) time.Duration {
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

// newHTTPClient bounds the dial by connect and the wait for response
// headers plus the body read by read.
func newHTTPClient(connect, read time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   connect + read,
	}
}

// post sends body as JSON to path and returns the raw 2xx response body.
// Transport failures and non-2xx statuses come back as *Error.
func (c *Client) post(ctx context.Context, hc *http.Client, op, path, token string, body any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, &Error{Kind: KindValidation, Op: op, Message: "encode request", Err: err}
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	if c.bypass != "" {
		req.Header.Set(c.bypass, "true")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logEvent := c.log.Debug().Str("op", op).Str("url", url).Int("bytes", len(payload))
	if token != "" {
		logEvent = logEvent.Str("token", session.Redact(token))
	}
	logEvent.Msg("sending request")

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("request failed")
		return nil, 0, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}

	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).Msg("response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := KindServer
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = KindUnauthenticated
		}
		return nil, resp.StatusCode, &Error{
			Kind:    kind,
			Op:      op,
			Status:  resp.StatusCode,
			Message: errorDetail(data, resp.StatusCode),
		}
	}
	return data, resp.StatusCode, nil
}

const maxDetailRunes = 300

// errorDetail pulls a message out of an error body. FastAPI-style
// {"detail": ...}, {"error": ...} and {"message": ...} shapes are recognized;
// otherwise the trimmed body is used.
func errorDetail(body []byte, status int) string {
	var shaped struct {
		Detail  any    `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		switch d := shaped.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if shaped.Error != "" {
			return shaped.Error
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "HTTP " + http.StatusText(status)
	}
	if r := []rune(text); len(r) > maxDetailRunes {
		text = string(r[:maxDetailRunes]) + "…"
	}
	return text
}
