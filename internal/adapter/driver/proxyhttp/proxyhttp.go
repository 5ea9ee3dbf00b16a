// Package proxyhttp implements the browsing driver over net/http.
// Every session owns one http.Client whose transport tunnels through
// the leased proxy with inline credentials; the proxy is baked into
// the transport at session build time, so rotating means building a
// new session.
package proxyhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// Pages larger than this are truncated; listing pages stay well under.
const maxBodyBytes = 8 << 20

// Driver builds proxied HTTP sessions.
type Driver struct {
	// Timeout is the hard per-navigation budget, transport dial and
	// body read included.
	Timeout time.Duration
}

// New constructs a Driver with the given per-navigation timeout.
func New(timeout time.Duration) *Driver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Driver{Timeout: timeout}
}

// NewSession builds a session routed through proxy. The display
// ordinal has no effect over HTTP; it is recorded for log parity with
// screenful drivers.
func (d *Driver) NewSession(_ domain.Context, proxy domain.ProxyAddr, display int) (domain.Session, error) {
	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(proxy.Host, strconv.Itoa(proxy.Port)),
	}
	if proxy.Username != "" {
		proxyURL.User = url.UserPassword(proxy.Username, proxy.Password)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("driver: cookie jar: %w", err)
	}
	transport := &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
		DialContext: (&net.Dialer{
			Timeout:   d.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: d.Timeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}
	s := &Session{
		id:      uuid.NewString(),
		display: display,
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   d.Timeout,
		},
	}
	slog.Debug("driver_session_created",
		slog.String("session_id", s.id),
		slog.Int("display", display),
		slog.String("proxy", proxyURL.Host))
	return s, nil
}

// Session is one proxied page handle. Goto fetches and buffers the
// page; Content and StatusCode expose the buffered response.
type Session struct {
	id      string
	display int
	client  *http.Client

	mu     sync.Mutex
	url    string
	body   string
	status int
}

// ID returns the session correlation id.
func (s *Session) ID() string { return s.id }

// Display returns the slot display ordinal the session was built for.
func (s *Session) Display() int { return s.display }

// Goto fetches url through the session proxy. Non-2xx statuses are
// not errors; the detector classifies them from the buffered
// response. Failures caused by the proxy wrap domain.ErrProxyFailure.
func (s *Session) Goto(ctx domain.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("goto %s: %w", target, err)
	}
	browserHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		if isProxyError(err) {
			return fmt.Errorf("goto %s: %w: %v", target, domain.ErrProxyFailure, err)
		}
		return fmt.Errorf("goto %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isProxyError(err) {
			return fmt.Errorf("goto %s: read body: %w: %v", target, domain.ErrProxyFailure, err)
		}
		return fmt.Errorf("goto %s: read body: %w", target, err)
	}

	s.mu.Lock()
	s.url = resp.Request.URL.String()
	s.body = string(body)
	s.status = resp.StatusCode
	s.mu.Unlock()
	return nil
}

// Content returns the body of the last fetched page.
func (s *Session) Content(_ domain.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return "", errors.New("driver: no page loaded")
	}
	return s.body, nil
}

// URL returns the final URL of the last navigation, redirects applied.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// StatusCode returns the HTTP status of the last navigation, 0 before
// the first one.
func (s *Session) StatusCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close drops the session's idle connections.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

func browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept",
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
}

// isProxyError reports whether a navigation failure is attributable to
// the proxy rather than the site. With Transport.Proxy set every dial
// goes to the proxy, so dial and CONNECT failures, proxy auth
// rejections, and timeouts all count. Context cancellation never does.
func isProxyError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "proxyconnect") {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "proxyconnect") ||
		strings.Contains(msg, "Proxy Authentication Required")
}
