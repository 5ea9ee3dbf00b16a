// Package stub provides a deterministic in-memory driver for tests
// and APP_ENV=dev runs: no network, canned pages keyed by URL.
package stub

import (
	"fmt"
	"sync"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// Page is one canned response.
type Page struct {
	HTML   string
	Status int
	Err    error
}

// Driver hands out sessions that serve canned pages. Safe for
// concurrent slots.
type Driver struct {
	mu       sync.Mutex
	pages    map[string]Page
	fallback Page
	sessions int
}

// New constructs an empty stub driver whose fallback is a 404 page.
func New() *Driver {
	return &Driver{
		pages:    make(map[string]Page),
		fallback: Page{HTML: "<html><title>404</title></html>", Status: 404},
	}
}

// SetPage registers the canned page for url.
func (d *Driver) SetPage(url string, p Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = p
}

// SetFallback replaces the page served for unregistered URLs.
func (d *Driver) SetFallback(p Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = p
}

// Sessions reports how many sessions were built so far.
func (d *Driver) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// NewSession builds a stub session bound to proxy and display; both
// are only recorded.
func (d *Driver) NewSession(_ domain.Context, proxy domain.ProxyAddr, display int) (domain.Session, error) {
	d.mu.Lock()
	d.sessions++
	n := d.sessions
	d.mu.Unlock()
	return &Session{
		driver:  d,
		id:      fmt.Sprintf("stub-%d", n),
		proxy:   proxy,
		display: display,
	}, nil
}

func (d *Driver) lookup(url string) Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pages[url]; ok {
		return p
	}
	return d.fallback
}

// Session serves the driver's canned pages.
type Session struct {
	driver  *Driver
	id      string
	proxy   domain.ProxyAddr
	display int

	mu     sync.Mutex
	url    string
	page   Page
	closed bool
	visits []string
}

// ID returns the session correlation id.
func (s *Session) ID() string { return s.id }

// Display returns the display ordinal the session was built for.
func (s *Session) Display() int { return s.display }

// Proxy returns the proxy the session was bound to.
func (s *Session) Proxy() domain.ProxyAddr { return s.proxy }

// Visits returns every URL the session navigated to, in order.
func (s *Session) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.visits))
	copy(out, s.visits)
	return out
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Goto(_ domain.Context, url string) error {
	p := s.driver.lookup(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, url)
	if p.Err != nil {
		return p.Err
	}
	s.url = url
	s.page = p
	return nil
}

func (s *Session) Content(_ domain.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.HTML, nil
}

func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// StatusCode returns the canned status of the last page, 0 before the
// first navigation.
func (s *Session) StatusCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.Status
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
