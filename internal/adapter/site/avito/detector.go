package avito

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// Detector classifies fetched pages against the profile markers in
// the fixed priority order.
type Detector struct {
	profile *Profile
}

// NewDetector constructs a Detector over the given profile.
func NewDetector(p *Profile) *Detector { return &Detector{profile: p} }

// statusCoder is implemented by sessions that expose the HTTP status
// of the last navigation.
type statusCoder interface{ StatusCode() int }

// Detect returns the first priority state whose markers match the
// current page, StateUnknown when none do. An error means the page
// could not be read or parsed at all.
func (d *Detector) Detect(ctx domain.Context, s domain.Session) (domain.PageState, error) {
	html, err := s.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("detect: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("detect: parse html: %w", err)
	}
	status := 0
	if sc, ok := s.(statusCoder); ok {
		status = sc.StatusCode()
	}
	title := doc.Find("title").First().Text()
	text := doc.Text()

	for _, state := range domain.DetectionPriority {
		m, ok := d.profile.States[string(state)]
		if !ok {
			continue
		}
		if m.match(status, title, text, doc) {
			return state, nil
		}
	}
	return domain.StateUnknown, nil
}

func (m StateMarkers) match(status int, title, text string, doc *goquery.Document) bool {
	for _, s := range m.Statuses {
		if status == s {
			return true
		}
	}
	for _, sub := range m.TitleContains {
		if strings.Contains(title, sub) {
			return true
		}
	}
	for _, sub := range m.BodyContains {
		if strings.Contains(text, sub) {
			return true
		}
	}
	for _, sel := range m.Selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
