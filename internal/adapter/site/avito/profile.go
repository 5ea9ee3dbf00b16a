// Package avito adapts the site-facing ports to avito.ru: page-state
// detection, card parsing and the captcha flow. Every selector and
// marker lives in a YAML site profile, so selector churn on the site
// is a config change, not a code change.
package avito

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

//go:embed profile.yaml
var embeddedProfile []byte

// Profile binds page-state markers and card field selectors.
type Profile struct {
	States map[string]StateMarkers `yaml:"states"`
	Card   CardProfile             `yaml:"card"`
}

// StateMarkers is one state's match rules. Any hit claims the state.
type StateMarkers struct {
	Statuses      []int    `yaml:"statuses"`
	TitleContains []string `yaml:"title_contains"`
	BodyContains  []string `yaml:"body_contains"`
	Selectors     []string `yaml:"selectors"`
}

// CardProfile locates the card root and its fields.
type CardProfile struct {
	Root            string               `yaml:"root"`
	Fields          map[string]FieldRule `yaml:"fields"`
	Characteristics string               `yaml:"characteristics"`
}

// FieldRule extracts one card field: the text of the first selector
// match, the named attribute when attr is set, or the first number in
// the text when digits is set.
type FieldRule struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
	Digits   bool   `yaml:"digits"`
}

// LoadProfile parses the embedded profile, or the file at path when
// path is non-empty (the SITE_PROFILE_PATH override).
func LoadProfile(path string) (*Profile, error) {
	raw := embeddedProfile
	if path != "" {
		b, err := os.ReadFile(path) // #nosec G304 -- operator-provided profile path
		if err != nil {
			return nil, fmt.Errorf("site profile %s: %w", path, err)
		}
		raw = b
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("site profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if len(p.States) == 0 {
		return fmt.Errorf("%w: site profile has no states", domain.ErrInvalidArgument)
	}
	for _, required := range []domain.PageState{domain.StateCardFound, domain.StateRemoved, domain.StateCaptcha} {
		if _, ok := p.States[string(required)]; !ok {
			return fmt.Errorf("%w: site profile missing state %q", domain.ErrInvalidArgument, required)
		}
	}
	if p.Card.Root == "" {
		return fmt.Errorf("%w: site profile missing card root", domain.ErrInvalidArgument)
	}
	return nil
}
