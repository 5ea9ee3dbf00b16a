package avito_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/site/avito"
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

func loadProfile(t *testing.T) *avito.Profile {
	t.Helper()
	p, err := avito.LoadProfile("")
	require.NoError(t, err)
	return p
}

func TestLoadProfileEmbeddedDefault(t *testing.T) {
	p := loadProfile(t)

	for _, state := range domain.DetectionPriority {
		assert.Contains(t, p.States, string(state), "embedded profile covers every priority state")
	}
	assert.Contains(t, p.States["proxy_block_403"].Statuses, 403)
	assert.Contains(t, p.States["proxy_auth_407"].Statuses, 407)
	assert.Contains(t, p.States["proxy_block_429"].Statuses, 429)
	assert.NotEmpty(t, p.States["captcha"].Selectors)
	assert.NotEmpty(t, p.States["removed"].BodyContains)

	assert.NotEmpty(t, p.Card.Root)
	assert.Equal(t, "content", p.Card.Fields["price"].Attr)
	assert.Equal(t, "href", p.Card.Fields["seller_profile_url"].Attr)
	assert.True(t, p.Card.Fields["views_total"].Digits)
	assert.True(t, p.Card.Fields["item_id"].Digits)
	assert.NotEmpty(t, p.Card.Characteristics)
}

func TestLoadProfileOverrideFile(t *testing.T) {
	const override = `
states:
  card_found:
    selectors: ["main.card"]
  removed:
    body_contains: ["gone"]
  captcha:
    selectors: ["div.challenge"]
card:
  root: "main.card"
  fields:
    title:
      selector: "main.card h1"
`
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(override), 0o600))

	p, err := avito.LoadProfile(path)
	require.NoError(t, err)

	assert.Len(t, p.States, 3, "override replaces the embedded profile entirely")
	assert.Equal(t, []string{"main.card"}, p.States["card_found"].Selectors)
	assert.Equal(t, "main.card", p.Card.Root)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := avito.LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site profile")
}

func TestLoadProfileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("states: [not: a: map"), 0o600))

	_, err := avito.LoadProfile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site profile")
}

func TestLoadProfileValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "no states",
			body: "card:\n  root: \"main\"\n",
		},
		{
			name: "missing captcha state",
			body: `
states:
  card_found:
    selectors: ["main"]
  removed:
    body_contains: ["gone"]
card:
  root: "main"
`,
		},
		{
			name: "missing card root",
			body: `
states:
  card_found:
    selectors: ["main"]
  removed:
    body_contains: ["gone"]
  captcha:
    selectors: ["div.challenge"]
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "profile.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o600))

			_, err := avito.LoadProfile(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}
