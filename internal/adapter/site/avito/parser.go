package avito

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
	"github.com/fairyhunter13/scrape-fleet/pkg/textx"
)

// Parser extracts card fields with the selectors from the site profile.
type Parser struct {
	profile *Profile
}

// NewParser constructs a Parser over the given profile.
func NewParser(p *Profile) *Parser { return &Parser{profile: p} }

// ParseCard parses a listing card out of page HTML. A page without the
// card root is a parse error; individual fields tolerate absent nodes.
func (p *Parser) ParseCard(html string) (domain.CardData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.CardData{}, fmt.Errorf("parse card: %w", err)
	}
	if doc.Find(p.profile.Card.Root).Length() == 0 {
		return domain.CardData{}, fmt.Errorf("parse card: card root %q not found", p.profile.Card.Root)
	}

	card := domain.CardData{
		Title:            p.field(doc, "title"),
		Description:      p.field(doc, "description"),
		Characteristics:  p.characteristics(doc),
		Price:            p.field(doc, "price"),
		PublishedAt:      p.field(doc, "published_at"),
		SellerName:       p.field(doc, "seller_name"),
		SellerProfileURL: p.field(doc, "seller_profile_url"),
		LocationAddress:  p.field(doc, "location_address"),
		LocationMetro:    p.field(doc, "location_metro"),
		LocationRegion:   p.field(doc, "location_region"),
		ViewsTotal:       p.field(doc, "views_total"),
	}
	if raw := p.field(doc, "item_id"); raw != nil {
		if id, err := strconv.ParseInt(*raw, 10, 64); err == nil {
			card.ItemID = id
		}
	}
	return card, nil
}

// field resolves one profile field rule against the document, nil when
// the node is absent or yields no usable text.
func (p *Parser) field(doc *goquery.Document, name string) *string {
	rule, ok := p.profile.Card.Fields[name]
	if !ok || rule.Selector == "" {
		return nil
	}
	node := doc.Find(rule.Selector).First()
	if node.Length() == 0 {
		return nil
	}

	var raw string
	if rule.Attr != "" {
		raw, ok = node.Attr(rule.Attr)
		if !ok {
			return nil
		}
	} else {
		raw = node.Text()
	}

	// Descriptions keep their line structure; everything else is a
	// single line.
	var val string
	if name == "description" {
		val = textx.SanitizeText(raw)
	} else {
		val = textx.CollapseSpace(raw)
	}
	if rule.Digits {
		val = firstNumber(val)
	}
	if val == "" {
		return nil
	}
	return &val
}

// characteristics walks the params list splitting "Name: value" rows.
func (p *Parser) characteristics(doc *goquery.Document) map[string]string {
	sel := p.profile.Card.Characteristics
	if sel == "" {
		return nil
	}
	out := make(map[string]string)
	doc.Find(sel).Each(func(_ int, li *goquery.Selection) {
		line := textx.CollapseSpace(li.Text())
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if name == "" || value == "" {
			return
		}
		out[name] = value
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// firstNumber extracts the first digit run, swallowing the spaces the
// site uses as thousands separators ("1 500 (+5 сегодня)" -> "1500").
func firstNumber(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && isGroupSep(r) && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9':
			// separator inside the number, keep scanning
		case b.Len() > 0:
			return b.String()
		}
	}
	return b.String()
}

func isGroupSep(r rune) bool {
	return r == ' ' || r == ' ' || r == ' '
}
