// Package profile extracts the display name, biography, and outbound website
// from a rendered social profile page.
//
// Each field is resolved by an ordered list of strategies. A strategy is a
// pure function over the parsed document; the first one that yields a
// non-empty value wins. Selectors cover the X/Twitter layout first and the
// LinkedIn layout second.
package profile

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
)

// Strategy returns a candidate value for one field, or "" when it does not apply.
type Strategy func(doc *goquery.Document, page crawler.RenderedPage) string

// DefaultPlatformDomains are never reported as a profile's website.
var DefaultPlatformDomains = []string{"linkedin.com", "twitter.com", "x.com"}

// Config controls which strategies run for each field.
type Config struct {
	NameStrategies    []Strategy
	BioStrategies     []Strategy
	WebsiteStrategies []Strategy
	PlatformDomains   []string
}

// Extractor implements crawler.ProfileExtractor.
type Extractor struct {
	cfg Config
}

// New builds an Extractor. Empty strategy lists fall back to the defaults.
func New(cfg Config) *Extractor {
	if len(cfg.PlatformDomains) == 0 {
		cfg.PlatformDomains = DefaultPlatformDomains
	}
	if len(cfg.NameStrategies) == 0 {
		cfg.NameStrategies = []Strategy{
			TextOf(`div[data-testid="UserName"] span`),
			TextOf(`.text-heading-xlarge`),
		}
	}
	if len(cfg.BioStrategies) == 0 {
		cfg.BioStrategies = []Strategy{
			TextOf(`div[data-testid="UserDescription"]`),
			TextOf(`.pv-about__summary-text`),
		}
	}
	if len(cfg.WebsiteStrategies) == 0 {
		cfg.WebsiteStrategies = []Strategy{
			OutboundLink(cfg.PlatformDomains),
		}
	}
	return &Extractor{cfg: cfg}
}

// Extract parses the rendered HTML and resolves every field. Unparseable
// documents yield an empty PageContent rather than an error.
func (e *Extractor) Extract(page crawler.RenderedPage) crawler.PageContent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return crawler.PageContent{}
	}
	return crawler.PageContent{
		Name:    firstMatch(doc, page, e.cfg.NameStrategies),
		Bio:     firstMatch(doc, page, e.cfg.BioStrategies),
		Website: firstMatch(doc, page, e.cfg.WebsiteStrategies),
	}
}

func firstMatch(doc *goquery.Document, page crawler.RenderedPage, strategies []Strategy) string {
	for _, strategy := range strategies {
		if v := strings.TrimSpace(strategy(doc, page)); v != "" {
			return v
		}
	}
	return ""
}

// TextOf returns the trimmed text of the first element matching selector.
// Only the first element is considered, so an empty first match falls
// through to the next strategy.
func TextOf(selector string) Strategy {
	return func(doc *goquery.Document, _ crawler.RenderedPage) string {
		return strings.TrimSpace(doc.Find(selector).First().Text())
	}
}

// OutboundLink returns the first absolute http(s) link whose host is neither
// the profile page's own host nor one of the platform domains.
func OutboundLink(platformDomains []string) Strategy {
	return func(doc *goquery.Document, page crawler.RenderedPage) string {
		excluded := append([]string{}, platformDomains...)
		for _, raw := range []string{page.FinalURL, page.URL} {
			if host := crawler.Hostname(raw); host != "" {
				excluded = append(excluded, host)
			}
		}
		var found string
		doc.Find(`a[href^="http"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			href = strings.TrimSpace(href)
			if !crawler.IsHTTPURL(href) || isExcluded(crawler.Hostname(href), excluded) {
				return true
			}
			found = href
			return false
		})
		return found
	}
}

func isExcluded(host string, domains []string) bool {
	for _, d := range domains {
		if crawler.HostMatches(host, d) {
			return true
		}
	}
	return false
}
