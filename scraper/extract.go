package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// sourceFromHTML finds the first element matching selector in rawHTML and
// returns its src attribute, or the src of its first <source> child.
// Relative sources are resolved against pageURL when it parses.
func sourceFromHTML(rawHTML, selector, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse page html: %w", err)
	}

	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return "", nil
	}

	src := strings.TrimSpace(el.AttrOr("src", ""))
	if src == "" {
		src = strings.TrimSpace(el.Find("source[src]").First().AttrOr("src", ""))
	}
	if src == "" {
		return "", nil
	}

	return resolveURL(pageURL, src), nil
}

// resolveURL resolves ref against base, returning ref unchanged when either
// side does not parse.
func resolveURL(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
