package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Navigate loads url on the session page and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// SetUserAgent overrides the user agent for subsequent requests of the page.
func (s *Session) SetUserAgent(ctx context.Context, ua string) error {
	err := s.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: ua,
	})
	if err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	return nil
}

// Reload reloads the current page and waits for the load event.
func (s *Session) Reload(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load after reload: %w", err)
	}
	return nil
}

// WaitElement blocks until at least one element matches selector or ctx
// is done.
func (s *Session) WaitElement(ctx context.Context, selector string) error {
	if err := s.page.Context(ctx).WaitElementsMoreThan(selector, 0); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// VideoSource returns the media URL of the first element matching selector.
//
// The resolved currentSrc property is preferred, then src. Players that
// attach <source> children without populating either property are handled
// by parsing the rendered HTML. An empty string with a nil error means the
// element exists but carries no source.
func (s *Session) VideoSource(ctx context.Context, selector string) (string, error) {
	p := s.page.Context(ctx)

	el, err := p.Element(selector)
	if err != nil {
		return "", fmt.Errorf("find %q: %w", selector, err)
	}

	for _, prop := range []string{"currentSrc", "src"} {
		v, err := el.Property(prop)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", prop, err)
		}
		if src := jsonString(v); src != "" {
			return src, nil
		}
	}

	rawHTML, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	pageURL := ""
	if info, err := p.Info(); err == nil {
		pageURL = info.URL
	}
	src, err := sourceFromHTML(rawHTML, selector, pageURL)
	if err != nil {
		return "", err
	}
	if src != "" {
		slog.Debug("video source taken from html", "selector", selector)
	}
	return src, nil
}

// jsonString returns v as a string, or "" for null and undefined values.
func jsonString(v gson.JSON) string {
	if v.Nil() {
		return ""
	}
	if s, ok := v.Val().(string); ok {
		return s
	}
	return ""
}
