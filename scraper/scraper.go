package scraper

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/vidurl/config"
	"github.com/use-agent/vidurl/models"
)

// Session owns one browser and the single page every identifier is fetched
// on. The page is shared state: callers must not use a Session from more
// than one goroutine at a time.
type Session struct {
	launcher *launcher.Launcher // nil when attached to an external browser
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	ownPage  bool // page was created by us on an external browser

	closeOnce sync.Once
	closeErr  error
}

// New launches (or attaches to) a browser and takes its active page.
func New(browserCfg config.BrowserConfig, fetchCfg config.FetchConfig) (*Session, error) {
	s := &Session{}

	controlURL := browserCfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(browserCfg.Headless).
			NoSandbox(browserCfg.NoSandbox)

		if browserCfg.BrowserBin != "" {
			l = l.Bin(browserCfg.BrowserBin)
		}
		if browserCfg.Proxy != "" {
			l = l.Proxy(browserCfg.Proxy)
		}

		l.Set(flags.Flag("mute-audio"))
		l.Set(flags.Flag("autoplay-policy"), "no-user-gesture-required")
		l.Set(flags.Flag("disable-features"), "TranslateUI")
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))

		u, err := l.Launch()
		if err != nil {
			return nil, models.NewFetchError(
				models.ErrCodeBrowserCrash,
				"failed to launch browser",
				err,
			)
		}
		slog.Info("browser launched", "controlURL", u)
		s.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		s.cleanupLauncher()
		return nil, models.NewFetchError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}
	s.browser = browser

	page, err := s.acquirePage()
	if err != nil {
		_ = s.Close()
		return nil, models.NewFetchError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page",
			err,
		)
	}
	s.page = page

	s.router = setupHijack(page, fetchCfg.BlockedResourceTypes)
	slog.Debug("browser session ready",
		"external", s.launcher == nil,
		"blocked", fetchCfg.BlockedResourceTypes,
	)
	return s, nil
}

// acquirePage returns the browser's first page. On an external browser a
// fresh tab is opened instead so the user's own tabs are left alone.
func (s *Session) acquirePage() (*rod.Page, error) {
	if s.launcher != nil {
		pages, err := s.browser.Pages()
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		if p := pages.First(); p != nil {
			return p, nil
		}
	} else {
		s.ownPage = true
	}

	p, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return p, nil
}

// Close releases the page, the browser and the launcher. It is safe to call
// more than once; only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			if err := s.router.Stop(); err != nil {
				slog.Debug("hijack router stop failed", "error", err)
			}
		}

		if s.browser == nil {
			s.cleanupLauncher()
			return
		}

		if s.launcher == nil {
			// Attached to someone else's browser: close our tab only.
			if s.ownPage && s.page != nil {
				s.closeErr = s.page.Close()
			}
			slog.Info("detached from external browser")
			return
		}

		s.closeErr = s.browser.Close()
		s.cleanupLauncher()
		slog.Info("browser closed")
	})
	return s.closeErr
}

// cleanupLauncher kills whatever is left of the launched process and
// removes its user data dir. Cleanup alone blocks until the process exits.
func (s *Session) cleanupLauncher() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
}
