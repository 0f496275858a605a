package hostdom

import (
	"context"
	"fmt"
	"time"

	"github.com/tabweave/tabweave/hostdom/internal/browser"
)

// BrowserConfig controls the Chromium instance backing a session.
type BrowserConfig struct {
	Remote          string // ws:// devtools URL; empty launches a local Chrome
	Headful         bool
	RecycleInterval time.Duration
	XvfbDisplay     string
}

// Session owns a browser, a watch-page tab, and the adapter attached to
// it. Close releases all three.
type Session struct {
	mgr     *browser.Manager
	Adapter *Adapter
}

// Attach launches (or connects to) Chrome, opens the watch page, and
// starts an adapter on it.
func Attach(ctx context.Context, url string, bcfg BrowserConfig, acfg Config) (*Session, error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       bcfg.Remote,
		Headful:         bcfg.Headful,
		RecycleInterval: bcfg.RecycleInterval,
		XvfbDisplay:     bcfg.XvfbDisplay,
		Logger:          acfg.Logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("hostdom: browser start: %w", err)
	}

	page, err := browser.OpenWatchPage(ctx, mgr, url)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("hostdom: open watch page: %w", err)
	}

	acfg.Page = page
	adapter := New(acfg)
	if err := adapter.Start(ctx); err != nil {
		browser.ClosePage(page)
		mgr.Close()
		return nil, err
	}

	return &Session{mgr: mgr, Adapter: adapter}, nil
}

// Close stops the adapter, the tab, and the browser.
func (s *Session) Close() {
	if s.Adapter != nil {
		s.Adapter.Stop()
		browser.ClosePage(s.Adapter.page)
	}
	if s.mgr != nil {
		s.mgr.Close()
	}
}
