package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// OpenWatchPage creates a stealth tab and navigates it to the watch page.
func OpenWatchPage(ctx context.Context, mgr *Manager, pageURL string) (*rod.Page, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	// Force a layout pass so every node is attached before observation.
	if _, err := page.Context(navCtx).Eval(`() => { document.documentElement.offsetHeight; }`); err != nil {
		mgr.cfg.Logger.Warn("browser: layout force failed", "error", err)
	}

	return page, nil
}

// ClosePage closes a tab, ignoring pages that already went away.
func ClosePage(page *rod.Page) {
	if page == nil {
		return
	}
	_ = page.Close()
}
