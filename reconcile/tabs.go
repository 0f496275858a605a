package reconcile

import "context"

// Tab ids for the injected tab strip.
const (
	TabInfo     = "#tab-info"
	TabComments = "#tab-comments"
	TabVideos   = "#tab-videos"
	TabPlaylist = "#tab-playlist"
)

// SwitchToTab imperatively selects a tab. Empty id means "no tab" and is
// valid: the pane area empties but the last non-empty selection is kept as
// a restoration hint. This is the entry point for feature modules.
func (e *Engine) SwitchToTab(ctx context.Context, id string) {
	e.mu.Lock()
	e.selectTabLocked(ctx, id)
	notify := e.pendingNotify
	e.pendingNotify = nil
	e.mu.Unlock()
	e.fanoutTabChanged(notify)
}

// NotifyPanelVisible records that a feature module made a transient panel
// visible, updating the restoration hint. Accepted values: "chat",
// "playlist", "".
func (e *Engine) NotifyPanelVisible(panel string) {
	switch panel {
	case panelChat, panelPlaylist, "":
	default:
		e.logger.Warn("reconcile: unknown panel", "panel", panel)
		return
	}
	e.mu.Lock()
	e.lastPanel = panel
	e.mu.Unlock()
}

// OnTabChanged subscribes to tab selection changes. The callback receives
// the new tab id, empty for "no tab". Callbacks run outside the engine
// lock and may call back into the engine.
func (e *Engine) OnTabChanged(fn func(tabID string)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.tabSubs = append(e.tabSubs, fn)
}

// selectTabLocked applies a tab selection through the host and updates the
// tab memory. Called with e.mu held; notifications are queued rather than
// fired so subscribers never run under the lock.
func (e *Engine) selectTabLocked(ctx context.Context, id string) {
	e.tabTouched = true
	if err := e.host.SetActiveTab(ctx, id); err != nil {
		// Host shape mismatch: skip this cycle, keep running.
		e.logger.Warn("reconcile: set active tab failed", "tab", id, "error", err)
		return
	}
	if e.currentTab == id {
		return
	}
	e.currentTab = id
	if id != "" {
		e.lastTab = id
	}
	e.pendingNotify = append(e.pendingNotify, id)
}

// fanoutTabChanged delivers queued notifications. One failing subscriber
// never blocks the others; panics are contained per subscriber.
func (e *Engine) fanoutTabChanged(ids []string) {
	if len(ids) == 0 {
		return
	}
	e.subMu.Lock()
	subs := make([]func(string), len(e.tabSubs))
	copy(subs, e.tabSubs)
	e.subMu.Unlock()

	for _, id := range ids {
		for _, fn := range subs {
			e.safeNotify(fn, id)
		}
	}
}

func (e *Engine) safeNotify(fn func(string), id string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("reconcile: tab subscriber panicked", "panic", r)
		}
	}()
	fn(id)
}
