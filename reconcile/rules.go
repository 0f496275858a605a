package reconcile

import "context"

// Transient panel names for the lastPanel restoration hint.
const (
	panelChat     = "chat"
	panelPlaylist = "playlist"
)

// Corrective action names, recorded per cycle.
const (
	actionNone            = "none"
	actionClosePlaylist   = "close-playlist"
	actionCollapseChat    = "collapse-chat"
	actionExpandChat      = "expand-chat"
	actionCancelTheater   = "cancel-theater"
	actionSelectTab       = "select-tab"
	actionRestoreSurface  = "restore-surface"
	actionCloseEngagement = "close-engagement"
)

type transitionResult struct {
	rule   string
	action string
}

// rule is one entry of the priority-ordered transition table. The guard
// compares prev and next on the rule's own bit mask only; when adds an
// optional memory/snapshot condition. The first matching rule fires one
// corrective action and evaluation stops.
type rule struct {
	name string
	mask StateWord
	from StateWord
	to   StateWord
	when func(e *Engine, prev, next StateWord, snap HostSnapshot) bool
	act  func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string
}

func (r *rule) matches(e *Engine, prev, next StateWord, snap HostSnapshot) bool {
	if prev&r.mask != r.from || next&r.mask != r.to {
		return false
	}
	if r.when != nil && !r.when(e, prev, next, snap) {
		return false
	}
	return true
}

// transitionRules is evaluated top to bottom; order is behavior, not style.
// Mutually exclusive surfaces (playlist, expanded chat, active tab) are
// arbitrated by whichever bit most recently transitioned 0→1: the new
// surface wins and the rule issues the action that closes the others.
var transitionRules = []rule{
	// Entering fullscreen suppresses every corrective action this cycle;
	// the host's own fullscreen UI takes precedence.
	{
		name: "fullscreen-enter",
		mask: FlagFullscreen,
		from: 0,
		to:   FlagFullscreen,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			return actionNone
		},
	},
	// Leaving fullscreen re-evaluates panel/tab state as if fullscreen had
	// never been entered. When two-column is lost in the same cycle, the
	// engagement panels are explicitly closed first.
	{
		name: "fullscreen-exit",
		mask: FlagFullscreen,
		from: FlagFullscreen,
		to:   0,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if prev.Has(FlagTwoColumn) && !next.Has(FlagTwoColumn) {
				if err := e.host.CloseEngagementPanels(ctx); err != nil {
					e.logger.Warn("reconcile: close engagement panels failed", "error", err)
				}
			}
			e.restoreSurfaceLocked(ctx, snap)
			return actionRestoreSurface
		},
	},
	// Entering theater while the playlist is expanded forces it closed.
	// The reverse transition does not reopen it.
	{
		name: "theater-enter-playlist-open",
		mask: FlagTheater | FlagPlaylistExpanded,
		from: FlagPlaylistExpanded,
		to:   FlagTheater | FlagPlaylistExpanded,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if err := e.host.ClosePlaylist(ctx); err != nil {
				e.logger.Warn("reconcile: close playlist failed", "error", err)
			}
			return actionClosePlaylist
		},
	},
	// Theater entry that collapses the secondary column while a tab pane
	// lives there: cancel theater so the tab keeps its column. Theater
	// entered with no tab active, or with the column intact, is left alone.
	{
		name: "theater-enter-tab-active",
		mask: FlagTheater | FlagTabActive,
		from: FlagTabActive,
		to:   FlagTheater | FlagTabActive,
		when: func(e *Engine, prev, next StateWord, snap HostSnapshot) bool {
			return prev.Has(FlagTwoColumn) && !next.Has(FlagTwoColumn)
		},
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if err := e.host.CancelTheater(ctx); err != nil {
				e.logger.Warn("reconcile: cancel theater failed", "error", err)
			}
			return actionCancelTheater
		},
	},
	// First-ever tab activation with no remembered tab: normalise the host's
	// selection to the first visible tab button, or to none.
	{
		name: "tab-activates-no-memory",
		mask: FlagTabActive | FlagTwoColumn,
		from: FlagTwoColumn,
		to:   FlagTabActive | FlagTwoColumn,
		when: func(e *Engine, prev, next StateWord, snap HostSnapshot) bool {
			return !e.started && e.lastTab == ""
		},
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if len(snap.VisibleTabs) > 0 {
				e.selectTabLocked(ctx, snap.VisibleTabs[0])
			} else {
				e.selectTabLocked(ctx, "")
			}
			return actionSelectTab
		},
	},
	// Playlist opened while chat was expanded: playlist wins.
	{
		name: "playlist-opens-chat-expanded",
		mask: FlagPlaylistExpanded | FlagChatExpanded,
		from: FlagChatExpanded,
		to:   FlagPlaylistExpanded | FlagChatExpanded,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if err := e.host.CollapseChat(ctx); err != nil {
				e.logger.Warn("reconcile: collapse chat failed", "error", err)
			}
			e.lastPanel = panelPlaylist
			return actionCollapseChat
		},
	},
	// Playlist opened while a tab was active: playlist wins.
	{
		name: "playlist-opens-tab-active",
		mask: FlagPlaylistExpanded | FlagTabActive,
		from: FlagTabActive,
		to:   FlagPlaylistExpanded | FlagTabActive,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			e.selectTabLocked(ctx, "")
			e.lastPanel = panelPlaylist
			return actionSelectTab
		},
	},
	// Playlist opened with nothing else visible: bookkeeping only.
	{
		name: "playlist-opens",
		mask: FlagPlaylistExpanded,
		from: 0,
		to:   FlagPlaylistExpanded,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			e.lastPanel = panelPlaylist
			return actionNone
		},
	},
	// Chat expanded while the playlist was open: chat wins.
	{
		name: "chat-expands-playlist-open",
		mask: FlagChatExpanded | FlagPlaylistExpanded,
		from: FlagPlaylistExpanded,
		to:   FlagChatExpanded | FlagPlaylistExpanded,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if err := e.host.ClosePlaylist(ctx); err != nil {
				e.logger.Warn("reconcile: close playlist failed", "error", err)
			}
			e.lastPanel = panelChat
			return actionClosePlaylist
		},
	},
	// Chat expanded while a tab was active: chat wins.
	{
		name: "chat-expands-tab-active",
		mask: FlagChatExpanded | FlagTabActive,
		from: FlagTabActive,
		to:   FlagChatExpanded | FlagTabActive,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			e.selectTabLocked(ctx, "")
			e.lastPanel = panelChat
			return actionSelectTab
		},
	},
	// Chat expanded with nothing else visible: bookkeeping only.
	{
		name: "chat-expands",
		mask: FlagChatExpanded,
		from: 0,
		to:   FlagChatExpanded,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			e.lastPanel = panelChat
			return actionNone
		},
	},
	// A tab activated while chat was expanded: tab wins.
	{
		name: "tab-activates-chat-expanded",
		mask: FlagTabActive | FlagChatExpanded,
		from: FlagChatExpanded,
		to:   FlagTabActive | FlagChatExpanded,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if err := e.host.CollapseChat(ctx); err != nil {
				e.logger.Warn("reconcile: collapse chat failed", "error", err)
			}
			e.lastPanel = ""
			return actionCollapseChat
		},
	},
	// A tab activated while the playlist was open: tab wins.
	{
		name: "tab-activates-playlist-open",
		mask: FlagTabActive | FlagPlaylistExpanded,
		from: FlagPlaylistExpanded,
		to:   FlagTabActive | FlagPlaylistExpanded,
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			if err := e.host.ClosePlaylist(ctx); err != nil {
				e.logger.Warn("reconcile: close playlist failed", "error", err)
			}
			e.lastPanel = ""
			return actionClosePlaylist
		},
	},
	// The playlist disappeared by an external event (not engine arbitration)
	// and nothing else is visible: restore the previous surface.
	{
		name: "playlist-closes-externally",
		mask: FlagPlaylistExpanded,
		from: FlagPlaylistExpanded,
		to:   0,
		when: func(e *Engine, prev, next StateWord, snap HostSnapshot) bool {
			return e.lastPanel == panelPlaylist &&
				!next.Has(FlagTabActive) && !next.Has(FlagChatExpanded) &&
				!next.Has(FlagFullscreen)
		},
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			e.lastPanel = ""
			e.restoreSurfaceLocked(ctx, snap)
			return actionRestoreSurface
		},
	},
	// Expanded chat disappeared externally and nothing else is visible:
	// restore the previous surface.
	{
		name: "chat-closes-externally",
		mask: FlagChatExpanded,
		from: FlagChatExpanded,
		to:   0,
		when: func(e *Engine, prev, next StateWord, snap HostSnapshot) bool {
			return e.lastPanel == panelChat &&
				!next.Has(FlagTabActive) && !next.Has(FlagPlaylistExpanded) &&
				!next.Has(FlagFullscreen)
		},
		act: func(ctx context.Context, e *Engine, prev, next StateWord, snap HostSnapshot) string {
			e.lastPanel = ""
			e.restoreSurfaceLocked(ctx, snap)
			return actionRestoreSurface
		},
	},
}

// applyTransition evaluates the rule table against (prev, next): the first
// matching rule fires one corrective action and evaluation returns, then
// the fixed side-channel checks always run. A cycle where no masked bit
// changed is guaranteed to fire nothing; the table is idempotent once
// converged.
// Called with e.mu held.
func (e *Engine) applyTransition(ctx context.Context, prev, next StateWord, snap HostSnapshot) transitionResult {
	var res transitionResult
	e.tabTouched = false

	for i := range transitionRules {
		r := &transitionRules[i]
		if r.matches(e, prev, next, snap) {
			res.rule = r.name
			res.action = r.act(ctx, e, prev, next, snap)
			break
		}
	}

	// Keep the tab memory in sync with what the host actually shows, even
	// on cycles where no rule fired (e.g. the user clicked a tab button).
	// Skipped when a rule already selected a tab this cycle: the snapshot
	// predates that selection.
	if !e.tabTouched {
		if next.Has(FlagTabActive) {
			if snap.ActiveTab != "" && snap.ActiveTab != e.currentTab {
				e.currentTab = snap.ActiveTab
				e.lastTab = snap.ActiveTab
			}
		} else if e.currentTab != "" {
			e.currentTab = ""
		}
	}

	// Side channels: always run, regardless of a primary match.
	if (prev^next)&FlagTwoColumn != 0 {
		e.requestPanelFix()
		e.requestLayoutFix()
	}
	if e.resizeWhileHidden && next.Has(FlagTabActive) {
		e.resizeWhileHidden = false
		e.requestWidgetRefresh()
	}

	return res
}
