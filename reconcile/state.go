package reconcile

import "strings"

// StateWord is the 8-bit derived snapshot of which overlay modes are
// active. It is recomputed on demand from a HostSnapshot and never stored
// as a source of truth.
type StateWord uint8

const (
	FlagTheater          StateWord = 1 << 0
	FlagTabActive        StateWord = 1 << 1
	FlagChatCollapsed    StateWord = 1 << 2
	FlagChatExpanded     StateWord = 1 << 3
	FlagTwoColumn        StateWord = 1 << 4
	FlagEngagementPanel  StateWord = 1 << 5
	FlagFullscreen       StateWord = 1 << 6
	FlagPlaylistExpanded StateWord = 1 << 7
)

// ComputeState derives the state word from a host snapshot. Pure and
// synchronous; absent surfaces contribute zero bits. Bits 2 and 3 are
// mutually exclusive because they derive from the single chat tri-state.
func ComputeState(s HostSnapshot) StateWord {
	var w StateWord
	if s.Theater {
		w |= FlagTheater
	}
	if s.ActiveTab != "" {
		w |= FlagTabActive
	}
	switch s.Chat {
	case ChatCollapsed:
		w |= FlagChatCollapsed
	case ChatExpanded:
		w |= FlagChatExpanded
	}
	if s.TwoColumn {
		w |= FlagTwoColumn
	}
	if s.EngagementPanelOpen {
		w |= FlagEngagementPanel
	}
	if s.Fullscreen {
		w |= FlagFullscreen
	}
	if s.PlaylistExpanded {
		w |= FlagPlaylistExpanded
	}
	return w
}

// Has reports whether every bit of f is set.
func (w StateWord) Has(f StateWord) bool {
	return w&f == f
}

var flagNames = []struct {
	flag StateWord
	name string
}{
	{FlagTheater, "theater"},
	{FlagTabActive, "tab"},
	{FlagChatCollapsed, "chat-collapsed"},
	{FlagChatExpanded, "chat-expanded"},
	{FlagTwoColumn, "two-column"},
	{FlagEngagementPanel, "engagement"},
	{FlagFullscreen, "fullscreen"},
	{FlagPlaylistExpanded, "playlist"},
}

// String decodes the word for logs and the status surface.
func (w StateWord) String() string {
	if w == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if w.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
