package hostdom

import (
	"encoding/json"
	"fmt"

	"github.com/tabweave/tabweave/reconcile"
)

// wireSnapshot is the JSON shape emitted by agent.js snapshot().
type wireSnapshot struct {
	Theater          bool     `json:"theater"`
	Fullscreen       bool     `json:"fullscreen"`
	TwoColumn        bool     `json:"two_column"`
	EngagementPanel  bool     `json:"engagement_panel"`
	PlaylistExpanded bool     `json:"playlist_expanded"`
	Chat             string   `json:"chat"`
	ActiveTab        string   `json:"active_tab"`
	VisibleTabs      []string `json:"visible_tabs"`
}

func decodeSnapshot(raw []byte) (reconcile.HostSnapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return reconcile.HostSnapshot{}, fmt.Errorf("hostdom: decode snapshot: %w", err)
	}

	var chat reconcile.ChatState
	switch w.Chat {
	case "collapsed":
		chat = reconcile.ChatCollapsed
	case "expanded":
		chat = reconcile.ChatExpanded
	case "", "absent":
		chat = reconcile.ChatAbsent
	default:
		return reconcile.HostSnapshot{}, fmt.Errorf("hostdom: unknown chat state %q", w.Chat)
	}

	return reconcile.HostSnapshot{
		Theater:             w.Theater,
		Fullscreen:          w.Fullscreen,
		TwoColumn:           w.TwoColumn,
		EngagementPanelOpen: w.EngagementPanel,
		PlaylistExpanded:    w.PlaylistExpanded,
		Chat:                chat,
		ActiveTab:           w.ActiveTab,
		VisibleTabs:         w.VisibleTabs,
	}, nil
}

// agentEvent is one lifecycle record from the injected agent.
type agentEvent struct {
	Kind  string `json:"kind"` // attach | detach | change | resize
	Role  string `json:"role,omitempty"`
	XPath string `json:"xpath,omitempty"`
	Attr  string `json:"attr,omitempty"`
}

func parseAgentEvents(payload []byte) ([]agentEvent, error) {
	var events []agentEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, fmt.Errorf("hostdom: parse agent payload: %w", err)
	}
	return events, nil
}
