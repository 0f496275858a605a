package reconcile

import (
	"context"
	"sync"
	"testing"
)

func TestSwitchToTabUpdatesMemoryAndNotifies(t *testing.T) {
	e, host, _, _ := newTestEngine(t)

	var mu sync.Mutex
	var got []string
	e.OnTabChanged(func(id string) {
		mu.Lock()
		got = append(got, id)
		mu.Unlock()
	})

	e.SwitchToTab(context.Background(), TabComments)

	if e.CurrentTab() != TabComments {
		t.Fatalf("CurrentTab = %q, want %q", e.CurrentTab(), TabComments)
	}
	if e.lastTab != TabComments {
		t.Fatalf("lastTab = %q, want %q", e.lastTab, TabComments)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != TabComments {
		t.Fatalf("notifications = %v, want [%q]", got, TabComments)
	}
	calls := host.callLog()
	if len(calls) != 1 || calls[0] != "set-tab:"+TabComments {
		t.Fatalf("host calls = %v", calls)
	}
}

func TestSwitchToEmptyTabKeepsLastTab(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	e.SwitchToTab(ctx, TabVideos)
	e.SwitchToTab(ctx, "")

	if e.CurrentTab() != "" {
		t.Fatalf("CurrentTab = %q, want empty", e.CurrentTab())
	}
	if e.lastTab != TabVideos {
		t.Fatalf("lastTab = %q, want %q after deactivation", e.lastTab, TabVideos)
	}
}

func TestSwitchToSameTabDoesNotNotifyTwice(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	e.OnTabChanged(func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	e.SwitchToTab(ctx, TabInfo)
	e.SwitchToTab(ctx, TabInfo)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("notification count = %d, want 1", count)
	}
}

func TestSetActiveTabFailureKeepsMemory(t *testing.T) {
	e, host, _, _ := newTestEngine(t)
	ctx := context.Background()

	e.SwitchToTab(ctx, TabInfo)
	host.mu.Lock()
	host.setTabErr = errHostShape
	host.mu.Unlock()

	e.SwitchToTab(ctx, TabComments)

	if e.CurrentTab() != TabInfo {
		t.Fatalf("CurrentTab = %q, want %q after host failure", e.CurrentTab(), TabInfo)
	}
	if e.lastTab != TabInfo {
		t.Fatalf("lastTab = %q, want %q after host failure", e.lastTab, TabInfo)
	}
}

func TestTabSubscriberPanicIsIsolated(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	var mu sync.Mutex
	reached := false
	e.OnTabChanged(func(string) { panic("boom") })
	e.OnTabChanged(func(string) {
		mu.Lock()
		reached = true
		mu.Unlock()
	})

	e.SwitchToTab(context.Background(), TabPlaylist)

	mu.Lock()
	defer mu.Unlock()
	if !reached {
		t.Fatal("second subscriber not reached after first panicked")
	}
}

func TestTabSubscriberMayCallBackIn(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	var mu sync.Mutex
	var seen string
	e.OnTabChanged(func(id string) {
		// Subscribers run outside the engine lock, so queries from
		// inside a callback must not deadlock.
		mu.Lock()
		seen = e.CurrentTab()
		mu.Unlock()
		_ = e.State()
	})

	e.SwitchToTab(context.Background(), TabComments)

	mu.Lock()
	defer mu.Unlock()
	if seen != TabComments {
		t.Fatalf("callback saw CurrentTab = %q, want %q", seen, TabComments)
	}
}

func TestNotifyPanelVisible(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	e.NotifyPanelVisible(panelPlaylist)
	if e.LastPanel() != panelPlaylist {
		t.Fatalf("LastPanel = %q, want %q", e.LastPanel(), panelPlaylist)
	}

	e.NotifyPanelVisible("")
	if e.LastPanel() != "" {
		t.Fatalf("LastPanel = %q, want empty", e.LastPanel())
	}

	e.NotifyPanelVisible(panelChat)
	e.NotifyPanelVisible("sidebar")
	if e.LastPanel() != panelChat {
		t.Fatalf("LastPanel = %q, unknown value must be ignored", e.LastPanel())
	}
}
