package reconcile

import (
	"context"
	"testing"
	"time"
)

func startTestEngine(t *testing.T) (*Engine, *fakeHost, *fakeSource, *captureRecorder) {
	t.Helper()
	host := newFakeHost()
	src := newFakeSource()
	rec := &captureRecorder{}
	e := New(Config{Host: host, Source: src, Recorder: rec, Logger: discardLogger()})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(e.Stop)
	return e, host, src, rec
}

func waitForCycles(t *testing.T, rec *captureRecorder, n int) []Cycle {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cycles := rec.all(); len(cycles) >= n {
			return cycles
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d cycles; have %d", n, len(rec.all()))
	return nil
}

func TestStartInstallsSubscriptionsAndReconciles(t *testing.T) {
	e, host, src, rec := startTestEngine(t)

	waitForCycles(t, rec, 1) // initial reconcile
	waitForCall(t, host, "fix-layout")

	// An attach registers the element and re-asserts the layout.
	el := &Element{Role: RoleComments, XPath: "/html/body/div[2]"}
	src.fireAttach(RoleComments, el)

	if got := e.Element(RoleComments); got != el {
		t.Fatalf("Element(comments) = %v, want %v", got, el)
	}

	src.fireDetach(RoleComments)
	if got := e.Element(RoleComments); got != nil {
		t.Fatalf("Element(comments) after detach = %v, want nil", got)
	}
}

func TestChangeNotificationTriggersCycle(t *testing.T) {
	_, host, src, rec := startTestEngine(t)
	before := len(waitForCycles(t, rec, 1))

	host.setSnapshot(HostSnapshot{TwoColumn: true, PlaylistExpanded: true})
	src.fireChange(RolePlaylist, "collapsed")

	cycles := waitForCycles(t, rec, before+1)
	last := cycles[len(cycles)-1]
	if !last.Next.Has(FlagPlaylistExpanded) {
		t.Errorf("cycle next = %s, want playlist bit set", last.Next)
	}
}

// Reconciling twice against an unchanged host is a no-op the second time:
// idempotence once converged.
func TestReconcileConvergence(t *testing.T) {
	e, host, _, rec := newTestEngine(t)

	host.setSnapshot(HostSnapshot{Chat: ChatExpanded, PlaylistExpanded: true})
	e.Reconcile(e.ctx)

	first := rec.all()
	if len(first) != 1 || first[0].Rule == "" {
		t.Fatalf("first cycle = %+v, want a fired rule", first)
	}

	// Freeze the host state the corrective action produced and re-run.
	e.Reconcile(e.ctx)
	e.Reconcile(e.ctx)
	cycles := rec.all()
	for _, c := range cycles[1:] {
		if c.Rule != "" {
			t.Errorf("converged cycle fired rule %q (%s -> %s)", c.Rule, c.Prev, c.Next)
		}
	}
}

func TestStaleTokenDropsContinuation(t *testing.T) {
	e, host, _, rec := newTestEngine(t)
	host.setSnapshot(HostSnapshot{PlaylistExpanded: true, Chat: ChatExpanded})

	const name = lockReconcile + ":chat"
	tok := e.locks.Next(name)
	e.locks.Next(name) // a newer token makes tok stale

	e.runCycle(name, tok)

	if calls := host.callLog(); len(calls) != 0 {
		t.Errorf("stale continuation produced side effects: %v", calls)
	}
	for _, c := range rec.all() {
		if !c.Stale && c.Rule != "" {
			t.Errorf("stale continuation recorded live cycle: %+v", c)
		}
	}
}

func TestLiveTokenRuns(t *testing.T) {
	e, host, _, _ := newTestEngine(t)
	host.setSnapshot(HostSnapshot{TwoColumn: true})

	const name = lockReconcile + ":root"
	tok := e.locks.Next(name)
	e.runCycle(name, tok)

	if !e.IsTwoColumnLayout() {
		t.Error("live continuation did not reconcile state")
	}
}

// A snapshot stalled in transit must not overwrite the state a fresher
// cycle for another role already applied.
func TestSlowSnapshotCannotOverwriteFresherState(t *testing.T) {
	e, host, src, rec := startTestEngine(t)
	waitForCycles(t, rec, 1)

	hold := make(chan struct{})
	stalled := make(chan struct{})
	host.mu.Lock()
	host.snapHold = hold
	host.snapStall = stalled
	host.mu.Unlock()

	// This cycle reads the old attributes, then stalls before returning.
	src.fireChange(RoleChat, "collapsed")
	<-stalled

	// A fresher read for another surface arrives while the first is stuck.
	base := len(rec.all())
	host.setSnapshot(HostSnapshot{TwoColumn: true, PlaylistExpanded: true})
	src.fireChange(RolePlaylist, "collapsed")
	close(hold)

	waitForCycles(t, rec, base+2)
	want := FlagTwoColumn | FlagPlaylistExpanded
	if got := e.State(); got != want {
		t.Fatalf("state = %s, want %s (stalled read applied last)", got, want)
	}
	if !e.IsTwoColumnLayout() {
		t.Error("IsTwoColumnLayout = false on a two-column page")
	}
}

func TestSnapshotErrorSkipsCycle(t *testing.T) {
	e, host, _, rec := newTestEngine(t)
	host.mu.Lock()
	host.snapErr = errHostShape
	host.mu.Unlock()

	e.Reconcile(e.ctx)

	if len(rec.all()) != 0 {
		t.Errorf("cycle recorded despite snapshot failure: %+v", rec.all())
	}
	if calls := host.callLog(); len(calls) != 0 {
		t.Errorf("host calls despite snapshot failure: %v", calls)
	}
}

func TestResizeWhileHiddenSchedulesWidgetRefresh(t *testing.T) {
	e, host, src, _ := startTestEngine(t)

	// No tab is active; a resize sets the pending flag.
	src.fireResize()

	// A tab becomes visible on the next cycle.
	host.setSnapshot(HostSnapshot{TwoColumn: true, ActiveTab: TabInfo})
	src.fireChange(RoleRoot, "current-tab")

	waitForCall(t, host, "refresh-widgets")
	e.mu.Lock()
	pending := e.resizeWhileHidden
	e.mu.Unlock()
	if pending {
		t.Error("resizeWhileHidden not cleared after refresh")
	}
}

func TestStateQueries(t *testing.T) {
	e, host, _, _ := newTestEngine(t)
	host.setSnapshot(HostSnapshot{Theater: true, TwoColumn: true})
	e.Reconcile(e.ctx)

	if !e.IsTheaterMode() {
		t.Error("IsTheaterMode = false")
	}
	if !e.IsTwoColumnLayout() {
		t.Error("IsTwoColumnLayout = false")
	}
	if got := e.State(); got != FlagTheater|FlagTwoColumn {
		t.Errorf("State = %s", got)
	}
}
