package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHost is an in-memory Host. Corrective actions mutate the held
// snapshot the way the real page would, and every call is recorded.
type fakeHost struct {
	mu    sync.Mutex
	snap  HostSnapshot
	calls []string

	snapErr     error
	setTabErr   error
	relocateErr error
	relocations []RelocationPlan

	// snapHold stalls the next Snapshot after it has read the attributes,
	// simulating a slow transport. snapStall is closed when the stall
	// begins. Both are consumed by a single Snapshot call.
	snapHold  chan struct{}
	snapStall chan struct{}
}

func newFakeHost() *fakeHost {
	return &fakeHost{}
}

func (h *fakeHost) setSnapshot(s HostSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snap = s
}

func (h *fakeHost) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *fakeHost) callLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

func (h *fakeHost) Snapshot(ctx context.Context) (HostSnapshot, error) {
	h.mu.Lock()
	snap, err := h.snap, h.snapErr
	hold, stall := h.snapHold, h.snapStall
	h.snapHold, h.snapStall = nil, nil
	h.mu.Unlock()
	if hold != nil {
		if stall != nil {
			close(stall)
		}
		<-hold
	}
	if err != nil {
		return HostSnapshot{}, err
	}
	return snap, nil
}

func (h *fakeHost) ClosePlaylist(ctx context.Context) error {
	h.record("close-playlist")
	h.mu.Lock()
	h.snap.PlaylistExpanded = false
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) CollapseChat(ctx context.Context) error {
	h.record("collapse-chat")
	h.mu.Lock()
	if h.snap.Chat == ChatExpanded {
		h.snap.Chat = ChatCollapsed
	}
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) ExpandChat(ctx context.Context) error {
	h.record("expand-chat")
	h.mu.Lock()
	if h.snap.Chat != ChatAbsent {
		h.snap.Chat = ChatExpanded
	}
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) CancelTheater(ctx context.Context) error {
	h.record("cancel-theater")
	h.mu.Lock()
	h.snap.Theater = false
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) CloseEngagementPanels(ctx context.Context) error {
	h.record("close-engagement")
	h.mu.Lock()
	h.snap.EngagementPanelOpen = false
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) SetActiveTab(ctx context.Context, id string) error {
	h.record("set-tab:" + id)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setTabErr != nil {
		return h.setTabErr
	}
	h.snap.ActiveTab = id
	return nil
}

func (h *fakeHost) Relocate(ctx context.Context, plan RelocationPlan) error {
	h.record("relocate:" + plan.Target)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.relocateErr != nil {
		return h.relocateErr
	}
	h.relocations = append(h.relocations, plan)
	return nil
}

func (h *fakeHost) FixLayout(ctx context.Context) error {
	h.record("fix-layout")
	return nil
}

func (h *fakeHost) RefreshTabWidgets(ctx context.Context) error {
	h.record("refresh-widgets")
	return nil
}

var errHostShape = errors.New("host shape mismatch")

// fakeSource is an in-memory LifecycleSource with fire helpers.
type fakeSource struct {
	mu       sync.Mutex
	attach   map[Role][]func(*Element)
	detach   map[Role][]func()
	change   map[Role][]func(string)
	onResize []func()
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		attach: make(map[Role][]func(*Element)),
		detach: make(map[Role][]func()),
		change: make(map[Role][]func(string)),
	}
}

func (s *fakeSource) OnAttach(role Role, fn func(*Element)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attach[role] = append(s.attach[role], fn)
}

func (s *fakeSource) OnDetach(role Role, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detach[role] = append(s.detach[role], fn)
}

func (s *fakeSource) OnChange(role Role, fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.change[role] = append(s.change[role], fn)
}

func (s *fakeSource) OnResize(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResize = append(s.onResize, fn)
}

func (s *fakeSource) fireAttach(role Role, el *Element) {
	s.mu.Lock()
	fns := s.attach[role]
	s.mu.Unlock()
	for _, fn := range fns {
		fn(el)
	}
}

func (s *fakeSource) fireDetach(role Role) {
	s.mu.Lock()
	fns := s.detach[role]
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *fakeSource) fireChange(role Role, attr string) {
	s.mu.Lock()
	fns := s.change[role]
	s.mu.Unlock()
	for _, fn := range fns {
		fn(attr)
	}
}

func (s *fakeSource) fireResize() {
	s.mu.Lock()
	fns := s.onResize
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// captureRecorder collects cycles for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	cycles []Cycle
}

func (r *captureRecorder) RecordCycle(c Cycle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, c)
}

func (r *captureRecorder) all() []Cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Cycle, len(r.cycles))
	copy(out, r.cycles)
	return out
}
