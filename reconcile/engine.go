// Package reconcile implements the panel reconciliation engine for the
// watch-page tab layout. It tracks a small set of host-owned surfaces
// (chat, comments, playlist, related, description) as the host SPA creates
// and destroys them, derives an 8-bit state word from host attributes,
// and issues the minimal corrective action whenever that state changes.
//
// The engine observes and corrects, it does not render. All elements stay
// host-owned: the engine only repositions them (identity-preserving) and
// toggles a small set of engine-only attributes via the Host capability
// interface. Adapters (hostdom for CDP, fakes for tests) provide Host and
// LifecycleSource; the engine never depends on a concrete host framework.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabweave/tabweave/internal/idgen"
	"github.com/tabweave/tabweave/reconcile/internal/lockgen"
	"github.com/tabweave/tabweave/reconcile/internal/registry"
)

// Lock names for the generation-token manager. Change notifications use a
// role-specific name so bursts on one surface coalesce without cancelling
// pending work for another.
const (
	lockReconcile = "reconcile"
	lockPanelFix  = "panelfix"
	lockLayoutFix = "layoutfix"
	lockRefresh   = "refresh"
)

// Cycle is one reconciliation: compute-state followed by apply-transition.
// Emitted to the CycleRecorder for the journal and status surfaces.
type Cycle struct {
	ID       string
	Prev     StateWord
	Next     StateWord
	Rule     string // primary rule that fired; empty on a no-op cycle
	Action   string // corrective action issued
	Duration time.Duration
	Stale    bool // continuation dropped by token staleness
}

// CycleRecorder receives completed cycles. Implementations must not block;
// the journal buffers and drops on overflow.
type CycleRecorder interface {
	RecordCycle(c Cycle)
}

// Config for creating an Engine.
type Config struct {
	Host     Host
	Source   LifecycleSource
	Recorder CycleRecorder // optional
	Logger   *slog.Logger
	NewID    idgen.Generator
}

// Engine owns all reconciliation state: the previous state word, the
// last-tab and last-panel memory, and the rearrange-suppression flag.
// Create one per observed page; instances are fully independent.
type Engine struct {
	host     Host
	source   LifecycleSource
	recorder CycleRecorder
	logger   *slog.Logger
	newID    idgen.Generator

	locks    *lockgen.Manager
	elements *registry.Table[Role, Element]

	ctx    context.Context
	cancel context.CancelFunc

	// rearranging suppresses change notifications triggered by the engine's
	// own structural mutations.
	rearranging atomic.Bool

	// cycleMu serializes snapshot-read with transition-apply. Tokens only
	// order cycles under the same lock name; without this a cycle for one
	// role could apply attributes read before a fresher cycle for another
	// role already applied, regressing the state word.
	cycleMu sync.Mutex

	mu         sync.Mutex
	prev       StateWord
	started    bool   // at least one reconciliation completed
	currentTab string // active tab id, empty for none
	lastTab    string // last non-empty selection, restoration hint
	lastPanel  string // "chat" | "playlist" | "", most recently open panel
	// resizeWhileHidden is set when a viewport resize happens while no tab
	// pane is visible; the next cycle that shows a tab schedules a cosmetic
	// widget refresh.
	resizeWhileHidden bool
	pendingNotify     []string
	// tabTouched marks that the current cycle already selected a tab, so
	// the end-of-cycle memory sync must not overwrite it.
	tabTouched bool

	subMu   sync.Mutex
	tabSubs []func(tabID string)
}

// New creates an Engine from configuration. Host and Source are required.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Prefixed("cyc_", idgen.Default)
	}
	return &Engine{
		host:     cfg.Host,
		source:   cfg.Source,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		newID:    cfg.NewID,
		locks:    lockgen.New(),
		elements: registry.New[Role, Element](),
	}
}

// Start installs the change-notification subscriptions and performs the
// initial layout assembly and reconciliation.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	for _, role := range Roles {
		role := role
		e.source.OnAttach(role, func(el *Element) { e.handleAttach(role, el) })
		e.source.OnDetach(role, func() { e.handleDetach(role) })
		e.source.OnChange(role, func(attr string) { e.handleChange(role, attr) })
	}
	e.source.OnChange(RoleRoot, func(attr string) { e.handleChange(RoleRoot, attr) })
	e.source.OnResize(e.handleResize)

	e.requestLayoutFix()
	e.Reconcile(e.ctx)

	e.logger.Info("reconcile: engine started")
	return nil
}

// Stop cancels all pending continuations. Tokens already issued go stale,
// so in-flight work exits silently.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.logger.Info("reconcile: engine stopped")
}

// Element returns the tracked element for role, or nil when the role is
// currently unavailable.
func (e *Engine) Element(role Role) *Element {
	return e.elements.Get(role)
}

// IsTheaterMode reports whether the last reconciled state had theater mode.
func (e *Engine) IsTheaterMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prev.Has(FlagTheater)
}

// IsTwoColumnLayout reports whether the last reconciled state had the
// two-column layout.
func (e *Engine) IsTwoColumnLayout() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prev.Has(FlagTwoColumn)
}

// State returns the last reconciled state word.
func (e *Engine) State() StateWord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prev
}

// CurrentTab returns the active tab id, empty for none.
func (e *Engine) CurrentTab() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTab
}

// LastPanel returns the most recently open transient panel hint.
func (e *Engine) LastPanel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPanel
}

// --- change notification handlers ---

func (e *Engine) handleAttach(role Role, el *Element) {
	e.elements.Set(role, el)
	e.logger.Debug("reconcile: element attached", "role", role, "xpath", el.XPath)
	// The host may have re-rendered the panel back to its default location;
	// re-assert the tab assembly, then reconcile.
	e.requestLayoutFix()
	e.requestReconcile(lockReconcile + ":" + string(role))
}

func (e *Engine) handleDetach(role Role) {
	e.elements.Clear(role)
	e.logger.Debug("reconcile: element detached", "role", role)
	e.requestReconcile(lockReconcile + ":" + string(role))
}

func (e *Engine) handleChange(role Role, attr string) {
	if e.rearranging.Load() {
		// Our own relocation caused this mutation.
		return
	}
	e.requestReconcile(lockReconcile + ":" + string(role))
}

func (e *Engine) handleResize() {
	e.mu.Lock()
	if !e.prev.Has(FlagTabActive) {
		e.resizeWhileHidden = true
	}
	e.mu.Unlock()
	e.requestReconcile(lockReconcile + ":resize")
}

// --- reconciliation cycle ---

// requestReconcile issues a fresh token under name and schedules a cycle.
// Rapid bursts coalesce: only the continuation holding the newest token
// produces side effects. There is no timer-based debounce.
func (e *Engine) requestReconcile(name string) {
	tok := e.locks.Next(name)
	go e.runCycle(name, tok)
}

func (e *Engine) runCycle(name string, tok lockgen.Token) {
	if e.ctx == nil || e.ctx.Err() != nil {
		return
	}
	if !e.locks.Live(name, tok) {
		return
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	// A newer request for this name may have arrived while this one waited
	// for the cycle lock.
	if !e.locks.Live(name, tok) {
		e.record(Cycle{Stale: true})
		return
	}

	snap, err := e.host.Snapshot(e.ctx)
	if err != nil {
		e.logger.Warn("reconcile: snapshot failed, skipping cycle", "error", err)
		return
	}

	// Staleness check immediately before observable side effects.
	if !e.locks.Live(name, tok) {
		e.record(Cycle{Stale: true})
		return
	}

	e.apply(e.ctx, snap)
}

// Reconcile runs one synchronous cycle against a fresh snapshot.
func (e *Engine) Reconcile(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	snap, err := e.host.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("reconcile: snapshot failed, skipping cycle", "error", err)
		return
	}
	e.apply(ctx, snap)
}

// apply computes the next state word and runs the transition table. All
// engine state mutation happens under mu; tab-changed fan-out is deferred
// until after the lock is released so subscribers may call back in.
func (e *Engine) apply(ctx context.Context, snap HostSnapshot) {
	start := time.Now()

	e.mu.Lock()
	next := ComputeState(snap)
	prev := e.prev
	res := e.applyTransition(ctx, prev, next, snap)
	e.prev = next
	e.started = true
	notify := e.pendingNotify
	e.pendingNotify = nil
	e.mu.Unlock()

	e.fanoutTabChanged(notify)

	e.record(Cycle{
		Prev:     prev,
		Next:     next,
		Rule:     res.rule,
		Action:   res.action,
		Duration: time.Since(start),
	})

	if res.rule != "" {
		e.logger.Debug("reconcile: transition",
			"prev", prev.String(), "next", next.String(),
			"rule", res.rule, "action", res.action)
	}
}

func (e *Engine) record(c Cycle) {
	if e.recorder == nil {
		return
	}
	if c.ID == "" {
		c.ID = e.newID()
	}
	e.recorder.RecordCycle(c)
}

// --- relocation ---

// Relocate performs an identity-preserving move with external reactions
// suppressed. The suppression flag is restored on every path, including a
// panicking host, so a failed relocation never deadlocks future cycles.
func (e *Engine) Relocate(ctx context.Context, plan RelocationPlan) error {
	e.rearranging.Store(true)
	defer e.rearranging.Store(false)

	if err := e.host.Relocate(ctx, plan); err != nil {
		e.logger.Warn("reconcile: relocation failed",
			"target", plan.Target, "container", plan.Container, "error", err)
		return err
	}
	return nil
}

// --- deferred side-channel work ---

// requestLayoutFix schedules a full re-assertion of the tab assembly.
func (e *Engine) requestLayoutFix() {
	tok := e.locks.Next(lockLayoutFix)
	go func() {
		if e.ctx == nil || e.ctx.Err() != nil || !e.locks.Live(lockLayoutFix, tok) {
			return
		}
		e.rearranging.Store(true)
		defer e.rearranging.Store(false)
		if err := e.host.FixLayout(e.ctx); err != nil {
			e.logger.Warn("reconcile: layout fix failed", "error", err)
		}
	}()
}

// requestPanelFix schedules a re-derivation of the single surface (panel or
// tab) that should be visible, based on the restoration memory.
func (e *Engine) requestPanelFix() {
	tok := e.locks.Next(lockPanelFix)
	go func() {
		if e.ctx == nil || e.ctx.Err() != nil || !e.locks.Live(lockPanelFix, tok) {
			return
		}
		e.cycleMu.Lock()
		defer e.cycleMu.Unlock()
		snap, err := e.host.Snapshot(e.ctx)
		if err != nil {
			e.logger.Warn("reconcile: panel fix snapshot failed", "error", err)
			return
		}
		if !e.locks.Live(lockPanelFix, tok) {
			return
		}
		e.mu.Lock()
		e.restoreSurfaceLocked(e.ctx, snap)
		notify := e.pendingNotify
		e.pendingNotify = nil
		e.mu.Unlock()
		e.fanoutTabChanged(notify)
	}()
}

// requestWidgetRefresh schedules the cosmetic reflow of chip/expander
// widgets inside the now-visible tab.
func (e *Engine) requestWidgetRefresh() {
	tok := e.locks.Next(lockRefresh)
	go func() {
		if e.ctx == nil || e.ctx.Err() != nil || !e.locks.Live(lockRefresh, tok) {
			return
		}
		if err := e.host.RefreshTabWidgets(e.ctx); err != nil {
			e.logger.Warn("reconcile: widget refresh failed", "error", err)
		}
	}()
}

// restoreSurfaceLocked brings back whichever of {chat, tab} was most
// recently active, after a mutually-exclusive surface disappeared. The
// playlist cannot be reopened by the engine, so a playlist hint falls
// through to the tab path.
func (e *Engine) restoreSurfaceLocked(ctx context.Context, snap HostSnapshot) {
	if e.lastPanel == panelChat && snap.Chat != ChatAbsent {
		if err := e.host.ExpandChat(ctx); err != nil {
			e.logger.Warn("reconcile: restore chat failed", "error", err)
		}
		return
	}
	switch {
	case e.lastTab != "":
		e.selectTabLocked(ctx, e.lastTab)
	case len(snap.VisibleTabs) > 0:
		e.selectTabLocked(ctx, snap.VisibleTabs[0])
	default:
		e.selectTabLocked(ctx, "")
	}
}
