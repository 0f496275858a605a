// Package hostdom adapts a live watch page, driven over CDP via Rod, to
// the engine's Host and LifecycleSource interfaces. The page-side half
// lives in agent.js; this half evaluates agent calls and receives its
// lifecycle events over a Runtime binding.
package hostdom

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/tabweave/tabweave/reconcile"
)

//go:embed agent.js
var agentJS []byte

const bindingName = "__tabweave_binding"

// RoleSpec maps one tracked role to its page selectors and extra watched
// attributes.
type RoleSpec struct {
	Selectors  []string `json:"selectors"`
	Attributes []string `json:"attributes,omitempty"`
}

// Config for creating an Adapter.
type Config struct {
	Page  *rod.Page
	Roles map[string]RoleSpec

	// DebounceWindow batches agent events page-side before crossing the
	// binding. Default 250ms.
	DebounceWindow time.Duration
	DebounceMax    int

	// SettleWait bounds the post-relocation wait before attributes are
	// trusted again. Clamped to 300ms.
	SettleWait time.Duration

	Logger *slog.Logger
}

// Adapter implements reconcile.Host and reconcile.LifecycleSource over a
// single watch page.
type Adapter struct {
	page       *rod.Page
	roles      map[string]RoleSpec
	settleWait time.Duration
	debounce   time.Duration
	maxBuffer  int
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	onAttach map[reconcile.Role][]func(*reconcile.Element)
	onDetach map[reconcile.Role][]func()
	onChange map[reconcile.Role][]func(string)
	onResize []func()
}

// New creates an adapter for the given page. Call Start before handing it
// to the engine.
func New(cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 250 * time.Millisecond
	}
	if cfg.DebounceMax <= 0 {
		cfg.DebounceMax = 1000
	}
	if cfg.SettleWait <= 0 || cfg.SettleWait > 300*time.Millisecond {
		cfg.SettleWait = 300 * time.Millisecond
	}
	return &Adapter{
		page:       cfg.Page,
		roles:      cfg.Roles,
		settleWait: cfg.SettleWait,
		debounce:   cfg.DebounceWindow,
		maxBuffer:  cfg.DebounceMax,
		logger:     cfg.Logger,
		onAttach:   make(map[reconcile.Role][]func(*reconcile.Element)),
		onDetach:   make(map[reconcile.Role][]func()),
		onChange:   make(map[reconcile.Role][]func(string)),
	}
}

// Start installs the binding and injects the agent. The engine's Start
// must run after this so the initial attach burst reaches it.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := (proto.RuntimeAddBinding{Name: bindingName}.Call(a.page)); err != nil {
		a.logger.Warn("hostdom: addBinding failed (may already exist)", "error", err)
	}
	go a.listenBinding()

	cfgJSON, err := json.Marshal(map[string]any{
		"roles":       a.roles,
		"debounce_ms": a.debounce.Milliseconds(),
		"max_buffer":  a.maxBuffer,
	})
	if err != nil {
		return fmt.Errorf("hostdom: marshal agent config: %w", err)
	}
	if _, err := a.page.Eval(fmt.Sprintf("window.__tabweave_config = %s;", cfgJSON)); err != nil {
		return fmt.Errorf("hostdom: set agent config: %w", err)
	}

	if _, err := a.page.Eval(string(agentJS)); err != nil {
		return fmt.Errorf("hostdom: inject agent: %w", err)
	}

	a.logger.Info("hostdom: agent injected")
	return nil
}

// Stop detaches from the page. The agent stays injected; a fresh Start on
// a new adapter is the recovery path after browser recycle.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// --- LifecycleSource ---

func (a *Adapter) OnAttach(role reconcile.Role, fn func(*reconcile.Element)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onAttach[role] = append(a.onAttach[role], fn)
}

func (a *Adapter) OnDetach(role reconcile.Role, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDetach[role] = append(a.onDetach[role], fn)
}

func (a *Adapter) OnChange(role reconcile.Role, fn func(string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange[role] = append(a.onChange[role], fn)
}

func (a *Adapter) OnResize(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onResize = append(a.onResize, fn)
}

// listenBinding receives agent batches via Runtime.bindingCalled.
func (a *Adapter) listenBinding() {
	a.page.Context(a.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		events, err := parseAgentEvents([]byte(e.Payload))
		if err != nil {
			a.logger.Warn("hostdom: bad agent payload", "error", err)
			return
		}
		for _, evt := range events {
			a.dispatch(evt)
		}
	})()
}

func (a *Adapter) dispatch(evt agentEvent) {
	role := reconcile.Role(evt.Role)

	a.mu.Lock()
	var attach []func(*reconcile.Element)
	var detach []func()
	var change []func(string)
	var resize []func()
	switch evt.Kind {
	case "attach":
		attach = append(attach, a.onAttach[role]...)
	case "detach":
		detach = append(detach, a.onDetach[role]...)
	case "change":
		change = append(change, a.onChange[role]...)
	case "resize":
		resize = append(resize, a.onResize...)
	}
	a.mu.Unlock()

	switch evt.Kind {
	case "attach":
		el := &reconcile.Element{Role: role, XPath: evt.XPath}
		for _, fn := range attach {
			fn(el)
		}
	case "detach":
		for _, fn := range detach {
			fn()
		}
	case "change":
		for _, fn := range change {
			fn(evt.Attr)
		}
	case "resize":
		for _, fn := range resize {
			fn()
		}
	default:
		a.logger.Debug("hostdom: unknown agent event", "kind", evt.Kind)
	}
}

// --- Host ---

// Snapshot reads the host attributes into a typed snapshot.
func (a *Adapter) Snapshot(ctx context.Context) (reconcile.HostSnapshot, error) {
	res, err := a.page.Context(ctx).Eval(`() => window.__tabweave.snapshot()`)
	if err != nil {
		return reconcile.HostSnapshot{}, fmt.Errorf("hostdom: snapshot: %w", err)
	}
	return decodeSnapshot([]byte(res.Value.Str()))
}

// act evaluates one agent action. A false return means the surface was
// missing, which is not an error: the surface may be gone by the time the
// action runs.
func (a *Adapter) act(ctx context.Context, call string) error {
	res, err := a.page.Context(ctx).Eval("() => window.__tabweave." + call)
	if err != nil {
		return fmt.Errorf("hostdom: %s: %w", call, err)
	}
	if !res.Value.Bool() {
		a.logger.Debug("hostdom: action skipped, surface missing", "call", call)
	}
	return nil
}

func (a *Adapter) ClosePlaylist(ctx context.Context) error {
	return a.act(ctx, "closePlaylist()")
}

func (a *Adapter) CollapseChat(ctx context.Context) error {
	return a.act(ctx, "collapseChat()")
}

func (a *Adapter) ExpandChat(ctx context.Context) error {
	return a.act(ctx, "expandChat()")
}

func (a *Adapter) CancelTheater(ctx context.Context) error {
	return a.act(ctx, "cancelTheater()")
}

func (a *Adapter) CloseEngagementPanels(ctx context.Context) error {
	return a.act(ctx, "closeEngagementPanels()")
}

func (a *Adapter) SetActiveTab(ctx context.Context, id string) error {
	arg, _ := json.Marshal(id)
	return a.act(ctx, fmt.Sprintf("setActiveTab(%s)", arg))
}

func (a *Adapter) FixLayout(ctx context.Context) error {
	return a.act(ctx, "fixLayout()")
}

func (a *Adapter) RefreshTabWidgets(ctx context.Context) error {
	return a.act(ctx, "refreshTabWidgets()")
}

// Relocate performs an identity-preserving move, then waits briefly for
// the host's own reactions to settle before returning. The wait is a
// bounded courtesy, not a correctness requirement.
func (a *Adapter) Relocate(ctx context.Context, plan reconcile.RelocationPlan) error {
	arg, err := json.Marshal(relocateArg(plan))
	if err != nil {
		return fmt.Errorf("hostdom: marshal plan: %w", err)
	}
	res, err := a.page.Context(ctx).Eval(fmt.Sprintf("() => window.__tabweave.relocate(%s)", arg))
	if err != nil {
		return fmt.Errorf("hostdom: relocate: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("hostdom: relocate: container or target not found")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.settleWait):
	}
	return nil
}

type wirePlan struct {
	Container string   `json:"container"`
	Before    []string `json:"before,omitempty"`
	Target    string   `json:"target"`
	After     []string `json:"after,omitempty"`
}

func relocateArg(plan reconcile.RelocationPlan) wirePlan {
	return wirePlan{
		Container: plan.Container,
		Before:    plan.Before,
		Target:    plan.Target,
		After:     plan.After,
	}
}
