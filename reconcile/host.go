package reconcile

import "context"

// Role identifies a tracked host-owned surface on the watch page.
type Role string

const (
	RoleChat        Role = "chat"
	RoleComments    Role = "comments"
	RolePlaylist    Role = "playlist"
	RoleRelated     Role = "related"
	RoleDescription Role = "description"
	RoleRoot        Role = "root"
)

// Roles lists the tracked panel roles, excluding root.
var Roles = []Role{RoleChat, RoleComments, RolePlaylist, RoleRelated, RoleDescription}

// ChatState is the tri-state of the host chat surface. Collapsed and
// expanded are mutually exclusive; both derive from a single host
// attribute.
type ChatState int

const (
	ChatAbsent ChatState = iota
	ChatCollapsed
	ChatExpanded
)

// Element is a non-owning handle to a host-owned node. The engine never
// creates or destroys the underlying element; it only repositions it.
type Element struct {
	Role  Role
	XPath string
}

// HostSnapshot is a typed, point-in-time read of the attributes the engine
// derives its state from. Produced by a host adapter; the pure state and
// rule logic never touches raw attribute strings.
type HostSnapshot struct {
	Theater             bool
	Fullscreen          bool
	TwoColumn           bool
	EngagementPanelOpen bool
	PlaylistExpanded    bool
	Chat                ChatState
	// ActiveTab is the root container's current-tab attribute; empty means
	// no tab is selected.
	ActiveTab string
	// VisibleTabs lists currently visible tab button ids, in DOM order.
	VisibleTabs []string
}

// RelocationPlan describes an identity-preserving move of a live host
// element. Target is repositioned inside Container after Before and before
// After; it is never removed-and-recreated, because host-owned elements
// carry internal state a recreate would reset.
type RelocationPlan struct {
	Container string   // selector of the destination container
	Before    []string // selectors of sibling markers placed before Target
	Target    string   // selector of the live element to move
	After     []string // selectors of sibling markers placed after Target
}

// Host is the capability surface the engine needs from the page. A nil-safe,
// total contract is not required: any call may fail when the host shape has
// changed, and the engine degrades to skipping that cycle.
type Host interface {
	// Snapshot freshly reads the attributes backing the state word. Never
	// cached; staleness here would be a correctness bug.
	Snapshot(ctx context.Context) (HostSnapshot, error)

	// Corrective actions issued by the rule table.
	ClosePlaylist(ctx context.Context) error
	CollapseChat(ctx context.Context) error
	ExpandChat(ctx context.Context) error
	CancelTheater(ctx context.Context) error
	CloseEngagementPanels(ctx context.Context) error

	// SetActiveTab marks exactly one tab button active and one pane visible;
	// empty id clears the selection. Also writes the root container's
	// current-tab attribute, which Snapshot reads back.
	SetActiveTab(ctx context.Context, id string) error

	// Relocate performs an identity-preserving move per the plan.
	Relocate(ctx context.Context, plan RelocationPlan) error

	// FixLayout re-asserts the full tab assembly: tab strip placement and
	// the default relocation of every tracked panel into its pane.
	FixLayout(ctx context.Context) error

	// RefreshTabWidgets reflows chip/expander sub-widgets inside the visible
	// tab. Purely cosmetic, not part of the state machine.
	RefreshTabWidgets(ctx context.Context) error
}

// LifecycleSource delivers host-driven change notifications. Implemented by
// an adapter against whatever host integration is available; the engine
// depends only on this interface, never on a concrete host framework.
type LifecycleSource interface {
	// OnAttach fires when an element of a tracked role is attached and has
	// passed ownership checks (correct ancestor, connected, non-empty class
	// list). The handler receives a non-owning handle.
	OnAttach(role Role, fn func(el *Element))

	// OnDetach fires when the element registered for role detaches.
	OnDetach(role Role, fn func())

	// OnChange fires when an allowlisted attribute changes on the element
	// registered for role, or on the root container.
	OnChange(role Role, fn func(attr string))

	// OnResize fires on viewport resize.
	OnResize(fn func())
}
