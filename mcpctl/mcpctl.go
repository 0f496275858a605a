// Package mcpctl exposes the engine over MCP so agent tooling can drive
// the tab view and inspect reconciliation decisions.
package mcpctl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tabweave/tabweave/journal"
	"github.com/tabweave/tabweave/reconcile"
)

// Controller registers tabweave tools on an MCP server.
type Controller struct {
	engine  *reconcile.Engine
	journal *journal.Journal // nil when the journal is disabled
	logger  *slog.Logger
}

// New creates a controller. jrnl may be nil.
func New(engine *reconcile.Engine, jrnl *journal.Journal, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{engine: engine, journal: jrnl, logger: logger}
}

// Register registers all tabweave tools on srv.
func (c *Controller) Register(srv *mcp.Server) {
	c.registerSwitchTabTool(srv)
	c.registerStateTool(srv)
	c.registerJournalTailTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// textResult marshals v and wraps it as a single TextContent result.
// Returning a non-nil handler error is reserved for protocol failures;
// tool errors go through res.SetError with a nil error return.
func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var res mcp.CallToolResult
		res.SetError(fmt.Errorf("marshal: %w", err))
		return &res, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(err error) (*mcp.CallToolResult, error) {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res, nil
}

// --- switch_tab ---

type switchTabRequest struct {
	Tab string `json:"tab"`
}

type switchTabResponse struct {
	Tab string `json:"tab"`
}

var knownTabs = map[string]bool{
	"":                    true,
	reconcile.TabInfo:     true,
	reconcile.TabComments: true,
	reconcile.TabVideos:   true,
	reconcile.TabPlaylist: true,
}

func (c *Controller) registerSwitchTabTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabweave_switch_tab",
		Description: "Switch the watch-page tab view to the given tab. Empty string deselects all tabs.",
		InputSchema: inputSchema(map[string]any{
			"tab": map[string]any{
				"type":        "string",
				"enum":        []any{"", reconcile.TabInfo, reconcile.TabComments, reconcile.TabVideos, reconcile.TabPlaylist},
				"description": "Tab id to activate",
			},
		}, []string{"tab"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r switchTabRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err))
		}
		if !knownTabs[r.Tab] {
			return toolError(fmt.Errorf("unknown tab %q", r.Tab))
		}
		c.engine.SwitchToTab(ctx, r.Tab)
		return textResult(switchTabResponse{Tab: c.engine.CurrentTab()})
	})
}

// --- state ---

type stateResponse struct {
	Word       uint8  `json:"word"`
	Decoded    string `json:"decoded"`
	Theater    bool   `json:"theater"`
	TwoColumn  bool   `json:"two_column"`
	CurrentTab string `json:"current_tab"`
	LastPanel  string `json:"last_panel"`
}

func (c *Controller) registerStateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabweave_state",
		Description: "Report the engine's current state word, decoded flags, active tab and panel restoration hint.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		w := c.engine.State()
		return textResult(stateResponse{
			Word:       uint8(w),
			Decoded:    w.String(),
			Theater:    c.engine.IsTheaterMode(),
			TwoColumn:  c.engine.IsTwoColumnLayout(),
			CurrentTab: c.engine.CurrentTab(),
			LastPanel:  c.engine.LastPanel(),
		})
	})
}

// --- journal_tail ---

type journalTailRequest struct {
	Limit int `json:"limit,omitempty"`
}

type journalEntry struct {
	ID         string `json:"id"`
	At         string `json:"at"`
	Prev       string `json:"prev"`
	Next       string `json:"next"`
	Rule       string `json:"rule,omitempty"`
	Action     string `json:"action,omitempty"`
	DurationUS int64  `json:"duration_us"`
	Stale      bool   `json:"stale,omitempty"`
}

func (c *Controller) registerJournalTailTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabweave_journal_tail",
		Description: "Return the most recent reconciliation cycles, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max cycles (default 20)"},
		}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if c.journal == nil {
			return toolError(fmt.Errorf("journal disabled"))
		}
		var r journalTailRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err))
			}
		}
		if r.Limit <= 0 {
			r.Limit = 20
		}
		c.journal.Flush()
		entries, err := c.journal.Recent(r.Limit)
		if err != nil {
			return toolError(err)
		}
		out := make([]journalEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, journalEntry{
				ID:         e.ID,
				At:         e.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				Prev:       e.Prev.String(),
				Next:       e.Next.String(),
				Rule:       e.Rule,
				Action:     e.Action,
				DurationUS: e.Duration.Microseconds(),
				Stale:      e.Stale,
			})
		}
		return textResult(out)
	})
}
