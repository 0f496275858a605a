// Package statushttp serves a localhost debug endpoint over the engine and
// journal. No auth: bind it to loopback only.
package statushttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tabweave/tabweave/journal"
	"github.com/tabweave/tabweave/reconcile"
)

// Server exposes engine state and journal queries.
type Server struct {
	engine  *reconcile.Engine
	journal *journal.Journal // nil when the journal is disabled
	logger  *slog.Logger
}

// New creates a status server. jrnl may be nil.
func New(engine *reconcile.Engine, jrnl *journal.Journal, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, journal: jrnl, logger: logger}
}

// Router builds the chi router for the debug endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		word := s.engine.State()
		writeJSON(w, 200, stateView{
			Word:       uint8(word),
			Decoded:    word.String(),
			Theater:    s.engine.IsTheaterMode(),
			TwoColumn:  s.engine.IsTwoColumnLayout(),
			CurrentTab: s.engine.CurrentTab(),
			LastPanel:  s.engine.LastPanel(),
		})
	})

	r.Get("/journal/recent", func(w http.ResponseWriter, req *http.Request) {
		if s.journal == nil {
			writeJSON(w, 404, map[string]string{"error": "journal disabled"})
			return
		}
		limit := queryInt(req, "limit", 50)
		s.journal.Flush()
		entries, err := s.journal.Recent(limit)
		if err != nil {
			s.logger.Warn("statushttp: journal query failed", "error", err)
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		out := make([]entryView, 0, len(entries))
		for _, e := range entries {
			out = append(out, entryView{
				ID:         e.ID,
				At:         e.At.UnixMilli(),
				Prev:       e.Prev.String(),
				Next:       e.Next.String(),
				Rule:       e.Rule,
				Action:     e.Action,
				DurationUS: e.Duration.Microseconds(),
				Stale:      e.Stale,
			})
		}
		writeJSON(w, 200, out)
	})

	r.Get("/journal/summary", func(w http.ResponseWriter, _ *http.Request) {
		if s.journal == nil {
			writeJSON(w, 404, map[string]string{"error": "journal disabled"})
			return
		}
		s.journal.Flush()
		sum, err := s.journal.Summarize()
		if err != nil {
			writeJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, 200, sum)
	})

	return r
}

type stateView struct {
	Word       uint8  `json:"word"`
	Decoded    string `json:"decoded"`
	Theater    bool   `json:"theater"`
	TwoColumn  bool   `json:"two_column"`
	CurrentTab string `json:"current_tab"`
	LastPanel  string `json:"last_panel"`
}

type entryView struct {
	ID         string `json:"id"`
	At         int64  `json:"at_unix_ms"`
	Prev       string `json:"prev"`
	Next       string `json:"next"`
	Rule       string `json:"rule,omitempty"`
	Action     string `json:"action,omitempty"`
	DurationUS int64  `json:"duration_us"`
	Stale      bool   `json:"stale,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
