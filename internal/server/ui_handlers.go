package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cwbudde/tampercheck/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sessions := s.sessions.ListSessions()
	items := make([]ui.SessionListItem, len(sessions))
	for i, session := range sessions {
		items[i] = listItem(session)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.SessionList(s.workspace(), items).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}

// handleSessionPage handles GET /sessions/:id
func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	session, exists := s.sessions.GetSession(id)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.SessionPage(s.workspace(), listItem(session)).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}

func (s *Server) workspace() ui.Workspace {
	return ui.Workspace{
		SurfaceWidth:  s.cfg.SurfaceWidth,
		SurfaceHeight: s.cfg.SurfaceHeight,
		MinScale:      s.cfg.MinScale,
		MaxScale:      s.cfg.MaxScale,
		ScaleStep:     s.cfg.ScaleStep,
	}
}

func listItem(s Session) ui.SessionListItem {
	item := ui.SessionListItem{
		ID:        s.ID,
		Scale:     s.Transform.Scale,
		OffsetX:   s.Transform.OffsetX,
		OffsetY:   s.Transform.OffsetY,
		Opacity:   s.Opacity,
		Aligning:  s.Aligning,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Control != nil {
		item.Control = fmt.Sprintf("%dx%d", s.Control.Width, s.Control.Height)
	}
	if s.Test != nil {
		item.Test = fmt.Sprintf("%dx%d", s.Test.Width, s.Test.Height)
	}
	if s.LastResult != nil {
		item.LastResult = s.LastResult.Result
		item.AvgDiff = s.LastResult.AvgDiff
	}
	return item
}
