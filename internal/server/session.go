package server

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/tampercheck/internal/compare"
	"github.com/cwbudde/tampercheck/internal/errs"
	"github.com/cwbudde/tampercheck/internal/viewport"
	"github.com/google/uuid"
)

// Opacity bounds of the overlay slider.
const (
	MinOpacity = 0.1
	MaxOpacity = 1.0
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrImageMissing is returned when a comparison needs an image that has
	// not been uploaded yet.
	ErrImageMissing = errors.New("image not loaded")
	// ErrNoSuggestion is returned when adopting an alignment that has not run.
	ErrNoSuggestion = errors.New("no alignment suggestion available")
)

// ImageInfo describes an uploaded image.
type ImageInfo struct {
	Name   string `json:"name,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Session is one operator's workspace: the two images and the current view.
// Images are never modified after upload, so copies of a Session may share
// them.
type Session struct {
	ID         string              `json:"id"`
	Transform  viewport.Transform  `json:"transform"`
	Opacity    float64             `json:"opacity"`
	Selection  *viewport.Rect      `json:"selection,omitempty"`
	Control    *ImageInfo          `json:"control,omitempty"`
	Test       *ImageInfo          `json:"test,omitempty"`
	Suggestion *viewport.Transform `json:"suggestion,omitempty"` // last auto-alignment result
	Aligning   bool                `json:"aligning"`
	LastResult *ResultSummary      `json:"lastResult,omitempty"`
	Version    uint64              `json:"version"` // bumped on every update
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`

	control *image.NRGBA
	test    *image.NRGBA
}

// ResultSummary is the part of a comparison kept on the session.
type ResultSummary struct {
	Result  string    `json:"result"`
	AvgDiff float64   `json:"avg_diff"`
	Partial bool      `json:"partial,omitempty"`
	At      time.Time `json:"at"`
}

// SessionManager manages the lifecycle of sessions
type SessionManager struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	broadcaster    *EventBroadcaster
	surface        viewport.Surface
	scaleRange     viewport.ScaleRange
	defaultOpacity float64
}

// NewSessionManager creates a SessionManager for the given workspace.
func NewSessionManager(surface viewport.Surface, scaleRange viewport.ScaleRange, defaultOpacity float64) *SessionManager {
	return &SessionManager{
		sessions:       make(map[string]*Session),
		broadcaster:    NewEventBroadcaster(),
		surface:        surface,
		scaleRange:     scaleRange,
		defaultOpacity: clampOpacity(defaultOpacity),
	}
}

// Surface returns the display surface shared by all sessions.
func (sm *SessionManager) Surface() viewport.Surface {
	return sm.surface
}

// CreateSession creates a session with the workspace defaults.
func (sm *SessionManager) CreateSession() Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Transform: viewport.Identity,
		Opacity:   sm.defaultOpacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sm.sessions[s.ID] = s
	return *s
}

// GetSession returns a copy of the session.
func (sm *SessionManager) GetSession(id string) (Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.sessions[id]
	if !exists {
		return Session{}, false
	}
	return *s, true
}

// ListSessions returns copies of all sessions, oldest first.
func (sm *SessionManager) ListSessions() []Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		list = append(list, *s)
	}
	sortSessions(list)
	return list
}

// DeleteSession removes a session and closes its event streams.
func (sm *SessionManager) DeleteSession(id string) bool {
	sm.mu.Lock()
	_, exists := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if exists {
		sm.broadcaster.CleanupSession(id)
	}
	return exists
}

// UpdateSession atomically updates a session using the provided function and
// broadcasts the new state under kind. The session is left untouched when
// updateFn fails. The event is built under the lock with the new version, so
// a broadcast that loses the race to a later one is dropped as stale.
func (sm *SessionManager) UpdateSession(id string, kind EventKind, updateFn func(*Session) error) (Session, error) {
	sm.mu.Lock()
	s, exists := sm.sessions[id]
	if !exists {
		sm.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	draft := *s
	if err := updateFn(&draft); err != nil {
		sm.mu.Unlock()
		return Session{}, err
	}
	draft.Version++
	draft.UpdatedAt = time.Now()
	*s = draft
	event := newEvent(kind, draft)
	sm.mu.Unlock()

	sm.broadcaster.Broadcast(event)
	return draft, nil
}

// SetImage stores the control or test image of a session.
func (sm *SessionManager) SetImage(id string, role viewport.Role, name string, img *image.NRGBA) (Session, error) {
	info := &ImageInfo{Name: name, Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	return sm.UpdateSession(id, EventImage, func(s *Session) error {
		switch role {
		case viewport.Control:
			s.control, s.Control = img, info
		case viewport.Test:
			s.test, s.Test = img, info
		default:
			return fmt.Errorf("unknown image role %v", role)
		}
		s.LastResult = nil
		s.Suggestion = nil
		return nil
	})
}

// ViewChange is an edit of the test layer. Absolute values are applied
// first, then the drag delta. Nil fields are left alone.
type ViewChange struct {
	AdoptSuggestion bool     `json:"adoptSuggestion,omitempty"`
	Scale           *float64 `json:"scale,omitempty"`
	OffsetX         *float64 `json:"offsetX,omitempty"`
	OffsetY         *float64 `json:"offsetY,omitempty"`
	DX              float64  `json:"dx,omitempty"`
	DY              float64  `json:"dy,omitempty"`
	Opacity         *float64 `json:"opacity,omitempty"`
}

// ApplyView applies a view change atomically. Scale is clamped to the
// workspace range the way the slider pins it, opacity to
// [MinOpacity, MaxOpacity]. Non-finite values are an InvalidTransform error.
func (sm *SessionManager) ApplyView(id string, c ViewChange) (Session, error) {
	return sm.UpdateSession(id, EventTransform, func(s *Session) error {
		t := s.Transform
		if c.AdoptSuggestion {
			if s.Suggestion == nil {
				return ErrNoSuggestion
			}
			t = *s.Suggestion
		}
		if c.Scale != nil {
			t.Scale = *c.Scale
		}
		if c.OffsetX != nil {
			t.OffsetX = *c.OffsetX
		}
		if c.OffsetY != nil {
			t.OffsetY = *c.OffsetY
		}
		t = t.Translate(c.DX, c.DY)

		if err := t.Validate(); err != nil {
			return err
		}
		t.Scale = sm.scaleRange.Clamp(t.Scale)

		opacity := s.Opacity
		if c.Opacity != nil {
			if math.IsNaN(*c.Opacity) {
				return errs.New(errs.InvalidTransform, "ApplyView", "opacity is not a number")
			}
			opacity = clampOpacity(*c.Opacity)
		}

		s.Transform = t
		s.Opacity = opacity
		return nil
	})
}

// SetSelection stores the selection normalized and clipped to the surface.
// A nil rect clears it. Non-finite, empty or off-surface selections are
// rejected and the stored one is kept.
func (sm *SessionManager) SetSelection(id string, rect *viewport.Rect) (Session, error) {
	var sel *viewport.Rect
	if rect != nil {
		n, err := rect.ClipTo(sm.surface)
		if err != nil {
			return Session{}, err
		}
		sel = &n
	}
	return sm.UpdateSession(id, EventSelection, func(s *Session) error {
		s.Selection = sel
		return nil
	})
}

// Reset restores scale 1, default opacity, zero offsets and no selection.
// Images are kept.
func (sm *SessionManager) Reset(id string) (Session, error) {
	return sm.UpdateSession(id, EventReset, func(s *Session) error {
		s.Transform = viewport.Identity
		s.Opacity = sm.defaultOpacity
		s.Selection = nil
		s.LastResult = nil
		s.Suggestion = nil
		return nil
	})
}

// Snapshot returns the session's images and view as plain values for a
// comparison, so the pipeline never touches shared state.
func (sm *SessionManager) Snapshot(id string) (control, test compare.SourceImage, view compare.Session, err error) {
	s, exists := sm.GetSession(id)
	if !exists {
		return control, test, view, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.control == nil {
		return control, test, view, fmt.Errorf("control %w", ErrImageMissing)
	}
	if s.test == nil {
		return control, test, view, fmt.Errorf("test %w", ErrImageMissing)
	}

	view = compare.Session{
		Surface:   sm.surface,
		Transform: s.Transform,
		Opacity:   s.Opacity,
	}
	if s.Selection != nil {
		view.Selection = *s.Selection
	}

	control = compare.SourceImage{Role: viewport.Control, Pix: s.control}
	test = compare.SourceImage{Role: viewport.Test, Pix: s.test}
	return control, test, view, nil
}

func clampOpacity(o float64) float64 {
	return math.Max(MinOpacity, math.Min(MaxOpacity, o))
}
