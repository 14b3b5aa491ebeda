package server

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/cwbudde/tampercheck/internal/align"
)

// ErrAlignRunning is returned when a session already has a search in flight.
var ErrAlignRunning = errors.New("alignment already running")

// startAlignment marks the session as aligning and runs the search in the
// background. The images are captured now; later uploads do not affect the
// running search.
func startAlignment(ctx context.Context, sm *SessionManager, sessionID string, params align.Params, done func()) error {
	control, test, _, err := sm.Snapshot(sessionID)
	if err != nil {
		return err
	}

	_, err = sm.UpdateSession(sessionID, EventAlign, func(s *Session) error {
		if s.Aligning {
			return ErrAlignRunning
		}
		s.Aligning = true
		s.Suggestion = nil
		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		defer done()
		runAlignment(ctx, sm, sessionID, control.Pix, test.Pix, params)
	}()
	return nil
}

// runAlignment executes an alignment search and stores the suggestion on
// the session.
func runAlignment(ctx context.Context, sm *SessionManager, sessionID string, control, test *image.NRGBA, params align.Params) {
	slog.Info("Starting alignment", "session_id", sessionID,
		"iterations", params.Iterations, "population", params.Population)

	res, err := align.Align(ctx, control, test, sm.Surface(), params)

	_, uerr := sm.UpdateSession(sessionID, EventAlign, func(s *Session) error {
		s.Aligning = false
		if err == nil {
			t := res.Transform
			s.Suggestion = &t
		}
		return nil
	})

	switch {
	case err != nil:
		slog.Error("Alignment failed", "session_id", sessionID, "error", err)
	case uerr != nil:
		// Session deleted while the search ran
		slog.Debug("Discarding alignment result", "session_id", sessionID, "error", uerr)
	default:
		slog.Info("Alignment suggestion stored", "session_id", sessionID,
			"improved", res.Improved(), "cost", res.Cost, "baseline", res.Baseline)
	}
}
