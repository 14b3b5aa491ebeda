package server

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/tampercheck/internal/compare"
	"github.com/cwbudde/tampercheck/internal/config"
	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/render"
	"github.com/cwbudde/tampercheck/internal/viewport"
)

// Server represents the HTTP server
type Server struct {
	sessions *SessionManager
	cfg      *config.Config
	server   *http.Server

	// Background alignment searches
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new HTTP server. A nil cfg means DefaultConfig.
func NewServer(cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		sessions: NewSessionManager(cfg.Surface(), cfg.ScaleRange(), cfg.DefaultOpacity),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the routed handler wrapped with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register UI routes
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/sessions/", s.handleSessionPage)

	// Region comparison of pre-cropped images
	mux.HandleFunc("/compare_regions", s.handleCompareRegions)
	mux.HandleFunc("/api/v1/compare", s.handleCompareRegions)

	// Register API routes
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and cancels running alignments.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancel()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// allowMethods writes 405 unless r uses one of methods.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

// compareRegionsRequest carries two already cropped regions as data URLs.
type compareRegionsRequest struct {
	BaseImage    string `json:"base_image"`
	OverlayImage string `json:"overlay_image"`
}

// handleCompareRegions handles POST /compare_regions and /api/v1/compare
func (s *Server) handleCompareRegions(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req compareRegionsRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.BaseImage == "" || req.OverlayImage == "" {
		http.Error(w, "base_image and overlay_image are required", http.StatusBadRequest)
		return
	}

	base, err := imageio.DecodeDataURL(req.BaseImage, s.cfg.MaxImagePixels)
	if err != nil {
		http.Error(w, fmt.Sprintf("base_image: %v", err), uploadStatus(err))
		return
	}
	overlay, err := imageio.DecodeDataURL(req.OverlayImage, s.cfg.MaxImagePixels)
	if err != nil {
		http.Error(w, fmt.Sprintf("overlay_image: %v", err), uploadStatus(err))
		return
	}

	res, err := compare.Regions(base, overlay)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := compare.NewPayload(res)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

// handleSessions handles /api/v1/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		session := s.sessions.CreateSession()
		slog.Info("Session created", "session_id", session.ID)
		writeJSON(w, http.StatusCreated, session)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sessions.ListSessions())
	default:
		allowMethods(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleSessionsWithID handles /api/v1/sessions/:id/*
func (s *Server) handleSessionsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	id := parts[0]
	if len(parts) == 1 {
		s.handleSession(w, r, id)
		return
	}

	switch parts[1] {
	case "images":
		if len(parts) != 3 {
			http.Error(w, "Image role required", http.StatusNotFound)
			return
		}
		s.handleUploadImage(w, r, id, parts[2])
	case "transform":
		s.handleTransform(w, r, id)
	case "selection":
		s.handleSelection(w, r, id)
	case "compare":
		s.handleCompare(w, r, id)
	case "preview.png":
		s.handlePreview(w, r, id)
	case "reset":
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		session, err := s.sessions.Reset(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case "align":
		s.handleAlign(w, r, id)
	case "events":
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		s.handleSessionEvents(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleSession handles GET and DELETE /api/v1/sessions/:id
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		session, exists := s.sessions.GetSession(id)
		if !exists {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodDelete:
		if !s.sessions.DeleteSession(id) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		slog.Info("Session deleted", "session_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		allowMethods(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleUploadImage handles PUT/POST /api/v1/sessions/:id/images/{control,test}
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request, id, roleName string) {
	if !allowMethods(w, r, http.MethodPut, http.MethodPost) {
		return
	}
	role, err := viewport.ParseRole(roleName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if _, exists := s.sessions.GetSession(id); !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	img, name, err := readUploadedImage(r, s.cfg.MaxImagePixels)
	if err != nil {
		http.Error(w, err.Error(), uploadStatus(err))
		return
	}

	session, err := s.sessions.SetImage(id, role, name, img)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Image uploaded", "session_id", id, "role", role.String(),
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	writeJSON(w, http.StatusOK, session)
}

// handleTransform handles POST /api/v1/sessions/:id/transform
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request, id string) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var change ViewChange
	if err := decodeJSON(r, &change); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := s.sessions.ApplyView(id, change)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleSelection handles POST and DELETE /api/v1/sessions/:id/selection
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request, id string) {
	var rect *viewport.Rect
	switch r.Method {
	case http.MethodPost:
		rect = &viewport.Rect{}
		if err := decodeJSON(r, rect); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	case http.MethodDelete:
	default:
		allowMethods(w, r, http.MethodPost, http.MethodDelete)
		return
	}

	session, err := s.sessions.SetSelection(id, rect)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleCompare handles POST /api/v1/sessions/:id/compare
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request, id string) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	control, test, view, err := s.sessions.Snapshot(id)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := compare.DefaultOptions()
	opts.ScaleRange = s.cfg.ScaleRange()
	opts.Perceptual = s.cfg.Perceptual

	out, err := compare.Run(control, test, view, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := out.Payload()
	if err != nil {
		writeError(w, err)
		return
	}

	summary := &ResultSummary{
		Result:  payload.Result,
		AvgDiff: payload.AvgDiff,
		Partial: payload.Partial,
		At:      time.Now(),
	}
	if _, err := s.sessions.UpdateSession(id, EventCompare, func(sess *Session) error {
		sess.LastResult = summary
		return nil
	}); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("Regions compared", "session_id", id, "result", payload.Result, "avg_diff", payload.AvgDiff)
	writeJSON(w, http.StatusOK, payload)
}

// handlePreview handles GET /api/v1/sessions/:id/preview.png
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, id string) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	session, exists := s.sessions.GetSession(id)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	// Composite takes interfaces; keep absent images as untyped nil
	var control, test image.Image
	if session.control != nil {
		control = session.control
	}
	if session.test != nil {
		test = session.test
	}
	img := render.Composite(control, test, s.sessions.Surface(), session.Transform, session.Opacity, session.Selection)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleAlign handles POST /api/v1/sessions/:id/align
func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request, id string) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	s.wg.Add(1)
	if err := startAlignment(s.ctx, s.sessions, id, s.cfg.AlignParams(), s.wg.Done); err != nil {
		s.wg.Done()
		writeError(w, err)
		return
	}

	session, _ := s.sessions.GetSession(id)
	writeJSON(w, http.StatusAccepted, session)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
