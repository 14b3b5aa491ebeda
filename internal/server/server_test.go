package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/tampercheck/internal/compare"
	"github.com/cwbudde/tampercheck/internal/config"
	"github.com/cwbudde/tampercheck/internal/imageio"
	"github.com/cwbudde/tampercheck/internal/viewport"
)

func solidNRGBA(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func dataURL(t *testing.T, img image.Image) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(t, img))
}

func newTestServer() *Server {
	cfg := config.DefaultConfig()
	cfg.AlignIterations = 5
	cfg.AlignGrid = 32
	return NewServer(cfg)
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func createSession(t *testing.T, h http.Handler) Session {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var s Session
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return s
}

func uploadRaw(t *testing.T, h http.Handler, id, role string, img image.Image) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/sessions/%s/images/%s", id, role), bytes.NewReader(encodePNG(t, img)))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_CompareRegions(t *testing.T) {
	s := newTestServer()
	h := s.Handler()

	tests := []struct {
		name      string
		base      color.NRGBA
		overlay   color.NRGBA
		wantLabel string
	}{
		{"identical", color.NRGBA{10, 20, 30, 255}, color.NRGBA{10, 20, 30, 255}, "No Tampering Detected"},
		{"medium", color.NRGBA{0, 0, 0, 255}, color.NRGBA{40, 40, 40, 255}, "Possible Tampering Detected"},
		{"high", color.NRGBA{0, 0, 0, 255}, color.NRGBA{200, 200, 200, 255}, "Tampering Detected"},
	}

	for _, path := range []string{"/compare_regions", "/api/v1/compare"} {
		for _, tt := range tests {
			t.Run(path+" "+tt.name, func(t *testing.T) {
				body := mustJSON(t, map[string]string{
					"base_image":    dataURL(t, solidNRGBA(12, 8, tt.base)),
					"overlay_image": dataURL(t, solidNRGBA(12, 8, tt.overlay)),
				})
				w := do(t, h, http.MethodPost, path, body)
				if w.Code != http.StatusOK {
					t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
				}

				var p compare.Payload
				if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if p.Result != tt.wantLabel {
					t.Errorf("Expected %q, got %q", tt.wantLabel, p.Result)
				}
				if p.Description == "" || !strings.HasPrefix(p.DiffImage, "data:image/png;base64,") {
					t.Errorf("Incomplete payload: %+v", p)
				}
			})
		}
	}
}

func TestServer_CompareRegions_Errors(t *testing.T) {
	h := newTestServer().Handler()
	img := dataURL(t, solidNRGBA(4, 4, color.NRGBA{A: 255}))

	tests := []struct {
		name   string
		method string
		body   []byte
		want   int
	}{
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
		{"malformed JSON", http.MethodPost, []byte(`{"base_image":`), http.StatusBadRequest},
		{"missing overlay", http.MethodPost, mustJSON(t, map[string]string{"base_image": img}), http.StatusBadRequest},
		{"bad base64", http.MethodPost, mustJSON(t, map[string]string{"base_image": "data:image/png;base64,!!", "overlay_image": img}), http.StatusBadRequest},
		{"size mismatch", http.MethodPost, mustJSON(t, map[string]string{
			"base_image":    img,
			"overlay_image": dataURL(t, solidNRGBA(5, 4, color.NRGBA{A: 255})),
		}), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, "/compare_regions", tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	h := newTestServer().Handler()
	s := createSession(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/sessions", nil)
	var list []Session
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list) != 1 || list[0].ID != s.ID {
		t.Errorf("Expected one session %s, got %v", s.ID, list)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/sessions/"+s.ID, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/sessions/"+s.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/sessions/"+s.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestServer_UploadImage(t *testing.T) {
	h := newTestServer().Handler()
	s := createSession(t, h)

	t.Run("raw body", func(t *testing.T) {
		w := uploadRaw(t, h, s.ID, "control", solidNRGBA(40, 30, color.NRGBA{A: 255}))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var got Session
		json.NewDecoder(w.Body).Decode(&got)
		if got.Control == nil || got.Control.Width != 40 || got.Control.Height != 30 {
			t.Errorf("Unexpected control info %+v", got.Control)
		}
	})

	t.Run("multipart", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, _ := mw.CreateFormFile("image", "test.png")
		fw.Write(encodePNG(t, solidNRGBA(20, 10, color.NRGBA{A: 255})))
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/images/test", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var got Session
		json.NewDecoder(w.Body).Decode(&got)
		if got.Test == nil || got.Test.Name != "test.png" || got.Test.Width != 20 {
			t.Errorf("Unexpected test info %+v", got.Test)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		if w := uploadRaw(t, h, s.ID, "reference", solidNRGBA(2, 2, color.NRGBA{})); w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("not an image", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+s.ID+"/images/test", strings.NewReader("hello"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if w := uploadRaw(t, h, "nonexistent", "test", solidNRGBA(2, 2, color.NRGBA{})); w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestServer_UploadTooLarge(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxUploadBytes = 16
	h := NewServer(cfg).Handler()
	s := createSession(t, h)

	w := uploadRaw(t, h, s.ID, "control", solidNRGBA(64, 64, color.NRGBA{1, 2, 3, 255}))
	if w.Code != http.StatusRequestEntityTooLarge && w.Code != http.StatusBadRequest {
		t.Errorf("Expected upload to be rejected, got %d", w.Code)
	}
}

func TestServer_UploadTooManyPixels(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxImagePixels = 32 * 32
	h := NewServer(cfg).Handler()
	s := createSession(t, h)

	if w := uploadRaw(t, h, s.ID, "control", solidNRGBA(32, 32, color.NRGBA{1, 2, 3, 255})); w.Code != http.StatusOK {
		t.Errorf("Expected image at the limit to be accepted, got %d: %s", w.Code, w.Body.String())
	}
	if w := uploadRaw(t, h, s.ID, "test", solidNRGBA(33, 32, color.NRGBA{1, 2, 3, 255})); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d: %s", w.Code, w.Body.String())
	}

	req := compareRegionsRequest{
		BaseImage:    dataURL(t, solidNRGBA(64, 64, color.NRGBA{A: 255})),
		OverlayImage: dataURL(t, solidNRGBA(8, 8, color.NRGBA{A: 255})),
	}
	if w := do(t, h, http.MethodPost, "/compare_regions", mustJSON(t, req)); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413 from compare_regions, got %d", w.Code)
	}
}

func TestServer_CompareWorkflow(t *testing.T) {
	h := newTestServer().Handler()
	s := createSession(t, h)
	base := "/api/v1/sessions/" + s.ID

	// Compare before upload: conflict
	if w := do(t, h, http.MethodPost, base+"/compare", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 without images, got %d", w.Code)
	}

	gray := color.NRGBA{128, 128, 128, 255}
	tampered := solidNRGBA(800, 600, gray)
	for y := 100; y < 150; y++ {
		for x := 100; x < 150; x++ {
			tampered.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	uploadRaw(t, h, s.ID, "control", solidNRGBA(800, 600, gray))
	uploadRaw(t, h, s.ID, "test", tampered)

	// No selection yet: empty region
	if w := do(t, h, http.MethodPost, base+"/compare", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without selection, got %d", w.Code)
	}

	// Reverse drag over the patch
	sel := mustJSON(t, viewport.Rect{X: 150, Y: 150, W: -50, H: -50})
	if w := do(t, h, http.MethodPost, base+"/selection", sel); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w := do(t, h, http.MethodPost, base+"/compare", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var p compare.Payload
	json.NewDecoder(w.Body).Decode(&p)
	if p.Result != "Tampering Detected" {
		t.Errorf("Expected tampering, got %q (avg %f)", p.Result, p.AvgDiff)
	}
	if p.TestRect == nil || *p.TestRect != (viewport.Rect{X: 100, Y: 100, W: 50, H: 50}) {
		t.Errorf("Unexpected test rect %v", p.TestRect)
	}

	// Result is kept on the session
	w = do(t, h, http.MethodGet, base, nil)
	var got Session
	json.NewDecoder(w.Body).Decode(&got)
	if got.LastResult == nil || got.LastResult.Result != "Tampering Detected" {
		t.Errorf("Expected last result on session, got %+v", got.LastResult)
	}

	// Shift the test layer away entirely: out of bounds
	if w := do(t, h, http.MethodPost, base+"/transform", mustJSON(t, ViewChange{DX: 700})); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, base+"/compare", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d: %s", w.Code, w.Body.String())
	}

	// Reset brings back the identity view and clears the selection
	if w := do(t, h, http.MethodPost, base+"/reset", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, base+"/compare", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 after reset, got %d", w.Code)
	}
}

func TestServer_OversizedSelection(t *testing.T) {
	h := newTestServer().Handler()
	s := createSession(t, h)
	base := "/api/v1/sessions/" + s.ID

	gray := color.NRGBA{128, 128, 128, 255}
	uploadRaw(t, h, s.ID, "control", solidNRGBA(800, 600, gray))
	uploadRaw(t, h, s.ID, "test", solidNRGBA(800, 600, gray))

	huge := mustJSON(t, viewport.Rect{X: 0, Y: 0, W: 1e6, H: 1e6})
	w := do(t, h, http.MethodPost, base+"/selection", huge)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got Session
	json.NewDecoder(w.Body).Decode(&got)
	if got.Selection == nil || *got.Selection != (viewport.Rect{W: 800, H: 600}) {
		t.Errorf("Expected selection clipped to the surface, got %v", got.Selection)
	}

	w = do(t, h, http.MethodPost, base+"/compare", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var p compare.Payload
	json.NewDecoder(w.Body).Decode(&p)
	if p.Result != "No Tampering Detected" {
		t.Errorf("Expected no tampering, got %q", p.Result)
	}

	off := mustJSON(t, viewport.Rect{X: 5000, Y: 5000, W: 10, H: 10})
	if w := do(t, h, http.MethodPost, base+"/selection", off); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 for an off-surface selection, got %d", w.Code)
	}
}

func TestServer_Transform_Invalid(t *testing.T) {
	h := newTestServer().Handler()
	s := createSession(t, h)
	base := "/api/v1/sessions/" + s.ID

	tests := []struct {
		name string
		body string
		want int
	}{
		{"zero scale", `{"scale": 0}`, http.StatusBadRequest},
		{"negative scale", `{"scale": -1}`, http.StatusBadRequest},
		{"unknown field", `{"rotation": 90}`, http.StatusBadRequest},
		{"adopt without suggestion", `{"adoptSuggestion": true}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, http.MethodPost, base+"/transform", []byte(tt.body)); w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestServer_Preview(t *testing.T) {
	h := newTestServer().Handler()
	s := createSession(t, h)
	base := "/api/v1/sessions/" + s.ID

	// Renders even before any upload
	w := do(t, h, http.MethodGet, base+"/preview.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	uploadRaw(t, h, s.ID, "control", solidNRGBA(80, 60, color.NRGBA{0, 0, 255, 255}))
	w = do(t, h, http.MethodGet, base+"/preview.png", nil)
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if img.Bounds().Dx() != 800 || img.Bounds().Dy() != 600 {
		t.Errorf("Expected surface sized preview, got %v", img.Bounds())
	}
	if r, g, b, _ := img.At(400, 300).RGBA(); r != 0 || g != 0 || b>>8 != 255 {
		t.Errorf("Expected control colour, got %d %d %d", r, g, b)
	}
}

func TestServer_Align(t *testing.T) {
	srv := newTestServer()
	h := srv.Handler()
	s := createSession(t, h)
	base := "/api/v1/sessions/" + s.ID

	if w := do(t, h, http.MethodPost, base+"/align", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 without images, got %d", w.Code)
	}

	img := solidNRGBA(40, 30, color.NRGBA{90, 60, 30, 255})
	uploadRaw(t, h, s.ID, "control", img)
	uploadRaw(t, h, s.ID, "test", img)

	if w := do(t, h, http.MethodPost, base+"/align", nil); w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		got, _ := srv.sessions.GetSession(s.ID)
		if !got.Aligning {
			if got.Suggestion == nil {
				t.Fatal("Expected a suggestion after alignment")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timeout waiting for alignment")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := do(t, h, http.MethodPost, base+"/transform", []byte(`{"adoptSuggestion": true}`)); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 adopting suggestion, got %d", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestServer_SessionEvents(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	s := createSession(t, srv.Handler())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/sessions/"+s.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream content type, got %s", ct)
	}

	events := make(chan SessionEvent, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev SessionEvent
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
				events <- ev
			}
		}
		close(events)
	}()

	next := func() SessionEvent {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("Stream closed early")
			}
			return ev
		case <-ctx.Done():
			t.Fatal("Timeout waiting for event")
		}
		return SessionEvent{}
	}

	if ev := next(); ev.Kind != EventState || ev.SessionID != s.ID {
		t.Errorf("Expected initial state event, got %+v", ev)
	}

	do(t, srv.Handler(), http.MethodPost, "/api/v1/sessions/"+s.ID+"/transform", []byte(`{"dx": 12, "dy": -3}`))
	ev := next()
	if ev.Kind != EventTransform || ev.Transform.OffsetX != 12 || ev.Transform.OffsetY != -3 {
		t.Errorf("Unexpected transform event %+v", ev)
	}
}

func TestServer_SessionEvents_NotFound(t *testing.T) {
	w := do(t, newTestServer().Handler(), http.MethodGet, "/api/v1/sessions/nonexistent/events", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Pages(t *testing.T) {
	h := newTestServer().Handler()
	s := createSession(t, h)

	w := do(t, h, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/sessions/"+s.ID) {
		t.Errorf("Index should link the session, got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/sessions/"+s.ID, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), s.ID+"/preview.png") {
		t.Errorf("Session page should embed the preview, got %d", w.Code)
	}

	if w := do(t, h, http.MethodGet, "/sessions/nonexistent", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/favicon.ico", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	w := do(t, newTestServer().Handler(), http.MethodOptions, "/api/v1/sessions", nil)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected CORS preflight response, got %d", w.Code)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("s1")
	defer eb.Unsubscribe("s1", ch)

	eb.Broadcast(SessionEvent{SessionID: "s1", Kind: EventSelection, Opacity: 0.5, Timestamp: time.Now()})

	select {
	case received := <-ch:
		if received.SessionID != "s1" || received.Kind != EventSelection {
			t.Errorf("Unexpected event %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Late subscribers get the last event
	late := eb.Subscribe("s1")
	select {
	case received := <-late:
		if received.Opacity != 0.5 {
			t.Errorf("Expected replay of last event, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for replayed event")
	}
	eb.Unsubscribe("s1", late)

	eb.CleanupSession("s1")
}

func TestEventBroadcaster_DropsStaleEvents(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("s1")
	defer eb.Unsubscribe("s1", ch)

	eb.Broadcast(SessionEvent{SessionID: "s1", Kind: EventTransform, Opacity: 0.9, Version: 2})
	eb.Broadcast(SessionEvent{SessionID: "s1", Kind: EventTransform, Opacity: 0.4, Version: 1})

	if ev := <-ch; ev.Version != 2 {
		t.Errorf("Expected version 2 first, got %+v", ev)
	}
	select {
	case ev := <-ch:
		t.Errorf("Stale event should not be delivered, got %+v", ev)
	default:
	}

	late := eb.Subscribe("s1")
	if ev := <-late; ev.Version != 2 || ev.Opacity != 0.9 {
		t.Errorf("Expected replay of version 2, got %+v", ev)
	}
	eb.Unsubscribe("s1", late)
}

func TestUploadStatus(t *testing.T) {
	if got := uploadStatus(fmt.Errorf("decode: %w", imageio.ErrTooLarge)); got != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for too many pixels, got %d", got)
	}
	if got := uploadStatus(&http.MaxBytesError{Limit: 16}); got != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for too many bytes, got %d", got)
	}
	if got := uploadStatus(fmt.Errorf("not an image")); got != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", ErrSessionNotFound), http.StatusNotFound},
		{ErrImageMissing, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
