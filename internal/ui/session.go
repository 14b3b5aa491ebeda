package ui

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// sessionData is handed to session.js.
type sessionData struct {
	ID string `json:"id"`
}

// SessionPage renders the workspace for one session. The preview is drawn
// server side; the page only forwards pointer input to the session API and
// reloads the preview on every session event.
func SessionPage(ws Workspace, item SessionListItem) templ.Component {
	return page("Session "+shortID(item.ID),
		sessionHeader(item),
		controls(ws, item),
		previewPane(ws, item.ID),
		templ.Raw(`<div class="result" id="result"></div><img id="heatmap" alt="">`),
		templ.JSONScript("session-data", sessionData{ID: item.ID}),
		script(sessionJS),
	)
}

func sessionHeader(item SessionListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<p><a href="/">All sessions</a></p><h1>Session %s</h1>`, esc(shortID(item.ID)))
		return p.err
	})
}

func controls(ws Workspace, item SessionListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<div class="controls">`)
		p.printf(`<label>Control image <input type="file" accept="image/*" data-role="control"></label>`)
		p.printf(`<label>Test image <input type="file" accept="image/*" data-role="test"></label>`)
		p.printf(`<label>Scale <input id="scale" type="range" min="%g" max="%g" step="%g" value="%g"></label>`,
			ws.MinScale, ws.MaxScale, ws.ScaleStep, item.Scale)
		p.printf(`<label>Opacity <input id="opacity" type="range" min="0.1" max="1" step="0.05" value="%g"></label>`, item.Opacity)
		p.printf(`<button id="mode-position">Position Test Image</button>`)
		p.printf(`<button id="mode-select">Select Region To Compare</button>`)
		p.printf(`<button id="compare">Compare</button><button id="reset">Reset</button>`)
		p.printf(`<button id="align">Auto-align</button><button id="adopt" disabled>Use suggestion</button>`)
		p.printf(`</div>`)
		return p.err
	})
}

func previewPane(ws Workspace, id string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		src := templ.URL("/api/v1/sessions/" + id + "/preview.png")
		p := &printer{w: w}
		p.printf(`<img id="preview" src="%s" width="%g" height="%g" draggable="false" alt="workspace">`,
			esc(string(src)), ws.SurfaceWidth, ws.SurfaceHeight)
		return p.err
	})
}
