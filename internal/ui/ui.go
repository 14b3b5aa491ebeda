// Package ui renders the workspace pages as templ components. Pages are
// composed from small components inside a shared layout; scripts and styles
// are embedded static files and per-page data travels as a JSON script.
package ui

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

var (
	//go:embed static/style.css
	styleCSS string
	//go:embed static/index.js
	indexJS string
	//go:embed static/session.js
	sessionJS string
)

// SessionListItem is one row of the session list.
type SessionListItem struct {
	ID         string
	Control    string // "800x600" or empty when not uploaded
	Test       string
	Scale      float64
	OffsetX    float64
	OffsetY    float64
	Opacity    float64
	LastResult string
	AvgDiff    float64
	Aligning   bool
	UpdatedAt  time.Time
}

// Workspace describes the slider ranges shared by every session page.
type Workspace struct {
	SurfaceWidth  float64
	SurfaceHeight float64
	MinScale      float64
	MaxScale      float64
	ScaleStep     float64
}

// SessionList renders the index page.
func SessionList(ws Workspace, items []SessionListItem) templ.Component {
	return page("Tampering check",
		listHeader(ws),
		sessionTable(items),
		script(indexJS),
	)
}

func listHeader(ws Workspace) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<h1>Tampering check</h1>`)
		p.printf(`<p>Display surface %gx%g, scale %g to %g.</p>`, ws.SurfaceWidth, ws.SurfaceHeight, ws.MinScale, ws.MaxScale)
		p.printf(`<form id="new-session" method="post" action="/api/v1/sessions"><button type="submit">New session</button></form>`)
		return p.err
	})
}

func sessionTable(items []SessionListItem) templ.Component {
	if len(items) == 0 {
		return templ.Raw(`<p class="empty">No sessions yet.</p>`)
	}

	rows := make([]templ.Component, len(items))
	for i, it := range items {
		rows[i] = sessionRow(it)
	}
	return templ.Join(
		templ.Raw(`<table><thead><tr><th>Session</th><th>Control</th><th>Test</th><th>Transform</th><th>Opacity</th><th>Last result</th><th>Updated</th></tr></thead><tbody>`),
		templ.Join(rows...),
		templ.Raw(`</tbody></table>`),
	)
}

func sessionRow(it SessionListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		result := it.LastResult
		if result != "" {
			result = fmt.Sprintf("%s (%.2f)", result, it.AvgDiff)
		}
		if it.Aligning {
			result += " aligning…"
		}

		p := &printer{w: w}
		p.printf(`<tr><td><a href="%s">%s</a></td>`, esc(string(sessionURL(it.ID))), esc(shortID(it.ID)))
		p.printf(`<td>%s</td><td>%s</td>`, esc(orDash(it.Control)), esc(orDash(it.Test)))
		p.printf(`<td>%.2f @ (%.0f, %.0f)</td><td>%.2f</td>`, it.Scale, it.OffsetX, it.OffsetY, it.Opacity)
		p.printf(`<td>%s</td><td>%s</td></tr>`, esc(orDash(result)), it.UpdatedAt.Format(time.TimeOnly))
		return p.err
	})
}

func sessionURL(id string) templ.SafeURL {
	return templ.URL("/sessions/" + id)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "–"
	}
	return s
}

func esc(s string) string {
	return templ.EscapeString(s)
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// script inlines one of the embedded scripts.
func script(src string) templ.Component {
	return templ.Raw("<script>\n" + src + "</script>")
}

// page wraps parts in the layout, passing them as its children.
func page(title string, parts ...templ.Component) templ.Component {
	body := templ.Join(parts...)
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return layout(title).Render(templ.WithChildren(ctx, body), w)
	})
}

func layout(title string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s</title>`, esc(title))
		p.printf("<style>\n%s</style></head><body>", styleCSS)
		if p.err != nil {
			return p.err
		}
		if err := templ.GetChildren(ctx).Render(ctx, w); err != nil {
			return err
		}
		p.printf(`</body></html>`)
		return p.err
	})
}
