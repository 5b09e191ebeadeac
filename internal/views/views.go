// Package views renders the console's HTML pages. Each page template is
// parsed onto a clone of the shared layout.
package views

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

//go:embed *.html
var templatesFS embed.FS

type Engine struct {
	templates map[string]*template.Template
}

var funcs = template.FuncMap{
	// prettyInstant renders a wire instant for display.
	"prettyInstant": func(instant string) string {
		ts, err := time.Parse(time.RFC3339, instant)
		if err != nil {
			return instant
		}
		return ts.UTC().Format("2006-01-02 15:04 UTC")
	},
	// statusLabel turns an enum value like "in_progress" into "In progress".
	"statusLabel": func(s string) string {
		s = strings.ReplaceAll(s, "_", " ")
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}

func New() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	layoutTmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templatesFS, "layout.html")
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(templatesFS, ".")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "layout.html" {
			continue
		}

		name := entry.Name()
		baseName := name[:len(name)-len(filepath.Ext(name))]

		tmpl, err := layoutTmpl.Clone()
		if err != nil {
			return nil, err
		}

		if _, err := tmpl.ParseFS(templatesFS, name); err != nil {
			return nil, err
		}

		e.templates[baseName] = tmpl
	}

	return e, nil
}

func (e *Engine) Render(w io.Writer, name string, data any) error {
	tmpl, ok := e.templates[name]
	if !ok {
		// Render without layout
		tmpl, err := template.New(name + ".html").Funcs(funcs).ParseFS(templatesFS, name+".html")
		if err != nil {
			return err
		}
		return tmpl.Execute(w, data)
	}
	return tmpl.Execute(w, data)
}
