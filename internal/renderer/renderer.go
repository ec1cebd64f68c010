package renderer

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/labstack/echo/v4"
)

// TemplateRenderer implements echo.Renderer
type TemplateRenderer struct {
	Templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"pathEscape":  url.PathEscape,
	"queryEscape": url.QueryEscape,
}

// New parses every page and partial below viewsDir
func New(viewsDir string) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		Templates: make(map[string]*template.Template),
	}
	if err := r.parseTemplates(viewsDir); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *TemplateRenderer) parseTemplates(dir string) error {
	view := func(parts ...string) string {
		return filepath.Join(append([]string{dir}, parts...)...)
	}

	// Pages share the layout, the confirm dialog and the listing partials
	pages := map[string][]string{
		"processes": {view("pages", "processes.html")},
		"archivos": {
			view("pages", "archivos.html"),
			view("partials", "file_list.html"),
			view("partials", "preview.html"),
		},
	}
	for name, files := range pages {
		all := append([]string{view("layouts", "base.html"), view("partials", "confirm_dialog.html")}, files...)
		tmpl, err := template.New(name).Funcs(funcs).ParseFiles(all...)
		if err != nil {
			return fmt.Errorf("parse page %s: %w", name, err)
		}
		t.Templates[name] = tmpl
	}

	for name := range selfExecutingTemplates {
		tmpl, err := template.New(name).Funcs(funcs).ParseFiles(view("partials", name+".html"))
		if err != nil {
			return fmt.Errorf("parse partial %s: %w", name, err)
		}
		t.Templates[name] = tmpl
	}
	return nil
}

// selfExecutingTemplates lists templates that execute their own named block instead of "base"
var selfExecutingTemplates = map[string]bool{
	"file_list":            true,
	"preview":              true,
	"folder_create_modal":  true,
	"process_create_modal": true,
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.Templates[name]
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "Template not found: "+name)
	}

	// Templates that define their own named block execute that block directly
	if selfExecutingTemplates[name] {
		return tmpl.ExecuteTemplate(w, name, data)
	}
	// All other templates (pages with layout) execute the "base" block
	return tmpl.ExecuteTemplate(w, "base", data)
}
