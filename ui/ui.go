// Package ui holds the HTML for the auth pages. The documentation itself is
// served from the built site directory, never from here.
package ui

import (
	"embed"
	"html/template"
	"io"
)

//go:embed html/*.html
var files embed.FS

var templates = template.Must(template.ParseFS(files, "html/*.html"))

// Render executes the named template or block into w.
func Render(w io.Writer, name string, data any) error {
	return templates.ExecuteTemplate(w, name, data)
}
