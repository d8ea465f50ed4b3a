// Package web holds the server-rendered pages of the dashboard shell.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	LoginPage    = "login.html"
	DeniedPage   = "denied.html"
	NotFoundPage = "notfound.html"
	ShellPage    = "page.html"
	CallbackPage = "callback.html"
)

// Templates parses every page template. Names match the file names.
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
