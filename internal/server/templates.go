package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/spotipi/spotipi/internal/shared"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// renderPage writes an HTML page from the embedded template set.
func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
	}
}

// renderError writes the error page with a short operator-facing message.
func (s *Server) renderError(w http.ResponseWriter, status int, err error) {
	s.renderPage(w, status, "error.html", map[string]any{
		"Status":  status,
		"Message": err.Error(),
	})
}

// renderJSON writes a JSON response body.
func (s *Server) renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoded, err := shared.MarshalJSON(data, false)
	if err != nil {
		s.logger.Error("json encode failed", "error", err)
		fmt.Fprint(w, `{"error":"encoding failed"}`)
		return
	}
	w.Write(encoded)
}

// renderJSONError writes a JSON error envelope.
func (s *Server) renderJSONError(w http.ResponseWriter, status int, err error) {
	s.renderJSON(w, status, map[string]any{"error": err.Error()})
}
