package api

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed static/openapi.yaml
var openAPIDoc []byte

// apiIndex is the part of the OpenAPI document the docs page shows without
// JavaScript.
type apiIndex struct {
	Info struct {
		Title   string `yaml:"title"`
		Version string `yaml:"version"`
	} `yaml:"info"`
	Paths map[string]map[string]struct {
		Summary string `yaml:"summary"`
	} `yaml:"paths"`
}

type docsRoute struct {
	Method  string
	Path    string
	Summary string
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <title>{{.Title}} {{.Version}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui">
  <noscript>
    <h1>{{.Title}} {{.Version}}</h1>
    <ul>{{range .Routes}}<li><code>{{.Method}} {{.Path}}</code> {{.Summary}}</li>{{end}}</ul>
  </noscript>
</div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.onload = () => SwaggerUIBundle({ url: '/openapi.yaml', dom_id: '#swagger-ui' });
</script>
</body>
</html>`))

var (
	docsOnce sync.Once
	docsHTML []byte
	docsErr  error
)

// renderDocs builds the docs page once from the embedded OpenAPI document.
func renderDocs() ([]byte, error) {
	docsOnce.Do(func() {
		var idx apiIndex
		if docsErr = yaml.Unmarshal(openAPIDoc, &idx); docsErr != nil {
			return
		}
		routes := make([]docsRoute, 0, len(idx.Paths))
		for p, ops := range idx.Paths {
			for method, op := range ops {
				routes = append(routes, docsRoute{Method: strings.ToUpper(method), Path: p, Summary: op.Summary})
			}
		}
		sort.Slice(routes, func(i, j int) bool {
			if routes[i].Path != routes[j].Path {
				return routes[i].Path < routes[j].Path
			}
			return routes[i].Method < routes[j].Method
		})

		var buf bytes.Buffer
		docsErr = docsTemplate.Execute(&buf, map[string]any{
			"Title":   idx.Info.Title,
			"Version": idx.Info.Version,
			"Routes":  routes,
		})
		docsHTML = buf.Bytes()
	})
	return docsHTML, docsErr
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPIDoc)
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	page, err := renderDocs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}
