package handlers

import (
	"html/template"
	"net/http"

	"demand-forecast/pkg/logging"
)

const swaggerAssets = "https://unpkg.com/swagger-ui-dist@5.10.0"

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}} {{.Version}}</title>
  <link rel="stylesheet" href="{{.Assets}}/swagger-ui.css">
  <style>body { margin: 0; }</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="{{.Assets}}/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: "{{.SpecURL}}",
      dom_id: "#swagger-ui",
      deepLinking: true,
      tryItOutEnabled: true,
      displayRequestDuration: true,
      defaultModelsExpandDepth: 0,
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout"
    });
  </script>
</body>
</html>`))

type docsPageData struct {
	Title   string
	Version string
	Assets  string
	SpecURL string
}

// Docs handles GET /api/docs with a Swagger UI page over the OpenAPI document
func (h *SystemHandler) Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := docsPage.Execute(w, docsPageData{
		Title:   "Demand Forecast API",
		Version: h.version,
		Assets:  swaggerAssets,
		SpecURL: "/api/docs/openapi.json",
	})
	if err != nil {
		h.logger.Warn(r.Context(), "[DOCS_RENDER_FAILED] Failed to render docs page", logging.Fields{"error": err.Error()})
	}
}
