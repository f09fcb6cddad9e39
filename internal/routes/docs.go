package routes

import (
	"bytes"
	_ "embed"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/config"
)

//go:embed openapi.yaml
var openAPISpec []byte

const docsIndexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{ .Title }}</title>
  <style>
    body { margin: 0; font-family: Georgia, "Times New Roman", serif; color: #132019; background: #f6f7f4; }
    main { max-width: 1120px; margin: 0 auto; padding: 48px 20px 64px; }
    .panel { background: #fff; border: 1px solid #d8ddd6; border-radius: 18px; padding: 24px; margin-bottom: 20px; }
    a { color: #1f6f4a; }
    pre { margin: 0; padding: 20px; overflow: auto; border-radius: 14px; background: #0f172a; color: #e2e8f0; font-size: 0.92rem; }
  </style>
</head>
<body>
  <main>
    <section class="panel">
      <h1>{{ .Title }}</h1>
      <p>The OpenAPI spec is served at <a href="/docs/openapi.yaml">/docs/openapi.yaml</a>. Loaded {{ .LoadedAt }}.</p>
    </section>
    <section class="panel">
      <pre>{{ .Spec }}</pre>
    </section>
  </main>
</body>
</html>
`

type docsPageData struct {
	Title    string
	LoadedAt string
	Spec     string
}

// registerDocsRoutes serves the API description. It is only mounted in
// development with ENABLE_DOCS set.
func registerDocsRoutes(app *fiber.App, cfg *config.Config) error {
	if !cfg.EnableDocs || !cfg.IsDevelopment() {
		return nil
	}

	indexTemplate, err := template.New("docs").Parse(docsIndexHTML)
	if err != nil {
		return err
	}
	pageData := docsPageData{
		Title:    "Calibrate API",
		LoadedAt: time.Now().UTC().Format(time.RFC3339),
		Spec:     string(openAPISpec),
	}

	indexHandler := func(c *fiber.Ctx) error {
		applyDocsBaseHeaders(c, fiber.MIMETextHTMLCharsetUTF8)
		c.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'")

		var body bytes.Buffer
		if err := indexTemplate.Execute(&body, pageData); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to render api docs")
		}
		return c.Status(fiber.StatusOK).Send(body.Bytes())
	}

	app.Get("/docs", indexHandler)
	app.Get("/docs/", indexHandler)
	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		applyDocsBaseHeaders(c, "application/yaml; charset=utf-8")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
		c.Set(fiber.HeaderContentDisposition, `inline; filename="openapi.yaml"`)
		return c.Status(fiber.StatusOK).Send(openAPISpec)
	})

	return nil
}

func applyDocsBaseHeaders(c *fiber.Ctx, contentType string) {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set("Referrer-Policy", "no-referrer")
	c.Set("X-Robots-Tag", "noindex, nofollow")
}
