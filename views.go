package portal

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
)

//go:embed views
var viewsFS embed.FS

// ViewsFS returns the embedded templates rooted at the views directory.
func ViewsFS() fs.FS {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewViewEngine returns a Django template engine over the embedded views.
// Pass a directory to load templates from disk instead, which is useful while
// editing them.
func NewViewEngine(dir string) *django.Engine {
	if dir != "" {
		return django.New(dir, ".html")
	}
	return django.NewFileSystem(http.FS(ViewsFS()), ".html")
}

// NewApp returns a fiber app that renders the portal views and reports
// errors through auther. A nil views uses the embedded templates.
func NewApp(auther *RouteAuthenticator, views fiber.Views) *fiber.App {
	if views == nil {
		views = NewViewEngine("")
	}
	return fiber.New(fiber.Config{
		Views:                 views,
		ErrorHandler:          auther.FiberErrorHandler(),
		DisableStartupMessage: true,
		BodyLimit:             int(DefaultMaxProfileImageBytes) + 1<<20,
	})
}
