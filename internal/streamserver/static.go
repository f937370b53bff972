package streamserver

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// StaticHandler returns the handler mounted at /static/*: the bundled
// asset directory, grounded on spec.md §4.1's "/static/* — static files
// from the bundled asset directory". It currently holds the poller page
// the web pseudo-device's browser client long-polls from.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
