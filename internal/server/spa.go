package server

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/streamie/streamie/internal/httputil"
)

type spaFileServer struct {
	fileServer http.Handler
	fileSystem fs.FS
}

func newSPAFileServer(fsys fs.FS) *spaFileServer {
	return &spaFileServer{
		fileServer: http.FileServer(http.FS(fsys)),
		fileSystem: fsys,
	}
}

// ServeHTTP serves static files and falls back to index.html for client-side
// routes. Unknown API paths stay 404.
func (s *spaFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}

	if _, err := fs.Stat(s.fileSystem, path); err != nil {
		r.URL.Path = "/"
		path = "index.html"
	}

	if strings.HasPrefix(path, "assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}

	s.fileServer.ServeHTTP(w, r)
}
