// Package static embeds the console's stylesheet so the binary ships
// self-contained.
package static

import (
	"embed"
	"net/http"
)

//go:embed css/*
var files embed.FS

// Handler serves the embedded assets; the router strips the /static/ prefix.
func Handler() http.Handler {
	return http.FileServer(http.FS(files))
}
