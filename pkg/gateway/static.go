package gateway

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// serveStatic serves one file from the web root. The relative path has
// already had any product prefix stripped; it is neutralized against
// traversal before the filesystem is touched. Directories are never
// listed.
func (g *Gateway) serveStatic(w http.ResponseWriter, r *http.Request, rel string) {
	full := translatePath(g.cfg.WebRoot, rel)

	info, err := os.Stat(full)
	if err != nil {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}
	if info.IsDir() {
		http.Error(w, "No permission to list directory", http.StatusMethodNotAllowed)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}
	defer func() { _ = f.Close() }()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// translatePath maps a request path onto the web root. Empty, dot and
// dot-dot segments are dropped and any drive or volume prefix is
// stripped from each segment, so the result can never escape the root.
func translatePath(root, p string) string {
	p, _, _ = strings.Cut(p, "?")
	p, _, _ = strings.Cut(p, "#")

	out := root
	for _, word := range strings.Split(p, "/") {
		word = strings.TrimPrefix(word, filepath.VolumeName(word))
		word = filepath.Base(filepath.FromSlash(word))
		if word == "" || word == "." || word == ".." ||
			word == string(filepath.Separator) {
			continue
		}
		out = filepath.Join(out, word)
	}
	return out
}
