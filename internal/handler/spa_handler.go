package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NewSPAHandler はstaticDir配下の静的ファイルを配信するハンドラーを返す。
// 存在しないパスにはindex.htmlを返し、クライアントサイドルーティングに委ねる。
// /api と /auth 配下はフォールバックの対象外とし404を返す。
func NewSPAHandler(staticDir string) http.Handler {
	fileServer := http.FileServer(http.Dir(staticDir))
	index := filepath.Join(staticDir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		p := path.Clean("/" + r.URL.Path)
		if isBackendPath(p) {
			http.NotFound(w, r)
			return
		}

		if p != "/" {
			if info, err := fs.Stat(os.DirFS(staticDir), strings.TrimPrefix(p, "/")); err == nil && !info.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		serveIndex(w, r, index)
	})
}

// serveIndex はindex.htmlを返す。ファイルがない場合は404。
func serveIndex(w http.ResponseWriter, r *http.Request, index string) {
	f, err := os.Open(index)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to open index.html", slog.String("error", err.Error()))
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}

func isBackendPath(p string) bool {
	for _, prefix := range []string{"/api", "/auth"} {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
