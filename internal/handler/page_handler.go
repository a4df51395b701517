package handler

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// NewPageHandler は静的ディレクトリからページを配信するハンドラーを返す。
// 拡張子のないパスは同名の.htmlファイルとして解決する（/ → index.html、/login → login.html）。
func NewPageHandler(dir string) http.Handler {
	fsys := os.DirFS(dir)
	fileServer := http.FileServerFS(fsys)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.Trim(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index"
		}
		if path.Ext(name) == "" {
			page := name + ".html"
			if info, err := fs.Stat(fsys, page); err == nil && !info.IsDir() {
				http.ServeFileFS(w, r, fsys, page)
				return
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}

// NewStaticHandler はページ以外の静的アセット（/static/*、/favicon.ico）を配信するハンドラーを返す。
func NewStaticHandler(dir string) http.Handler {
	return http.FileServerFS(os.DirFS(dir))
}
