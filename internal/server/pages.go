package server

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed static/*.html
var staticFiles embed.FS

const (
	PageHello    = "hello.html"
	PageNotFound = "404.html"
)

// Pages はページ本文の取得元
type Pages interface {
	Load(name string) ([]byte, error)
}

// FSPages は fs.FS からページを読む
type FSPages struct {
	fsys fs.FS
}

// EmbeddedPages は組み込みのページを返す
func EmbeddedPages() *FSPages {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// static/ は go:embed で必ず存在する
		panic(err)
	}
	return &FSPages{fsys: sub}
}

// DirPages はディレクトリからリクエストごとにページを読む
func DirPages(dir string) *FSPages {
	return &FSPages{fsys: os.DirFS(dir)}
}

// Load はページ本文を読み込む
func (p *FSPages) Load(name string) ([]byte, error) {
	data, err := fs.ReadFile(p.fsys, filepath.ToSlash(name))
	if err != nil {
		return nil, fmt.Errorf("failed to load page %s: %w", name, err)
	}
	return data, nil
}

// CheckPages は必要なページが全て読めることを確認する
func CheckPages(p Pages) error {
	for _, name := range []string{PageHello, PageNotFound} {
		if _, err := p.Load(name); err != nil {
			return err
		}
	}
	return nil
}
