package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/0xcro3dile/ragchat-go/internal/adapters/parser"
)

func TestTextLoader_LoadTxtFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	os.WriteFile(path, []byte("Hello World"), 0644)

	loader := NewTextLoader()
	doc, err := loader.Load(context.Background(), path)

	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc.Content != "Hello World" {
		t.Errorf("unexpected content: %s", doc.Content)
	}
	if doc.Name != "test.txt" {
		t.Errorf("unexpected name: %s", doc.Name)
	}
}

func TestTextLoader_SupportedExtensions(t *testing.T) {
	loader := NewTextLoader()
	exts := loader.SupportedExtensions()

	if len(exts) == 0 {
		t.Error("should support extensions")
	}

	found := false
	for _, e := range exts {
		if e == ".txt" {
			found = true
		}
	}
	if !found {
		t.Error(".txt should be supported")
	}
}

func TestHTMLLoader_StripsMarkup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	os.WriteFile(path, []byte("<html><body><p>clean text</p></body></html>"), 0644)

	loader := NewHTMLLoader(parser.NewHTMLParser())
	doc, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !strings.Contains(doc.Content, "clean text") {
		t.Errorf("text content missing: %q", doc.Content)
	}
	if strings.Contains(doc.Content, "<p>") {
		t.Errorf("markup survived: %q", doc.Content)
	}
}

func TestMultiLoader_DispatchByExtension(t *testing.T) {
	dir := t.TempDir()

	txtPath := filepath.Join(dir, "test.txt")
	mdPath := filepath.Join(dir, "test.md")
	htmlPath := filepath.Join(dir, "test.html")
	os.WriteFile(txtPath, []byte("txt content"), 0644)
	os.WriteFile(mdPath, []byte("# Markdown"), 0644)
	os.WriteFile(htmlPath, []byte("<p>html content</p>"), 0644)

	loader := NewMultiLoader(parser.NewHTMLParser())

	txt, _ := loader.Load(context.Background(), txtPath)
	md, _ := loader.Load(context.Background(), mdPath)
	html, _ := loader.Load(context.Background(), htmlPath)

	if txt.Content != "txt content" {
		t.Error("txt not loaded correctly")
	}
	if md.Content != "# Markdown" {
		t.Error("md not loaded correctly")
	}
	if html.Content != "html content" {
		t.Errorf("html not cleaned, got %q", html.Content)
	}
}

func TestMultiLoader_AllExtensions(t *testing.T) {
	loader := NewMultiLoader(parser.NewHTMLParser())
	exts := loader.SupportedExtensions()

	if len(exts) < 4 {
		t.Errorf("expected at least 4 extensions, got %d", len(exts))
	}
}

func TestLoader_NonexistentFile(t *testing.T) {
	loader := NewTextLoader()
	_, err := loader.Load(context.Background(), "/nonexistent/file.txt")

	if err == nil {
		t.Error("should error on nonexistent file")
	}
}
