package gallery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestExtractImageLinks(t *testing.T) {
	html := `<html><body>
		<img src="/thumbs/a.jpg">
		<img src="https://cdn.example.com/b.png">
		<a href="full/c.webp">full size</a>
		<a href="/page/about.html">about</a>
		<img src="/thumbs/a.jpg">
		<a href="mailto:x@example.com">mail</a>
		<img src="">
	</body></html>`

	base, _ := url.Parse("https://gallery.example.com/album/1")
	links := ExtractImageLinks(parseDoc(t, html), base)

	want := []string{
		"https://gallery.example.com/thumbs/a.jpg",
		"https://cdn.example.com/b.png",
		"https://gallery.example.com/album/full/c.webp",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestExtractImageLinks_NoImages(t *testing.T) {
	base, _ := url.Parse("https://example.com/")
	links := ExtractImageLinks(parseDoc(t, "<html><body><p>nothing here</p></body></html>"), base)
	if len(links) != 0 {
		t.Errorf("links = %v, want none", links)
	}
}

func TestExpand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/album" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><img src="/img/1.jpg"><img src="/img/2.jpg"></body></html>`))
	}))
	defer srv.Close()

	e := NewExpander(srv.Client())
	links, err := e.Expand(context.Background(), srv.URL+"/album")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0] != srv.URL+"/img/1.jpg" {
		t.Errorf("links[0] = %q, want %s/img/1.jpg", links[0], srv.URL)
	}
}

func TestExpand_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	e := NewExpander(srv.Client())
	if _, err := e.Expand(context.Background(), srv.URL+"/album"); err == nil {
		t.Fatal("expected error for non-2xx gallery page")
	}
}
