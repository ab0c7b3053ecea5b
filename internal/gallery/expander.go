// Package gallery expands an HTML gallery page into the list of image URLs
// it references. Used for source references that are neither direct asset
// URLs nor Drive folder links.
package gallery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/fpang/sku-bundler/internal/mediatype"
)

const defaultTimeout = 30 * time.Second

// Expander fetches gallery pages and extracts image links.
type Expander struct {
	client *http.Client
}

// NewExpander wires an HTTP client; nil gets a default with a 30s timeout.
func NewExpander(client *http.Client) *Expander {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Expander{client: client}
}

// Expand fetches the page and returns the image URLs it links to:
// <img src> targets first, then <a href> targets, duplicates removed while
// keeping first-seen order. Relative URLs are resolved against the page URL.
// A page with no recognizable image links yields an empty slice, not an
// error.
func (e *Expander) Expand(ctx context.Context, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch gallery page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gallery page status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse gallery page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	links := ExtractImageLinks(doc, base)
	log.Debug().Str("page", pageURL).Int("images", len(links)).Msg("Gallery page expanded")
	return links, nil
}

// ExtractImageLinks walks the parsed document and collects image targets.
// Split out from Expand so tests can feed documents directly.
func ExtractImageLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := map[string]struct{}{}

	collect := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !mediatype.IsImageExt(path.Ext(abs.Path)) {
			return
		}
		key := abs.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	}

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			collect(src)
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			collect(href)
		}
	})

	return links
}
