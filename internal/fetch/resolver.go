// Package fetch retrieves a single remote binary by trying an ordered chain
// of retrieval strategies until one yields a plausible payload. The chain
// exists because many asset hosts reject cross-origin or anonymous requests;
// rewriting through a proxy is usually more reliable than asking directly.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/sku-bundler/internal/config"
)

// ErrUnreachable means every strategy in the chain was exhausted without
// producing a plausible binary.
var ErrUnreachable = errors.New("all fetch strategies exhausted")

const (
	// minPayloadBytes rejects near-empty bodies; proxies sometimes return a
	// tiny placeholder with a 200 status.
	minPayloadBytes = 128

	defaultTimeout = 45 * time.Second
)

// Strategy is one retrieval technique: a name for logging and a rewrite of
// the normalized reference into the URL actually requested.
type Strategy struct {
	Name    string
	Rewrite func(reference string) string
}

// Result is a successfully retrieved payload.
type Result struct {
	Payload     []byte
	ContentType string
}

// Resolver tries each strategy in order until one produces an acceptable
// response. Construct with NewResolver.
type Resolver struct {
	client     *http.Client
	strategies []Strategy
}

// NewResolver builds the standard strategy chain from the configured proxy
// endpoints. Order matters: proxies most likely to succeed under
// cross-origin restrictions come first; the direct request is last because
// it is most likely to be blocked but costs nothing to attempt.
// A nil client gets a default with a 45s timeout.
func NewResolver(cfg config.FetchConfig, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Resolver{
		client: client,
		strategies: []Strategy{
			{Name: "cdn-proxy", Rewrite: func(ref string) string {
				// The CDN proxy addresses targets without a scheme.
				return cfg.CDNProxy + url.QueryEscape(stripScheme(ref))
			}},
			{Name: "cors-relay", Rewrite: func(ref string) string {
				return cfg.CORSRelay + url.QueryEscape(ref)
			}},
			{Name: "raw-relay", Rewrite: func(ref string) string {
				return cfg.RawRelay + url.QueryEscape(ref)
			}},
			{Name: "direct", Rewrite: func(ref string) string {
				return ref
			}},
		},
	}
}

// NewResolverWithStrategies builds a resolver with an explicit chain.
// Used by tests and by callers that need a custom proxy set.
func NewResolverWithStrategies(client *http.Client, strategies []Strategy) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Resolver{client: client, strategies: strategies}
}

// Resolve normalizes the reference and walks the strategy chain.
// Returns ErrUnreachable (wrapped) when every strategy fails. Context
// cancellation aborts immediately and propagates ctx.Err() without falling
// through to the next strategy.
func (r *Resolver) Resolve(ctx context.Context, reference string) (Result, error) {
	normalized := NormalizeReference(reference)

	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		res, err := r.attempt(ctx, s.Rewrite(normalized))
		if err == nil {
			log.Debug().Str("strategy", s.Name).Str("ref", reference).
				Int("bytes", len(res.Payload)).Msg("Fetch strategy succeeded")
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		log.Debug().Err(err).Str("strategy", s.Name).Str("ref", reference).
			Msg("Fetch strategy failed, trying next")
	}

	return Result{}, fmt.Errorf("%s: %w", reference, ErrUnreachable)
}

// attempt performs one request and applies the plausibility acceptance test:
// HTTP success, payload above the size floor, and not an HTML error page
// disguised as 200 OK.
func (r *Resolver) attempt(ctx context.Context, requestURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}

	if len(payload) < minPayloadBytes {
		return Result{}, fmt.Errorf("payload too small (%d bytes)", len(payload))
	}

	contentType := resp.Header.Get("Content-Type")
	if looksLikeHTML(contentType, payload) {
		return Result{}, fmt.Errorf("response is an HTML page, not a binary")
	}

	return Result{Payload: payload, ContentType: contentType}, nil
}

func looksLikeHTML(contentType string, payload []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml") {
		return true
	}
	head := strings.ToLower(string(payload[:min(len(payload), 256)]))
	head = strings.TrimLeft(head, " \t\r\n")
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func stripScheme(ref string) string {
	ref = strings.TrimPrefix(ref, "https://")
	ref = strings.TrimPrefix(ref, "http://")
	return ref
}
