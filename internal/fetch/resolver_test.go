package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeBinary is large enough to pass the payload size floor.
var fakeBinary = bytes.Repeat([]byte{0xFF, 0xD8, 0xFF, 0xE0}, 64)

func proxyStrategies(serverURL string, names ...string) []Strategy {
	var out []Strategy
	for _, name := range names {
		out = append(out, Strategy{
			Name: name,
			Rewrite: func(ref string) string {
				return serverURL + "/" + name + "?url=" + url.QueryEscape(ref)
			},
		})
	}
	return out
}

func TestResolve_FallbackExhaustion(t *testing.T) {
	// Every strategy returns a rejected, HTML, or too-small response:
	// resolve must fail with ErrUnreachable and must not hang.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/reject"):
			http.Error(w, "nope", http.StatusBadGateway)
		case strings.HasPrefix(r.URL.Path, "/html"):
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>proxy error</body></html>"))
		default:
			w.Write([]byte("tiny"))
		}
	}))
	defer srv.Close()

	r := NewResolverWithStrategies(srv.Client(),
		proxyStrategies(srv.URL, "reject", "html", "small"))

	_, err := r.Resolve(context.Background(), "https://example.com/a.jpg")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestResolve_FirstWorkingStrategyWins(t *testing.T) {
	var directHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/bad"):
			http.Error(w, "down", http.StatusServiceUnavailable)
		case strings.HasPrefix(r.URL.Path, "/good"):
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(fakeBinary)
		default:
			directHits.Add(1)
			w.Write(fakeBinary)
		}
	}))
	defer srv.Close()

	strategies := proxyStrategies(srv.URL, "bad", "good")
	strategies = append(strategies, Strategy{Name: "direct", Rewrite: func(ref string) string { return ref }})

	r := NewResolverWithStrategies(srv.Client(), strategies)
	res, err := r.Resolve(context.Background(), srv.URL+"/later")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.ContentType != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", res.ContentType)
	}
	if !bytes.Equal(res.Payload, fakeBinary) {
		t.Error("payload mismatch")
	}
	if directHits.Load() != 0 {
		t.Error("later strategies attempted after a success")
	}
}

func TestResolve_HTMLDisguisedAs200Rejected(t *testing.T) {
	// A proxy error page with an image content type must still be rejected
	// by body sniffing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		page := "<!DOCTYPE html><html><body>" + strings.Repeat("error ", 50) + "</body></html>"
		w.Write([]byte(page))
	}))
	defer srv.Close()

	r := NewResolverWithStrategies(srv.Client(), proxyStrategies(srv.URL, "only"))
	_, err := r.Resolve(context.Background(), "https://example.com/a.jpg")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestResolve_CancellationDoesNotFallThrough(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	r := NewResolverWithStrategies(srv.Client(), proxyStrategies(srv.URL, "s1", "s2", "s3"))
	go func() {
		_, err := r.Resolve(ctx, "https://example.com/a.jpg")
		done <- err
	}()

	cancel()
	err := <-done

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if hits.Load() > 1 {
		t.Errorf("resolver fell through to %d strategies after cancellation", hits.Load())
	}
}
