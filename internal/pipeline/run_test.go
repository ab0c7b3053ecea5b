package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/sku-bundler/internal/catalog"
	"github.com/fpang/sku-bundler/internal/config"
	"github.com/fpang/sku-bundler/internal/drive"
)

var jpegPayload = bytes.Repeat([]byte{0xFF, 0xD8, 0xFF, 0xE0}, 64)

// assetServer serves fake JPEGs under /assets/, a gallery page under
// /gallery, and rejects everything else (including the proxy paths the
// fallback chain tries first).
func assetServer(missing map[string]bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/assets/"):
			if missing[r.URL.Path] {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(jpegPayload)
		case r.URL.Path == "/gallery":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><img src="/assets/g1.jpg"><img src="/assets/g2.jpg"></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func testConfig(srv *httptest.Server) config.Config {
	return config.Config{
		Fetch: config.FetchConfig{
			CDNProxy:  srv.URL + "/cdn?url=",
			CORSRelay: srv.URL + "/cors?url=",
			RawRelay:  srv.URL + "/raw?url=",
		},
		Concurrency: config.Concurrency{Flat: 4, Drive: 2},
	}
}

func archiveNames(t *testing.T, runner *Runner, res Result) []string {
	t.Helper()
	var buf bytes.Buffer
	if err := runner.Assemble(&buf, res); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestRun_AllReferencesSucceed(t *testing.T) {
	srv := assetServer(nil)
	defer srv.Close()

	runner := NewRunner(testConfig(srv), srv.Client(), Observer{})
	groups := []catalog.SourceGroup{
		{Name: "SKU1", References: []string{srv.URL + "/assets/a.jpg", srv.URL + "/assets/b.jpg"}},
	}

	res, err := runner.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Cancelled {
		t.Fatal("run reported cancelled")
	}
	if res.Failed != 0 {
		t.Errorf("failed = %d, want 0", res.Failed)
	}

	if len(res.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(res.Outcomes))
	}
	o := res.Outcomes[0]
	if o.GroupName != "SKU1" || o.Status != catalog.StatusSuccess || o.AssetsFound != 2 {
		t.Errorf("outcome = %+v, want SKU1/Success/2", o)
	}

	names := archiveNames(t, runner, res)
	// a.jpg sorts before b.jpg, so indices follow that order.
	want := []string{"SKU1/SKU1_1.jpg", "SKU1/SKU1_2.jpg"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("archive members = %v, want prefix %v", names, want)
		}
	}
}

func TestRun_PartialGroup(t *testing.T) {
	srv := assetServer(map[string]bool{"/assets/b.jpg": true})
	defer srv.Close()

	runner := NewRunner(testConfig(srv), srv.Client(), Observer{})
	groups := []catalog.SourceGroup{
		{Name: "SKU1", References: []string{srv.URL + "/assets/a.jpg", srv.URL + "/assets/b.jpg"}},
	}

	res, err := runner.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}

	o := res.Outcomes[0]
	if o.Status != catalog.StatusPartial || o.AssetsFound != 1 {
		t.Errorf("outcome = %+v, want Partial with 1 asset", o)
	}

	names := archiveNames(t, runner, res)
	if len(names) != 2 { // one asset + report
		t.Fatalf("members = %v, want one asset plus report", names)
	}
	if names[0] != "SKU1/SKU1_1.jpg" {
		t.Errorf("member = %q, want SKU1/SKU1_1.jpg", names[0])
	}
}

func TestRun_GroupWithNothingRetrievedIsFailed(t *testing.T) {
	srv := assetServer(map[string]bool{"/assets/a.jpg": true})
	defer srv.Close()

	runner := NewRunner(testConfig(srv), srv.Client(), Observer{})
	groups := []catalog.SourceGroup{
		{Name: "SKU1", References: []string{srv.URL + "/assets/a.jpg"}},
		{Name: "SKU2", References: []string{srv.URL + "/assets/ok.jpg"}},
	}

	res, err := runner.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Outcomes[0].Status != catalog.StatusFailed {
		t.Errorf("SKU1 status = %v, want Failed", res.Outcomes[0].Status)
	}
	// The failed group must not stop its successor.
	if res.Outcomes[1].Status != catalog.StatusSuccess {
		t.Errorf("SKU2 status = %v, want Success", res.Outcomes[1].Status)
	}
}

func TestRun_GalleryReferenceExpanded(t *testing.T) {
	srv := assetServer(nil)
	defer srv.Close()

	runner := NewRunner(testConfig(srv), srv.Client(), Observer{})
	groups := []catalog.SourceGroup{
		{Name: "SKU1", References: []string{srv.URL + "/gallery"}},
	}

	res, err := runner.Run(context.Background(), groups)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o := res.Outcomes[0]; o.Status != catalog.StatusSuccess || o.AssetsFound != 2 {
		t.Errorf("outcome = %+v, want Success with both gallery images", o)
	}
}

func TestRun_MissingDriveKeyIsFatal(t *testing.T) {
	srv := assetServer(nil)
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.Drive = config.DriveConfig{BaseURL: srv.URL} // no API key

	runner := NewRunner(cfg, srv.Client(), Observer{})
	groups := []catalog.SourceGroup{
		{Name: "SKU1", References: []string{"https://drive.google.com/drive/folders/F1"}},
		{Name: "SKU2", References: []string{srv.URL + "/assets/a.jpg"}},
	}

	res, err := runner.Run(context.Background(), groups)
	if !errors.Is(err, drive.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	// Fatal error aborts before later groups run.
	if len(res.Outcomes) != 0 {
		t.Errorf("outcomes = %+v, want none after fatal abort", res.Outcomes)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	srv := assetServer(nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(testConfig(srv), srv.Client(), Observer{})
	res, err := runner.Run(ctx, []catalog.SourceGroup{
		{Name: "SKU1", References: []string{srv.URL + "/assets/a.jpg"}},
	})
	if err != nil {
		t.Fatalf("cancellation must not surface as an error, got %v", err)
	}
	if !res.Cancelled {
		t.Error("Cancelled flag not set")
	}
	if len(res.Assets) != 0 {
		t.Errorf("assets = %d, want 0 when cancelled before start", len(res.Assets))
	}
}

func TestRun_CancelledMidGroupKeepsRetrievedAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/assets/") {
			http.NotFound(w, r)
			return
		}
		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegPayload)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var resolvedCalls atomic.Int32
	obs := Observer{
		// The first completed retrieval triggers cancellation; workers stop
		// dequeuing and only in-flight requests settle.
		OnProgress:      func(done, total int) { cancel() },
		OnAssetResolved: func(catalog.ProcessedAsset) { resolvedCalls.Add(1) },
	}

	const refs = 8
	group := catalog.SourceGroup{Name: "SKU1"}
	for i := 0; i < refs; i++ {
		group.References = append(group.References, fmt.Sprintf("%s/assets/p%d.jpg", srv.URL, i))
	}

	cfg := testConfig(srv)
	cfg.Concurrency.Flat = 2

	runner := NewRunner(cfg, srv.Client(), obs)
	res, err := runner.Run(ctx, []catalog.SourceGroup{group})
	if err != nil {
		t.Fatalf("cancellation must not surface as an error, got %v", err)
	}
	if !res.Cancelled {
		t.Fatal("Cancelled flag not set")
	}
	if len(res.Assets) == 0 {
		t.Error("already-retrieved assets discarded on cancellation")
	}
	if len(res.Assets) >= refs {
		t.Errorf("assets = %d, want a strict prefix of %d", len(res.Assets), refs)
	}
	if got := int(resolvedCalls.Load()); got != len(res.Assets) {
		t.Errorf("OnAssetResolved calls = %d, want %d (one per surfaced asset)", got, len(res.Assets))
	}
}

func TestRun_ObserverCallbacks(t *testing.T) {
	srv := assetServer(nil)
	defer srv.Close()

	var progressCalls, resolvedCalls atomic.Int32
	obs := Observer{
		OnProgress:      func(done, total int) { progressCalls.Add(1) },
		OnAssetResolved: func(catalog.ProcessedAsset) { resolvedCalls.Add(1) },
	}

	runner := NewRunner(testConfig(srv), srv.Client(), obs)
	_, err := runner.Run(context.Background(), []catalog.SourceGroup{
		{Name: "SKU1", References: []string{srv.URL + "/assets/a.jpg", srv.URL + "/assets/b.jpg"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if progressCalls.Load() != 2 {
		t.Errorf("progress calls = %d, want 2", progressCalls.Load())
	}
	if resolvedCalls.Load() != 2 {
		t.Errorf("resolved calls = %d, want 2", resolvedCalls.Load())
	}
}
