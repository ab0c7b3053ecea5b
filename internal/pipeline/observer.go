package pipeline

import (
	"time"

	"github.com/fpang/sku-bundler/internal/catalog"
)

// LogEvent is one observability side-channel entry. Severity is one of
// "info", "warn", "error".
type LogEvent struct {
	Time     time.Time
	Severity string
	Message  string
}

// Observer is the set of optional callbacks a caller can attach to a run.
// The core never touches presentation state directly; everything a UI needs
// flows through these slots. Any slot may be nil.
type Observer struct {
	// OnProgress is called after each job inside a group completes.
	OnProgress func(done, total int)
	// OnPercent is called with archive-assembly progress.
	OnPercent func(percent int)
	// OnLog receives human-readable run events.
	OnLog func(LogEvent)
	// OnAssetResolved is called once per successfully renamed asset.
	OnAssetResolved func(catalog.ProcessedAsset)
}

func (o Observer) progress(done, total int) {
	if o.OnProgress != nil {
		o.OnProgress(done, total)
	}
}

func (o Observer) percent(p int) {
	if o.OnPercent != nil {
		o.OnPercent(p)
	}
}

func (o Observer) logf(severity, msg string) {
	if o.OnLog != nil {
		o.OnLog(LogEvent{Time: time.Now(), Severity: severity, Message: msg})
	}
}

func (o Observer) resolved(a catalog.ProcessedAsset) {
	if o.OnAssetResolved != nil {
		o.OnAssetResolved(a)
	}
}
