// Package archive writes the final ZIP package: one directory per group,
// members in a deterministic natural order, and an optional CSV run report
// at the archive root.
package archive

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/rs/zerolog/log"

	"github.com/fpang/sku-bundler/internal/catalog"
	"github.com/fpang/sku-bundler/internal/naming"
)

// DefaultReportName is the reserved archive-root name for the run report.
const DefaultReportName = "download_report.csv"

// Assembler builds the output package. Construct with NewAssembler.
type Assembler struct {
	reportName string
}

// NewAssembler returns an assembler writing the report under reportName
// (DefaultReportName when empty).
func NewAssembler(reportName string) *Assembler {
	if reportName == "" {
		reportName = DefaultReportName
	}
	return &Assembler{reportName: reportName}
}

// Assemble streams all assets into w as a ZIP. The merged asset list is
// sorted by group folder and assigned name under natural collation first, so
// the member sequence is reproducible regardless of the order retrieval
// completed in. Assets are stored without recompression; image formats are
// already compressed and the ZIP is used purely as a container. If outcomes
// is non-empty a CSV report is appended at the archive root. onProgress, if
// set, receives whole percentages as members are written.
func (a *Assembler) Assemble(w io.Writer, assets []catalog.ProcessedAsset, outcomes []catalog.GroupOutcome, onProgress func(percent int)) error {
	ordered := make([]catalog.ProcessedAsset, len(assets))
	copy(ordered, assets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return naming.Less(memberPath(ordered[i]), memberPath(ordered[j]))
	})

	total := len(ordered)
	if len(outcomes) > 0 {
		total++
	}
	written := 0
	report := func() {
		written++
		if onProgress != nil && total > 0 {
			onProgress(written * 100 / total)
		}
	}

	zw := zip.NewWriter(w)
	// Swap the stdlib Deflate for klauspost's at best compression. Only the
	// CSV report artifact uses Deflate; image assets are stored as-is.
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, asset := range ordered {
		header := &zip.FileHeader{
			Name:     memberPath(asset),
			Method:   zip.Store,
			Modified: time.Now(),
		}

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", header.Name, err)
		}
		if _, err := entry.Write(asset.Payload); err != nil {
			return fmt.Errorf("write archive entry %s: %w", header.Name, err)
		}
		report()
	}

	if len(outcomes) > 0 {
		if err := a.writeReport(zw, outcomes); err != nil {
			return err
		}
		report()
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	log.Info().Int("assets", len(ordered)).Int("groups", len(outcomes)).
		Msg("Archive assembled")
	return nil
}

// writeReport appends the tabular run summary: one row per group.
func (a *Assembler) writeReport(zw *zip.Writer, outcomes []catalog.GroupOutcome) error {
	header := &zip.FileHeader{
		Name:     a.reportName,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create report entry: %w", err)
	}

	cw := csv.NewWriter(entry)
	rows := [][]string{{"group", "status", "assets", "primary_reference", "timestamp"}}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.GroupName,
			o.Status.String(),
			strconv.Itoa(o.AssetsFound),
			o.PrimaryRef,
			now,
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func memberPath(a catalog.ProcessedAsset) string {
	return a.GroupFolder + "/" + a.AssignedName
}
