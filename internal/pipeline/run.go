// Package pipeline drives the full batch run: groups are processed
// sequentially, each group's references are expanded into retrieval jobs,
// the jobs fan out through the bounded batch runner, retrieved assets are
// renamed, and outcomes accumulate for the final archive report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/sku-bundler/internal/archive"
	"github.com/fpang/sku-bundler/internal/batch"
	"github.com/fpang/sku-bundler/internal/catalog"
	"github.com/fpang/sku-bundler/internal/config"
	"github.com/fpang/sku-bundler/internal/drive"
	"github.com/fpang/sku-bundler/internal/fetch"
	"github.com/fpang/sku-bundler/internal/gallery"
	"github.com/fpang/sku-bundler/internal/mediatype"
	"github.com/fpang/sku-bundler/internal/naming"
)

// Runner wires every pipeline stage together for one or more runs.
// Construct with NewRunner.
type Runner struct {
	cfg       config.Config
	resolver  *fetch.Resolver
	expander  *gallery.Expander
	assembler *archive.Assembler
	obs       Observer

	// driveClient is created on first use so runs without Drive references
	// never require an API key.
	driveClient *drive.Client
	httpClient  *http.Client
}

// Result is the terminal state of one run. Assets and Outcomes are valid
// even when the run was cancelled or aborted by a fatal error: whatever
// completed before the stop is preserved.
type Result struct {
	RunID     string
	Assets    []catalog.ProcessedAsset
	Outcomes  []catalog.GroupOutcome
	Failed    int
	Cancelled bool
}

// NewRunner builds a runner from configuration. The HTTP client is shared
// across the resolver, gallery expander and Drive client; pass nil for the
// default.
func NewRunner(cfg config.Config, httpClient *http.Client, obs Observer) *Runner {
	return &Runner{
		cfg:        cfg,
		resolver:   fetch.NewResolver(cfg.Fetch, httpClient),
		expander:   gallery.NewExpander(httpClient),
		assembler:  archive.NewAssembler(cfg.Archive.ReportName),
		obs:        obs,
		httpClient: httpClient,
	}
}

// retrievalJob is one unit handed to the batch runner: a display name for
// logging plus a closure that produces the raw asset.
type retrievalJob struct {
	name string
	run  func(ctx context.Context) (catalog.RetrievedAsset, error)
}

// Run processes all groups sequentially. Within a group, retrieval fans out
// with bounded concurrency; the next group starts only after the previous
// one drains, which bounds peak resource usage and keeps per-group progress
// coherent.
//
// Only two things abort the loop early: a fatal configuration error
// (drive.ErrInvalidCredentials, drive.ErrBadRoot — returned as the error)
// and context cancellation (reported via Result.Cancelled, not as an
// error). Per-asset and per-group failures are absorbed into counters and
// outcomes.
func (r *Runner) Run(ctx context.Context, groups []catalog.SourceGroup) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log.Info().Str("run", res.RunID).Int("groups", len(groups)).Msg("Batch run starting")

	for _, group := range groups {
		if ctx.Err() != nil {
			res.Cancelled = true
			r.obs.logf("warn", "run cancelled, returning partial results")
			return res, nil
		}

		outcome, assets, failed, err := r.runGroup(ctx, group)
		res.Failed += failed
		res.Assets = append(res.Assets, assets...)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				res.Cancelled = true
				return res, nil
			}
			// Fatal configuration error: no further groups are attempted.
			r.obs.logf("error", fmt.Sprintf("fatal: %v", err))
			return res, err
		}

		res.Outcomes = append(res.Outcomes, outcome)
		r.obs.logf("info", fmt.Sprintf("group %s: %s (%d assets)",
			group.Name, outcome.Status, outcome.AssetsFound))
	}

	log.Info().Str("run", res.RunID).Int("assets", len(res.Assets)).
		Int("failed", res.Failed).Msg("Batch run complete")
	return res, nil
}

// runGroup expands one group's references into jobs, drains them through the
// batch runner, and assigns final names.
func (r *Runner) runGroup(ctx context.Context, group catalog.SourceGroup) (catalog.GroupOutcome, []catalog.ProcessedAsset, int, error) {
	jobs, expandFailures, usesDrive, err := r.expandReferences(ctx, group)
	if err != nil {
		return catalog.GroupOutcome{}, nil, 0, err
	}

	concurrency := r.cfg.Concurrency.Flat
	if usesDrive {
		concurrency = r.cfg.Concurrency.Drive
	}

	out := batch.Run(ctx, jobs, func(ctx context.Context, j retrievalJob, _ int) (catalog.RetrievedAsset, error) {
		return j.run(ctx)
	}, batch.Options{
		Concurrency: concurrency,
		OnProgress:  r.obs.progress,
	})

	if ctx.Err() != nil {
		// Drained only the cancellable prefix; surface what settled.
		processed := naming.AssignNames(out.Results)
		for _, p := range processed {
			r.obs.resolved(p)
		}
		return catalog.GroupOutcome{}, processed, out.Failed + expandFailures, context.Canceled
	}

	processed := naming.AssignNames(out.Results)
	for _, p := range processed {
		r.obs.resolved(p)
	}

	failed := out.Failed + expandFailures
	outcome := catalog.GroupOutcome{
		GroupName:   group.Name,
		PrimaryRef:  group.PrimaryReference(),
		AssetsFound: len(processed),
	}
	switch {
	case len(processed) == 0:
		outcome.Status = catalog.StatusFailed
		outcome.Notes = "no assets retrieved"
	case failed > 0:
		outcome.Status = catalog.StatusPartial
		outcome.Notes = fmt.Sprintf("%d of %d retrievals failed", failed, len(jobs)+expandFailures)
	default:
		outcome.Status = catalog.StatusSuccess
	}

	return outcome, processed, failed, nil
}

// expandReferences turns each reference into one or more retrieval jobs.
// Drive folders are crawled up front (their asset downloads become jobs);
// gallery pages are expanded into the image URLs they link to; everything
// else is fetched directly. Expansion failures cost one failed unit each,
// except the fatal crawl classes which propagate.
func (r *Runner) expandReferences(ctx context.Context, group catalog.SourceGroup) ([]retrievalJob, int, bool, error) {
	var jobs []retrievalJob
	expandFailures := 0
	usesDrive := false

	for _, ref := range group.References {
		switch {
		case fetch.IsDriveFolder(ref):
			usesDrive = true
			driveJobs, err := r.expandDriveFolder(ctx, group.Name, ref)
			if err != nil {
				if errors.Is(err, drive.ErrInvalidCredentials) || errors.Is(err, drive.ErrBadRoot) || errors.Is(err, context.Canceled) {
					return nil, 0, usesDrive, err
				}
				log.Warn().Err(err).Str("ref", ref).Msg("Drive expansion failed")
				expandFailures++
				continue
			}
			jobs = append(jobs, driveJobs...)

		case r.looksLikeDirectAsset(ref):
			jobs = append(jobs, r.directJob(group.Name, ref))

		default:
			links, err := r.expander.Expand(ctx, ref)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil, 0, usesDrive, context.Canceled
				}
				log.Warn().Err(err).Str("ref", ref).Msg("Gallery expansion failed")
				expandFailures++
				continue
			}
			if len(links) == 0 {
				// Not a gallery after all; try the reference itself.
				jobs = append(jobs, r.directJob(group.Name, ref))
				continue
			}
			for _, link := range links {
				jobs = append(jobs, r.directJob(group.Name, link))
			}
		}
	}

	return jobs, expandFailures, usesDrive, nil
}

func (r *Runner) looksLikeDirectAsset(ref string) bool {
	return mediatype.IsImageExt(path.Ext(fetch.NormalizeReference(ref))) ||
		mediatype.IsImageExt(path.Ext(refPath(ref)))
}

func refPath(ref string) string {
	// Strip query and fragment so trailing extensions are visible.
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}

func (r *Runner) directJob(groupName, ref string) retrievalJob {
	return retrievalJob{
		name: ref,
		run: func(ctx context.Context) (catalog.RetrievedAsset, error) {
			result, err := r.resolver.Resolve(ctx, ref)
			if err != nil {
				return catalog.RetrievedAsset{}, err
			}
			return catalog.RetrievedAsset{
				OriginalName: path.Base(refPath(ref)),
				Payload:      result.Payload,
				Size:         int64(len(result.Payload)),
				ContentType:  result.ContentType,
				GroupName:    groupName,
			}, nil
		},
	}
}

// expandDriveFolder crawls the folder tree and converts each discovered
// asset into a download job against the Drive API.
func (r *Runner) expandDriveFolder(ctx context.Context, groupName, ref string) ([]retrievalJob, error) {
	client, err := r.drive()
	if err != nil {
		return nil, err
	}

	crawler := drive.NewCrawler(client, r.cfg.Concurrency.Drive)
	crawlRes, err := crawler.Crawl(ctx, fetch.DriveFolderID(ref), groupName)
	if err != nil {
		return nil, err
	}

	jobs := make([]retrievalJob, 0, len(crawlRes.Assets))
	for _, asset := range crawlRes.Assets {
		jobs = append(jobs, retrievalJob{
			name: asset.Name,
			run: func(ctx context.Context) (catalog.RetrievedAsset, error) {
				payload, contentType, err := client.Download(ctx, asset.ID)
				if err != nil {
					return catalog.RetrievedAsset{}, err
				}
				if contentType == "" {
					contentType = asset.MIMEType
				}
				return catalog.RetrievedAsset{
					OriginalName:  asset.Name,
					Payload:       payload,
					Size:          int64(len(payload)),
					ContentType:   contentType,
					GroupName:     groupName,
					ContainerPath: asset.ContainerPath,
				}, nil
			},
		})
	}
	return jobs, nil
}

func (r *Runner) drive() (*drive.Client, error) {
	if r.driveClient != nil {
		return r.driveClient, nil
	}
	client, err := drive.NewClient(r.cfg.Drive, r.httpClient)
	if err != nil {
		return nil, err
	}
	r.driveClient = client
	return client, nil
}

// Assemble writes the run's archive to w, forwarding assembly progress to
// the observer's OnPercent slot. Assembly errors are distinct from
// retrieval errors: by this point the asset list is final.
func (r *Runner) Assemble(w io.Writer, res Result) error {
	return r.assembler.Assemble(w, res.Assets, res.Outcomes, r.obs.percent)
}
