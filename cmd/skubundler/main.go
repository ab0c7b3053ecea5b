// skubundler retrieves the assets referenced by a CSV of SKU groups and
// repackages them into a single ZIP with a per-group run report.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/sku-bundler/internal/catalog"
	"github.com/fpang/sku-bundler/internal/config"
	"github.com/fpang/sku-bundler/internal/logging"
	"github.com/fpang/sku-bundler/internal/pipeline"
	"github.com/fpang/sku-bundler/internal/s3util"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	inputPath    string
	outputPath   string
	concurrency  int
	flatInput    bool
	uploadBucket string
	uploadPrefix string
)

var rootCmd = &cobra.Command{
	Use:   "skubundler",
	Short: "Batch-download SKU assets and bundle them into one ZIP",
	Long: `skubundler reads a CSV where each row names a SKU group followed by its
source references (direct URLs, Drive folder links, gallery pages), retrieves
every referenced image, renames them into a deterministic per-group sequence,
and writes a single ZIP archive with a CSV run report.`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "CSV input file: group name, then references (required)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "bundle.zip", "Output archive path")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Override worker count for all source kinds")
	rootCmd.Flags().BoolVar(&flatInput, "flat", false, "Input is one reference per line; groups are derived from filename prefixes")
	rootCmd.Flags().StringVar(&uploadBucket, "upload-bucket", "", "Optional S3 bucket to deliver the archive to")
	rootCmd.Flags().StringVar(&uploadPrefix, "upload-prefix", "bundles", "Key prefix for S3 delivery")
	_ = rootCmd.MarkFlagRequired("input")
}

func main() {
	logging.Init()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	read := readGroups
	if flatInput {
		read = readFlat
	}
	groups, err := read(inputPath)
	if err != nil {
		return err
	}

	cfg := config.Load()
	if concurrency > 0 {
		cfg.Concurrency.Flat = concurrency
		cfg.Concurrency.Drive = concurrency
	}

	ctx, cancel := signalContext()
	defer cancel()

	obs := pipeline.Observer{
		OnProgress: func(done, total int) {
			log.Info().Int("done", done).Int("total", total).Msg("Retrieval progress")
		},
		OnPercent: func(pct int) {
			log.Debug().Int("percent", pct).Msg("Archive progress")
		},
		OnLog: func(e pipeline.LogEvent) {
			switch e.Severity {
			case "error":
				log.Error().Msg(e.Message)
			case "warn":
				log.Warn().Msg(e.Message)
			default:
				log.Info().Msg(e.Message)
			}
		},
	}

	runner := pipeline.NewRunner(cfg, nil, obs)

	result, err := runner.Run(ctx, groups)
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	if result.Cancelled {
		log.Warn().Int("assets", len(result.Assets)).Msg("Run cancelled, writing partial archive")
	}
	if len(result.Assets) == 0 {
		return fmt.Errorf("no assets retrieved (%d failures)", result.Failed)
	}

	if err := writeArchive(runner, result, outputPath); err != nil {
		return err
	}
	log.Info().Str("path", outputPath).Int("assets", len(result.Assets)).
		Int("failed", result.Failed).Msg("Archive written")

	printSummary(result)

	if uploadBucket != "" {
		if err := deliverToS3(ctx, result, outputPath); err != nil {
			return err
		}
	}
	return nil
}

func writeArchive(runner *pipeline.Runner, result pipeline.Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	if err := runner.Assemble(f, result); err != nil {
		return fmt.Errorf("assemble archive: %w", err)
	}
	return nil
}

func deliverToS3(ctx context.Context, result pipeline.Result, path string) error {
	client, err := s3util.NewClient(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive for upload: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("%s/%s/%s", uploadPrefix, result.RunID, filepath.Base(path))
	if err := s3util.UploadArchive(ctx, client, uploadBucket, key, f); err != nil {
		return err
	}

	url, err := s3util.PresignArchive(ctx, awss3.NewPresignClient(client),
		uploadBucket, key, filepath.Base(path), 1*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Download link (valid 1h): %s\n", url)
	return nil
}

func printSummary(result pipeline.Result) {
	for _, o := range result.Outcomes {
		evt := log.Info()
		if o.Status != catalog.StatusSuccess {
			evt = log.Warn()
		}
		evt.Str("group", o.GroupName).Str("status", o.Status.String()).
			Int("assets", o.AssetsFound).Str("notes", o.Notes).Msg("Group outcome")
	}
}

// signalContext returns a context cancelled by SIGINT/SIGTERM so an
// interrupted run still surfaces its partial results.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("Interrupt received, stopping new work")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
