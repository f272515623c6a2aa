package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/smallbiznis/starmart/internal/config"
	"github.com/smallbiznis/starmart/internal/ingest"
	"github.com/smallbiznis/starmart/internal/logger"
	"go.uber.org/zap"
)

// canonicalize converts raw sale-report CSV exports into the canonical
// JSONL feeds the pipeline ingests.
func main() {
	var (
		amazonCSV = flag.String("amazon", "", "path to the Amazon sale report CSV")
		intlCSV   = flag.String("international", "", "path to the international sale report CSV")
		outDir    = flag.String("out", "data/staging/canonical", "output directory for canonical JSONL")
	)
	flag.Parse()

	log, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if *amazonCSV == "" && *intlCSV == "" {
		log.Fatal("at least one of -amazon or -international is required")
	}

	cfg, err := config.NewPipelineConfig()
	if err != nil {
		log.Fatal("load pipeline config", zap.Error(err))
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal("create output dir", zap.Error(err))
	}

	if *amazonCSV != "" {
		outPath := filepath.Join(*outDir, "events.jsonl")
		out, err := os.Create(outPath)
		if err != nil {
			log.Fatal("create events output", zap.Error(err))
		}
		stats, err := ingest.CanonicalizeAmazonEvents(cfg, *amazonCSV, out)
		out.Close()
		if err != nil {
			log.Fatal("canonicalize events", zap.Error(err))
		}
		log.Info("events canonicalized",
			zap.String("path", outPath),
			zap.Int("rows_total", stats.RowsTotal),
			zap.Int("written", stats.Written),
			zap.Int("skipped_no_ts", stats.SkippedNoTS),
			zap.Int("skipped_amount_outlier", stats.SkippedOutlier))
	}

	if *intlCSV != "" {
		outPath := filepath.Join(*outDir, "international_sales.jsonl")
		out, err := os.Create(outPath)
		if err != nil {
			log.Fatal("create sales output", zap.Error(err))
		}
		stats, err := ingest.CanonicalizeInternationalSales(cfg, *intlCSV, out)
		out.Close()
		if err != nil {
			log.Fatal("canonicalize sales", zap.Error(err))
		}
		log.Info("international sales canonicalized",
			zap.String("path", outPath),
			zap.Int("rows_total", stats.RowsTotal),
			zap.Int("written", stats.Written),
			zap.Int("skipped_no_ts", stats.SkippedNoTS),
			zap.Int("skipped_bad_date_value", stats.SkippedBadDate),
			zap.Int("skipped_amount_outlier", stats.SkippedOutlier))
	}
}
