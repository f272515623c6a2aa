package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/starmart/internal/batch"
	"github.com/smallbiznis/starmart/internal/config"
	"github.com/smallbiznis/starmart/internal/dimension"
	"github.com/smallbiznis/starmart/internal/fact"
	"github.com/smallbiznis/starmart/internal/logger"
	"github.com/smallbiznis/starmart/internal/pipeline"
	"github.com/smallbiznis/starmart/internal/report"
	"github.com/smallbiznis/starmart/internal/telemetry"
	"github.com/smallbiznis/starmart/internal/warehouse/migration"
	"github.com/smallbiznis/starmart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		telemetry.Module,
		migration.Module,

		// Pipeline stages
		pipeline.Module,
		dimension.Module,
		fact.Module,
		batch.Module,
		report.Module,

		fx.Invoke(runBatch),
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// runBatch executes one batch to completion, exports the aggregate
// reports, and shuts the process down.
func runBatch(lc fx.Lifecycle, shutdowner fx.Shutdowner, runner *batch.Runner, reports *report.Runner, cfg config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				exitCode := 0
				if err := execute(context.Background(), runner, reports, cfg, log); err != nil {
					log.Error("batch failed", zap.Error(err))
					exitCode = 1
				}
				_ = shutdowner.Shutdown(fx.ExitCode(exitCode))
			}()
			return nil
		},
	})
}

func execute(ctx context.Context, runner *batch.Runner, reports *report.Runner, cfg config.Config, log *zap.Logger) error {
	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	results, err := reports.RunAll(ctx, cfg.ExportDir)
	if err != nil {
		return err
	}

	log.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("facts_loaded", summary.FactsLoaded),
		zap.Int("reports", len(results)))
	return nil
}
