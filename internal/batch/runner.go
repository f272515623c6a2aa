package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/starmart/internal/config"
	"github.com/smallbiznis/starmart/internal/dimension"
	"github.com/smallbiznis/starmart/internal/fact"
	"github.com/smallbiznis/starmart/internal/ingest"
	"github.com/smallbiznis/starmart/internal/pipeline"
	"github.com/smallbiznis/starmart/internal/quality"
	"github.com/smallbiznis/starmart/internal/telemetry"
	"github.com/smallbiznis/starmart/internal/warehouse/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Summary reports the outcome of one batch run. Every input record lands
// in exactly one bucket: loaded fact, quarantine sink, or superseded
// duplicate.
type Summary struct {
	RunID        string
	Policy       string
	RawRecords   int
	Accepted     int
	Duplicates   int
	UsersLoaded  int
	FactsLoaded  int
	FactsSkipped int
	Quarantined  map[string]int
	Warnings     []string
	Duration     time.Duration
}

// Runner executes the transform-and-load pipeline over one input batch:
// validate, enrich, dedup, resolve dimensions, load facts.
type Runner struct {
	conn      *gorm.DB
	cfg       config.Config
	pcfg      config.PipelineConfig
	validator *pipeline.Validator
	enricher  *pipeline.Enricher
	resolver  *dimension.Resolver
	loader    *fact.Loader
	metrics   *telemetry.Metrics
	log       *zap.Logger
}

func NewRunner(
	conn *gorm.DB,
	cfg config.Config,
	pcfg config.PipelineConfig,
	validator *pipeline.Validator,
	enricher *pipeline.Enricher,
	resolver *dimension.Resolver,
	loader *fact.Loader,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *Runner {
	return &Runner{
		conn:      conn,
		cfg:       cfg,
		pcfg:      pcfg,
		validator: validator,
		enricher:  enricher,
		resolver:  resolver,
		loader:    loader,
		metrics:   metrics,
		log:       log,
	}
}

// Run processes the configured input feeds to completion. The batch either
// completes (possibly with quarantined records and warnings) or fails as a
// whole; under the atomic policy a failure leaves no partial writes.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:  ulid.Make().String(),
		Policy: r.pcfg.LoadPolicy,
	}

	sink, err := pipeline.NewQuarantineSink(r.cfg.QuarantinePath)
	if err != nil {
		return summary, err
	}
	defer sink.Close()

	users, err := r.readOptional(r.cfg.UsersPath, ingest.ReadUsers)
	if err != nil {
		return summary, err
	}
	events, err := r.readOptional(r.cfg.EventsPath, ingest.ReadEvents)
	if err != nil {
		return summary, err
	}
	sales, err := r.readOptional(r.cfg.SalesPath, ingest.ReadSales)
	if err != nil {
		return summary, err
	}
	summary.RawRecords = len(users) + len(events) + len(sales)

	dimUsers := r.collectUsers(users, sink, &summary)
	enrichedEvents := r.transform(events, sink, &summary)
	enrichedSales := r.transform(sales, sink, &summary)

	enrichedEvents, eventDups := pipeline.Dedup(enrichedEvents)
	enrichedSales, saleDups := pipeline.Dedup(enrichedSales)
	r.logDuplicates(pipeline.KindEvent, eventDups, &summary)
	r.logDuplicates(pipeline.KindSale, saleDups, &summary)

	loadFn := func(tx *gorm.DB) error {
		for _, user := range dimUsers {
			if err := r.resolver.EnsureUser(ctx, tx, user); err != nil {
				return err
			}
			summary.UsersLoaded++
		}
		for _, rec := range enrichedEvents {
			if err := r.loadEvent(ctx, tx, rec, &summary); err != nil {
				return err
			}
		}
		for _, rec := range enrichedSales {
			if err := r.loadSale(ctx, tx, rec, &summary); err != nil {
				return err
			}
		}
		return nil
	}

	if r.pcfg.LoadPolicy == config.LoadPolicyAtomic {
		err = r.conn.WithContext(ctx).Transaction(loadFn)
	} else {
		err = loadFn(r.conn)
	}
	if err != nil {
		if r.pcfg.LoadPolicy == config.LoadPolicyAtomic {
			return summary, fmt.Errorf("batch aborted, no writes persisted: %w", err)
		}
		return summary, fmt.Errorf("batch aborted, earlier writes persisted (best-effort policy): %w", err)
	}

	summary.Quarantined = sink.Counts()
	summary.Duration = time.Since(start)
	r.metrics.ObserveBatchDuration(summary.Duration.Seconds())

	if err := r.writeQualityReport(summary); err != nil {
		return summary, err
	}

	r.log.Info("batch complete",
		zap.String("run_id", summary.RunID),
		zap.String("policy", summary.Policy),
		zap.Int("raw_records", summary.RawRecords),
		zap.Int("accepted", summary.Accepted),
		zap.Int("quarantined", sink.Total()),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("facts_loaded", summary.FactsLoaded),
		zap.Int("facts_skipped", summary.FactsSkipped),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (r *Runner) readOptional(path string, read func(string) ([]pipeline.RawRecord, error)) ([]pipeline.RawRecord, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		r.log.Info("input feed not present, skipping", zap.String("path", path))
		return nil, nil
	}
	return read(path)
}

// collectUsers validates the user reference feed into dimension rows. The
// reference feed runs before any fact load so attribute-bearing rows win
// over the minimal rows facts would otherwise create.
func (r *Runner) collectUsers(records []pipeline.RawRecord, sink *pipeline.QuarantineSink, summary *Summary) []domain.DimUser {
	var out []domain.DimUser
	for _, raw := range records {
		accepted, reason := r.validator.Validate(raw)
		if reason != "" {
			r.reject(raw, reason, sink)
			continue
		}
		summary.Accepted++
		r.metrics.RecordProcessed(string(raw.Kind), "accepted")

		userID, _ := pipeline.StringField(accepted.Raw.Fields, "user_id")
		row := domain.DimUser{UserID: userID}
		if country, ok := pipeline.StringField(accepted.Raw.Fields, "country"); ok {
			row.Country = &country
		}
		if source, ok := pipeline.StringField(accepted.Raw.Fields, "signup_source"); ok {
			row.SignupSource = &source
		}
		out = append(out, row)
	}
	return out
}

func (r *Runner) transform(records []pipeline.RawRecord, sink *pipeline.QuarantineSink, summary *Summary) []pipeline.EnrichedRecord {
	var out []pipeline.EnrichedRecord
	for _, raw := range records {
		accepted, reason := r.validator.Validate(raw)
		if reason != "" {
			r.reject(raw, reason, sink)
			continue
		}
		enriched, reason := r.enricher.Enrich(accepted)
		if reason != "" {
			r.reject(raw, reason, sink)
			continue
		}
		summary.Accepted++
		r.metrics.RecordProcessed(string(raw.Kind), "accepted")
		out = append(out, enriched)
	}
	return out
}

func (r *Runner) reject(raw pipeline.RawRecord, reason string, sink *pipeline.QuarantineSink) {
	if err := sink.Reject(pipeline.Quarantined{Raw: raw, Reason: reason}); err != nil {
		r.log.Error("quarantine sink write failed", zap.Error(err))
	}
	r.metrics.RecordProcessed(string(raw.Kind), "quarantined")
	r.metrics.RecordQuarantined(reason)
}

func (r *Runner) logDuplicates(kind pipeline.Kind, dups []pipeline.Duplicate, summary *Summary) {
	for _, dup := range dups {
		r.log.Info("superseded in-batch duplicate",
			zap.String("kind", string(kind)),
			zap.String("reason", pipeline.ReasonDuplicatePrimaryKey),
			zap.String("key", dup.Key),
			zap.Int("seq", dup.Superseded.Seq))
		r.metrics.RecordDuplicate(string(kind))
		summary.Duplicates++
	}
}

func (r *Runner) loadEvent(ctx context.Context, tx *gorm.DB, rec pipeline.EnrichedRecord, summary *Summary) error {
	eventTypeID, err := r.resolver.EventTypeID(ctx, tx, rec.Event)
	if err != nil {
		return err
	}
	dateKey, err := r.resolver.DateKey(ctx, tx, rec.DateKey)
	if err != nil {
		return err
	}

	row := domain.FactEvent{
		EventID:     rec.Key,
		TS:          rec.TSRaw,
		EventTypeID: eventTypeID,
		Amount:      rec.Amount,
		EventDate:   dateKey,
		EventHour:   rec.Hour,
	}
	if rec.UserID != "" {
		userID := rec.UserID
		if err := r.resolver.EnsureUser(ctx, tx, domain.DimUser{UserID: userID}); err != nil {
			return err
		}
		row.UserID = &userID
	}

	inserted, conflict, err := r.loader.LoadEvent(ctx, tx, row)
	if err != nil {
		return err
	}
	r.noteLoad(inserted, conflict, summary)
	return nil
}

func (r *Runner) loadSale(ctx context.Context, tx *gorm.DB, rec pipeline.EnrichedRecord, summary *Summary) error {
	customerID, err := r.resolver.CustomerID(ctx, tx, rec.Customer)
	if err != nil {
		return err
	}
	productID, err := r.resolver.ProductID(ctx, tx, rec.SKU)
	if err != nil {
		return err
	}
	dateKey, err := r.resolver.DateKey(ctx, tx, rec.DateKey)
	if err != nil {
		return err
	}

	row := domain.FactInternationalSale{
		SaleID:        rec.Key,
		TS:            rec.TSRaw,
		DateKey:       dateKey,
		CustomerID:    customerID,
		ProductID:     productID,
		Pcs:           rec.Pcs,
		Rate:          rec.Rate,
		GrossAmt:      rec.GrossAmt,
		Currency:      rec.Currency,
		SourceDataset: rec.SourceDataset,
	}

	inserted, conflict, err := r.loader.LoadSale(ctx, tx, row)
	if err != nil {
		return err
	}
	r.noteLoad(inserted, conflict, summary)
	return nil
}

func (r *Runner) noteLoad(inserted bool, conflict *fact.Conflict, summary *Summary) {
	if inserted {
		summary.FactsLoaded++
		return
	}
	summary.FactsSkipped++
	if conflict != nil {
		summary.Warnings = append(summary.Warnings, conflict.String())
	}
}

func (r *Runner) writeQualityReport(summary Summary) error {
	if r.cfg.QualityPath == "" {
		return nil
	}
	report := quality.Report{
		RunID:           summary.RunID,
		RunUTC:          quality.NowUTC(),
		LoadPolicy:      summary.Policy,
		RawRecords:      summary.RawRecords,
		Accepted:        summary.Accepted,
		Duplicates:      summary.Duplicates,
		FactsLoaded:     summary.FactsLoaded,
		FactsSkipped:    summary.FactsSkipped,
		Quarantined:     summary.Quarantined,
		LoaderWarnings:  summary.Warnings,
		DurationSeconds: summary.Duration.Seconds(),
	}
	report.Finalize()
	return quality.Write(r.cfg.QualityPath, report)
}
