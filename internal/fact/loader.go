package fact

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/starmart/internal/telemetry"
	"github.com/smallbiznis/starmart/internal/warehouse/domain"
	"github.com/smallbiznis/starmart/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Conflict describes a fact row whose natural key already exists in the
// warehouse with different values. The existing row stays authoritative;
// the conflict is surfaced as a warning so drift is visible, never masked.
type Conflict struct {
	Table  string
	Key    string
	Fields []string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s key %q already loaded with different %s", c.Table, c.Key, strings.Join(c.Fields, ", "))
}

// Loader writes fact rows keyed by their natural primary key. A load with
// an existing key is a silent no-op when values match, so re-running the
// same batch is idempotent.
type Loader struct {
	metrics *telemetry.Metrics
	log     *zap.Logger
}

func NewLoader(metrics *telemetry.Metrics, log *zap.Logger) *Loader {
	return &Loader{metrics: metrics, log: log}
}

// LoadEvent inserts one behavioral-event fact row. It reports whether a
// row was written and any value conflict with a pre-existing row.
func (l *Loader) LoadEvent(ctx context.Context, conn *gorm.DB, row domain.FactEvent) (bool, *Conflict, error) {
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil && !db.IsDuplicateKeyErr(result.Error) {
		return false, nil, fmt.Errorf("load fact_events %q: %w", row.EventID, result.Error)
	}
	if result.Error == nil && result.RowsAffected > 0 {
		l.metrics.FactLoaded("fact_events", "inserted")
		return true, nil, nil
	}

	var existing domain.FactEvent
	if err := conn.WithContext(ctx).Where("event_id = ?", row.EventID).Take(&existing).Error; err != nil {
		return false, nil, fmt.Errorf("load fact_events %q: %w", row.EventID, err)
	}
	conflict := diffEvent(existing, row)
	if conflict != nil {
		l.metrics.FactLoaded("fact_events", "conflict")
		l.log.Warn("fact row conflict, existing row kept",
			zap.String("table", "fact_events"),
			zap.String("event_id", row.EventID),
			zap.Strings("fields", conflict.Fields))
	} else {
		l.metrics.FactLoaded("fact_events", "skipped")
	}
	return false, conflict, nil
}

// LoadSale inserts one international-sale fact row with the same upsert
// semantics as LoadEvent.
func (l *Loader) LoadSale(ctx context.Context, conn *gorm.DB, row domain.FactInternationalSale) (bool, *Conflict, error) {
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sale_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil && !db.IsDuplicateKeyErr(result.Error) {
		return false, nil, fmt.Errorf("load fact_international_sales %q: %w", row.SaleID, result.Error)
	}
	if result.Error == nil && result.RowsAffected > 0 {
		l.metrics.FactLoaded("fact_international_sales", "inserted")
		return true, nil, nil
	}

	var existing domain.FactInternationalSale
	if err := conn.WithContext(ctx).Where("sale_id = ?", row.SaleID).Take(&existing).Error; err != nil {
		return false, nil, fmt.Errorf("load fact_international_sales %q: %w", row.SaleID, err)
	}
	conflict := diffSale(existing, row)
	if conflict != nil {
		l.metrics.FactLoaded("fact_international_sales", "conflict")
		l.log.Warn("fact row conflict, existing row kept",
			zap.String("table", "fact_international_sales"),
			zap.String("sale_id", row.SaleID),
			zap.Strings("fields", conflict.Fields))
	} else {
		l.metrics.FactLoaded("fact_international_sales", "skipped")
	}
	return false, conflict, nil
}

func diffEvent(existing, incoming domain.FactEvent) *Conflict {
	var fields []string
	if existing.TS != incoming.TS {
		fields = append(fields, "ts")
	}
	if !equalStringPtr(existing.UserID, incoming.UserID) {
		fields = append(fields, "user_id")
	}
	if existing.EventTypeID != incoming.EventTypeID {
		fields = append(fields, "event_type_id")
	}
	if !equalDecimalPtr(existing.Amount, incoming.Amount) {
		fields = append(fields, "amount")
	}
	if existing.EventDate != incoming.EventDate {
		fields = append(fields, "event_date")
	}
	if existing.EventHour != incoming.EventHour {
		fields = append(fields, "event_hour")
	}
	if len(fields) == 0 {
		return nil
	}
	return &Conflict{Table: "fact_events", Key: incoming.EventID, Fields: fields}
}

func diffSale(existing, incoming domain.FactInternationalSale) *Conflict {
	var fields []string
	if existing.TS != incoming.TS {
		fields = append(fields, "ts")
	}
	if existing.DateKey != incoming.DateKey {
		fields = append(fields, "date_key")
	}
	if existing.CustomerID != incoming.CustomerID {
		fields = append(fields, "customer_id")
	}
	if existing.ProductID != incoming.ProductID {
		fields = append(fields, "product_id")
	}
	if existing.Pcs != incoming.Pcs {
		fields = append(fields, "pcs")
	}
	if !existing.Rate.Equal(incoming.Rate) {
		fields = append(fields, "rate")
	}
	if !existing.GrossAmt.Equal(incoming.GrossAmt) {
		fields = append(fields, "gross_amt")
	}
	if existing.Currency != incoming.Currency {
		fields = append(fields, "currency")
	}
	if len(fields) == 0 {
		return nil
	}
	return &Conflict{Table: "fact_international_sales", Key: incoming.SaleID, Fields: fields}
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalDecimalPtr(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
