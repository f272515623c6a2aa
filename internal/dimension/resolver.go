package dimension

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/starmart/internal/telemetry"
	"github.com/smallbiznis/starmart/internal/warehouse/domain"
	"github.com/smallbiznis/starmart/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Resolver maps natural keys to warehouse surrogate keys, creating the
// dimension row on first sight. Every resolve goes through a
// uniqueness-constrained insert with a conflict-then-fetch fallback, so
// concurrent callers racing on the same new natural key all converge on
// the surrogate key of the single insert that won. There is deliberately
// no cache: existence is checked at call time so repeated runs stay safe.
type Resolver struct {
	node    *snowflake.Node
	metrics *telemetry.Metrics
	log     *zap.Logger
}

func NewResolver(node *snowflake.Node, metrics *telemetry.Metrics, log *zap.Logger) *Resolver {
	return &Resolver{node: node, metrics: metrics, log: log}
}

// EnsureUser creates the user dimension row if the user id is new. Rows are
// append-only: a second sighting never updates country or signup source,
// the first insert is authoritative.
func (r *Resolver) EnsureUser(ctx context.Context, conn *gorm.DB, user domain.DimUser) error {
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&user)
	if result.Error != nil && !db.IsDuplicateKeyErr(result.Error) {
		return fmt.Errorf("ensure dim_users %q: %w", user.UserID, result.Error)
	}
	if result.Error == nil && result.RowsAffected > 0 {
		r.metrics.DimensionCreated("dim_users")
	}
	return nil
}

// CustomerID resolves a customer name to its surrogate key.
func (r *Resolver) CustomerID(ctx context.Context, conn *gorm.DB, name string) (snowflake.ID, error) {
	row := domain.DimCustomer{CustomerID: r.node.Generate(), CustomerName: name}
	created, err := r.insertOrFetch(ctx, conn, &row, clause.Column{Name: "customer_name"}, func() error {
		return conn.WithContext(ctx).Where("customer_name = ?", name).Take(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("resolve dim_customers %q: %w", name, err)
	}
	if created {
		r.metrics.DimensionCreated("dim_customers")
	}
	return row.CustomerID, nil
}

// ProductID resolves a SKU to its surrogate key.
func (r *Resolver) ProductID(ctx context.Context, conn *gorm.DB, sku string) (snowflake.ID, error) {
	row := domain.DimProduct{ProductID: r.node.Generate(), SKU: sku}
	created, err := r.insertOrFetch(ctx, conn, &row, clause.Column{Name: "sku"}, func() error {
		return conn.WithContext(ctx).Where("sku = ?", sku).Take(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("resolve dim_products %q: %w", sku, err)
	}
	if created {
		r.metrics.DimensionCreated("dim_products")
	}
	return row.ProductID, nil
}

// EventTypeID resolves a canonical event label to its surrogate key.
func (r *Resolver) EventTypeID(ctx context.Context, conn *gorm.DB, event string) (snowflake.ID, error) {
	row := domain.DimEventType{EventTypeID: r.node.Generate(), Event: event}
	created, err := r.insertOrFetch(ctx, conn, &row, clause.Column{Name: "event"}, func() error {
		return conn.WithContext(ctx).Where("event = ?", event).Take(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("resolve dim_event_types %q: %w", event, err)
	}
	if created {
		r.metrics.DimensionCreated("dim_event_types")
	}
	return row.EventTypeID, nil
}

// DateKey ensures the date dimension row for a YYYY-MM-DD key exists and
// returns the key. Year, month and day are derived from the key string
// itself, never from a separate source.
func (r *Resolver) DateKey(ctx context.Context, conn *gorm.DB, key string) (string, error) {
	parsed, err := time.Parse("2006-01-02", key)
	if err != nil {
		return "", fmt.Errorf("resolve dim_dates %q: %w", key, err)
	}

	row := domain.DimDate{
		DateKey: key,
		Year:    parsed.Year(),
		Month:   int(parsed.Month()),
		Day:     parsed.Day(),
	}
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date_key"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil && !db.IsDuplicateKeyErr(result.Error) {
		return "", fmt.Errorf("resolve dim_dates %q: %w", key, result.Error)
	}
	if result.Error == nil && result.RowsAffected > 0 {
		r.metrics.DimensionCreated("dim_dates")
	}
	return key, nil
}

// insertOrFetch attempts the uniqueness-constrained insert and falls back
// to fetching the winning row when the natural key already exists.
func (r *Resolver) insertOrFetch(ctx context.Context, conn *gorm.DB, row any, conflict clause.Column, fetch func() error) (bool, error) {
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{conflict},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		if !db.IsDuplicateKeyErr(result.Error) {
			return false, result.Error
		}
		return false, fetch()
	}
	if result.RowsAffected == 0 {
		return false, fetch()
	}
	return true, nil
}
