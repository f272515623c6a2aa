package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Dimension rows are append-only reference data: created lazily on first
// sight of a natural key, never updated or deleted by the pipeline.

// DimUser is keyed by the natural user id. Country and signup source come
// from the users reference feed and stay NULL for users first seen on an
// event.
type DimUser struct {
	UserID       string  `gorm:"column:user_id;primaryKey" json:"user_id"`
	Country      *string `gorm:"column:country" json:"country,omitempty"`
	SignupSource *string `gorm:"column:signup_source" json:"signup_source,omitempty"`
}

func (DimUser) TableName() string { return "dim_users" }

type DimCustomer struct {
	CustomerID   snowflake.ID `gorm:"column:customer_id;primaryKey" json:"customer_id"`
	CustomerName string       `gorm:"column:customer_name;uniqueIndex;not null" json:"customer_name"`
}

func (DimCustomer) TableName() string { return "dim_customers" }

type DimProduct struct {
	ProductID snowflake.ID `gorm:"column:product_id;primaryKey" json:"product_id"`
	SKU       string       `gorm:"column:sku;uniqueIndex;not null" json:"sku"`
}

func (DimProduct) TableName() string { return "dim_products" }

type DimEventType struct {
	EventTypeID snowflake.ID `gorm:"column:event_type_id;primaryKey" json:"event_type_id"`
	Event       string       `gorm:"column:event;uniqueIndex;not null" json:"event"`
}

func (DimEventType) TableName() string { return "dim_event_types" }

// DimDate is keyed by the YYYY-MM-DD date key. Year, month and day are
// always derived from the key itself so the four columns cannot drift.
type DimDate struct {
	DateKey string `gorm:"column:date_key;primaryKey" json:"date_key"`
	Year    int    `gorm:"column:year;not null" json:"year"`
	Month   int    `gorm:"column:month;not null" json:"month"`
	Day     int    `gorm:"column:day;not null" json:"day"`
}

func (DimDate) TableName() string { return "dim_dates" }

// FactEvent is one deduplicated behavioral event. The event_id is the
// natural key from the source feed; a load with an existing id is a no-op.
type FactEvent struct {
	EventID     string           `gorm:"column:event_id;primaryKey" json:"event_id"`
	TS          string           `gorm:"column:ts;not null" json:"ts"`
	UserID      *string          `gorm:"column:user_id;index" json:"user_id,omitempty"`
	EventTypeID snowflake.ID     `gorm:"column:event_type_id;not null;index" json:"event_type_id"`
	Amount      *decimal.Decimal `gorm:"column:amount;type:numeric" json:"amount,omitempty"`
	EventDate   string           `gorm:"column:event_date;not null;index" json:"event_date"`
	EventHour   int              `gorm:"column:event_hour;not null" json:"event_hour"`
}

func (FactEvent) TableName() string { return "fact_events" }

// FactInternationalSale is one deduplicated wholesale invoice line.
type FactInternationalSale struct {
	SaleID        string          `gorm:"column:sale_id;primaryKey" json:"sale_id"`
	TS            string          `gorm:"column:ts;not null" json:"ts"`
	DateKey       string          `gorm:"column:date_key;not null;index" json:"date_key"`
	CustomerID    snowflake.ID    `gorm:"column:customer_id;not null;index" json:"customer_id"`
	ProductID     snowflake.ID    `gorm:"column:product_id;not null;index" json:"product_id"`
	Pcs           int64           `gorm:"column:pcs;not null" json:"pcs"`
	Rate          decimal.Decimal `gorm:"column:rate;type:numeric;not null" json:"rate"`
	GrossAmt      decimal.Decimal `gorm:"column:gross_amt;type:numeric;not null" json:"gross_amt"`
	Currency      string          `gorm:"column:currency;not null" json:"currency"`
	SourceDataset string          `gorm:"column:source_dataset" json:"source_dataset,omitempty"`
}

func (FactInternationalSale) TableName() string { return "fact_international_sales" }

// All lists every warehouse model in dependency order, dimensions first.
func All() []any {
	return []any{
		&DimUser{},
		&DimCustomer{},
		&DimProduct{},
		&DimEventType{},
		&DimDate{},
		&FactEvent{},
		&FactInternationalSale{},
	}
}
