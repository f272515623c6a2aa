package fact

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/starmart/internal/telemetry"
	"github.com/smallbiznis/starmart/internal/warehouse/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(domain.All()...))
	return conn
}

func sampleEvent() domain.FactEvent {
	userID := "u1"
	amount := decimal.RequireFromString("10.00")
	return domain.FactEvent{
		EventID:     "e1",
		TS:          "2024-01-01T10:00:00",
		UserID:      &userID,
		EventTypeID: 42,
		Amount:      &amount,
		EventDate:   "2024-01-01",
		EventHour:   10,
	}
}

func TestLoadEventIdempotent(t *testing.T) {
	conn := newTestDB(t)
	l := NewLoader(telemetry.NewMetrics(), zap.NewNop())
	ctx := context.Background()

	inserted, conflict, err := l.LoadEvent(ctx, conn, sampleEvent())
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Nil(t, conflict)

	inserted, conflict, err = l.LoadEvent(ctx, conn, sampleEvent())
	require.NoError(t, err)
	assert.False(t, inserted, "second load of the same row is a no-op")
	assert.Nil(t, conflict, "identical values are not a conflict")

	var count int64
	require.NoError(t, conn.Model(&domain.FactEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLoadEventConflictKeepsExistingRow(t *testing.T) {
	conn := newTestDB(t)
	l := NewLoader(telemetry.NewMetrics(), zap.NewNop())
	ctx := context.Background()

	_, _, err := l.LoadEvent(ctx, conn, sampleEvent())
	require.NoError(t, err)

	changed := sampleEvent()
	amount := decimal.RequireFromString("99.99")
	changed.Amount = &amount
	changed.EventHour = 11

	inserted, conflict, err := l.LoadEvent(ctx, conn, changed)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NotNil(t, conflict, "conflicting values must surface as a warning")
	assert.ElementsMatch(t, []string{"amount", "event_hour"}, conflict.Fields)

	var row domain.FactEvent
	require.NoError(t, conn.Where("event_id = ?", "e1").Take(&row).Error)
	require.NotNil(t, row.Amount)
	assert.True(t, row.Amount.Equal(decimal.RequireFromString("10.00")), "existing row is authoritative")
	assert.Equal(t, 10, row.EventHour)
}

func TestLoadSaleIdempotent(t *testing.T) {
	conn := newTestDB(t)
	l := NewLoader(telemetry.NewMetrics(), zap.NewNop())
	ctx := context.Background()

	row := domain.FactInternationalSale{
		SaleID:        "s1",
		TS:            "2022-04-30T12:00:00",
		DateKey:       "2022-04-30",
		CustomerID:    7,
		ProductID:     9,
		Pcs:           3,
		Rate:          decimal.RequireFromString("110.00"),
		GrossAmt:      decimal.RequireFromString("330.00"),
		Currency:      "USD",
		SourceDataset: "International sale Report.csv",
	}

	inserted, conflict, err := l.LoadSale(ctx, conn, row)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Nil(t, conflict)

	inserted, conflict, err = l.LoadSale(ctx, conn, row)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, conflict)

	var count int64
	require.NoError(t, conn.Model(&domain.FactInternationalSale{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLoadSaleConflictFields(t *testing.T) {
	conn := newTestDB(t)
	l := NewLoader(telemetry.NewMetrics(), zap.NewNop())
	ctx := context.Background()

	row := domain.FactInternationalSale{
		SaleID:   "s1",
		TS:       "2022-04-30T12:00:00",
		DateKey:  "2022-04-30",
		Pcs:      3,
		Rate:     decimal.RequireFromString("110.00"),
		GrossAmt: decimal.RequireFromString("330.00"),
		Currency: "USD",
	}
	_, _, err := l.LoadSale(ctx, conn, row)
	require.NoError(t, err)

	changed := row
	changed.GrossAmt = decimal.RequireFromString("331.00")
	changed.Currency = "INR"

	_, conflict, err := l.LoadSale(ctx, conn, changed)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.ElementsMatch(t, []string{"gross_amt", "currency"}, conflict.Fields)
	assert.Contains(t, conflict.String(), "fact_international_sales")
}
