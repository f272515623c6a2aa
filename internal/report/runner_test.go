package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/starmart/internal/warehouse/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSeededDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(domain.All()...))

	pageview := domain.DimEventType{EventTypeID: 1, Event: "pageview"}
	purchase := domain.DimEventType{EventTypeID: 2, Event: "purchase"}
	signup := domain.DimEventType{EventTypeID: 3, Event: "signup"}
	require.NoError(t, conn.Create([]*domain.DimEventType{&pageview, &purchase, &signup}).Error)

	require.NoError(t, conn.Create([]*domain.DimUser{
		{UserID: "u1"}, {UserID: "u2"},
	}).Error)
	require.NoError(t, conn.Create([]*domain.DimDate{
		{DateKey: "2024-01-01", Year: 2024, Month: 1, Day: 1},
		{DateKey: "2024-01-02", Year: 2024, Month: 1, Day: 2},
		{DateKey: "2022-04-30", Year: 2022, Month: 4, Day: 30},
	}).Error)

	u1, u2 := "u1", "u2"
	amt := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	require.NoError(t, conn.Create([]*domain.FactEvent{
		{EventID: "e1", TS: "2024-01-01T10:00:00", UserID: &u1, EventTypeID: 2, Amount: amt("10.00"), EventDate: "2024-01-01", EventHour: 10},
		{EventID: "e2", TS: "2024-01-01T11:00:00", UserID: &u2, EventTypeID: 2, Amount: amt("5.50"), EventDate: "2024-01-01", EventHour: 11},
		{EventID: "e3", TS: "2024-01-01T12:00:00", UserID: &u1, EventTypeID: 1, EventDate: "2024-01-01", EventHour: 12},
		{EventID: "e4", TS: "2024-01-02T09:00:00", UserID: &u2, EventTypeID: 3, EventDate: "2024-01-02", EventHour: 9},
		{EventID: "e5", TS: "2024-01-02T10:00:00", UserID: &u2, EventTypeID: 2, Amount: amt("20.00"), EventDate: "2024-01-02", EventHour: 10},
	}).Error)

	require.NoError(t, conn.Create([]*domain.DimCustomer{{CustomerID: 10, CustomerName: "ACME"}}).Error)
	require.NoError(t, conn.Create([]*domain.DimProduct{{ProductID: 20, SKU: "SKU-1"}}).Error)
	require.NoError(t, conn.Create([]*domain.FactInternationalSale{
		{SaleID: "s1", TS: "2022-04-30T12:00:00", DateKey: "2022-04-30", CustomerID: 10, ProductID: 20, Pcs: 3, Rate: decimal.RequireFromString("110.33"), GrossAmt: decimal.RequireFromString("330.99"), Currency: "INR"},
		{SaleID: "s2", TS: "2022-04-30T13:00:00", DateKey: "2022-04-30", CustomerID: 10, ProductID: 20, Pcs: 1, Rate: decimal.RequireFromString("100.01"), GrossAmt: decimal.RequireFromString("100.01"), Currency: "INR"},
	}).Error)

	return conn
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func mustFloat(t *testing.T, raw string) float64 {
	t.Helper()
	value, err := strconv.ParseFloat(raw, 64)
	require.NoError(t, err)
	return value
}

func TestRunAllExportsEveryReport(t *testing.T) {
	conn := newSeededDB(t)
	dir := t.TempDir()

	results, err := NewRunner(conn, zap.NewNop()).RunAll(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, len(queries))

	for _, res := range results {
		_, err := os.Stat(res.Path)
		assert.NoError(t, err, "export %s exists", res.Name)
	}
}

func TestDAUReport(t *testing.T) {
	conn := newSeededDB(t)
	dir := t.TempDir()

	results, err := NewRunner(conn, zap.NewNop()).RunAll(context.Background(), dir)
	require.NoError(t, err)

	rows := readCSV(t, results[0].Path)
	require.Equal(t, []string{"event_date", "dau"}, rows[0])
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2024-01-01", "2"}, rows[1])
	assert.Equal(t, []string{"2024-01-02", "1"}, rows[2])
}

func TestRevenueReports(t *testing.T) {
	conn := newSeededDB(t)
	dir := t.TempDir()

	results, err := NewRunner(conn, zap.NewNop()).RunAll(context.Background(), dir)
	require.NoError(t, err)

	byName := make(map[string]Result, len(results))
	for _, res := range results {
		byName[res.Name] = res
	}

	revenue := readCSV(t, byName["revenue"].Path)
	require.Len(t, revenue, 3)
	assert.Equal(t, "2024-01-01", revenue[1][0])
	assert.InDelta(t, 15.50, mustFloat(t, revenue[1][1]), 1e-9)
	assert.InDelta(t, 20.00, mustFloat(t, revenue[2][1]), 1e-9)

	intl := readCSV(t, byName["international_revenue"].Path)
	require.Len(t, intl, 2)
	assert.Equal(t, "2022-04-30", intl[1][0])
	assert.InDelta(t, 431.00, mustFloat(t, intl[1][1]), 1e-9)
	assert.Equal(t, "2", intl[1][2])
}

func TestFunnelReport(t *testing.T) {
	conn := newSeededDB(t)
	dir := t.TempDir()

	results, err := NewRunner(conn, zap.NewNop()).RunAll(context.Background(), dir)
	require.NoError(t, err)

	var funnel [][]string
	for _, res := range results {
		if res.Name == "funnel" {
			funnel = readCSV(t, res.Path)
		}
	}
	require.Len(t, funnel, 3)

	// 2024-01-01 has purchases but no signups; rate stays zero
	assert.Equal(t, "0", funnel[1][1])
	assert.InDelta(t, 0.0, mustFloat(t, funnel[1][3]), 1e-9)

	// u2 signs up and purchases the same day
	assert.Equal(t, "1", funnel[2][1])
	assert.Equal(t, "1", funnel[2][2])
	assert.InDelta(t, 1.0, mustFloat(t, funnel[2][3]), 1e-9)
}

func TestEventCountsReport(t *testing.T) {
	conn := newSeededDB(t)
	dir := t.TempDir()

	results, err := NewRunner(conn, zap.NewNop()).RunAll(context.Background(), dir)
	require.NoError(t, err)

	var counts [][]string
	for _, res := range results {
		if res.Name == "event_counts" {
			counts = readCSV(t, res.Path)
		}
	}
	require.Len(t, counts, 5)
	assert.Equal(t, []string{"2024-01-01", "pageview", "1"}, counts[1])
	assert.Equal(t, []string{"2024-01-01", "purchase", "2"}, counts[2])
}
