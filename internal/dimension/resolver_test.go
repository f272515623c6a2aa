package dimension

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
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

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewResolver(node, telemetry.NewMetrics(), zap.NewNop())
}

func TestEventTypeIDCreatesOnFirstSight(t *testing.T) {
	conn := newTestDB(t)
	r := newResolver(t)
	ctx := context.Background()

	first, err := r.EventTypeID(ctx, conn, "purchase")
	require.NoError(t, err)
	assert.NotZero(t, first)

	second, err := r.EventTypeID(ctx, conn, "purchase")
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated resolution returns the same surrogate key")

	var count int64
	require.NoError(t, conn.Model(&domain.DimEventType{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDimensionUniqueness(t *testing.T) {
	conn := newTestDB(t)
	r := newResolver(t)
	ctx := context.Background()

	names := []string{"ACME", "Globex", "ACME", "Initech", "Globex", "ACME"}
	for _, name := range names {
		_, err := r.CustomerID(ctx, conn, name)
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&domain.DimCustomer{}).Count(&count).Error)
	assert.EqualValues(t, 3, count, "one row per distinct customer name")
}

func TestProductIDDistinctSKUs(t *testing.T) {
	conn := newTestDB(t)
	r := newResolver(t)
	ctx := context.Background()

	a, err := r.ProductID(ctx, conn, "SKU-1")
	require.NoError(t, err)
	b, err := r.ProductID(ctx, conn, "SKU-2")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestResolversShareWarehouseState(t *testing.T) {
	// Two resolver instances against the same store must converge on one
	// surrogate key; the store's uniqueness constraint arbitrates.
	conn := newTestDB(t)
	ctx := context.Background()

	nodeA, err := snowflake.NewNode(1)
	require.NoError(t, err)
	nodeB, err := snowflake.NewNode(2)
	require.NoError(t, err)
	a := NewResolver(nodeA, telemetry.NewMetrics(), zap.NewNop())
	b := NewResolver(nodeB, telemetry.NewMetrics(), zap.NewNop())

	idA, err := a.CustomerID(ctx, conn, "ACME")
	require.NoError(t, err)
	idB, err := b.CustomerID(ctx, conn, "ACME")
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestDateKeyDerivesCalendarFields(t *testing.T) {
	conn := newTestDB(t)
	r := newResolver(t)
	ctx := context.Background()

	key, err := r.DateKey(ctx, conn, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", key)

	var row domain.DimDate
	require.NoError(t, conn.Where("date_key = ?", key).Take(&row).Error)
	assert.Equal(t, 2024, row.Year)
	assert.Equal(t, 1, row.Month)
	assert.Equal(t, 1, row.Day)
	assert.Equal(t, fmt.Sprintf("%04d-%02d-%02d", row.Year, row.Month, row.Day), row.DateKey)
}

func TestDateKeyRejectsMalformedKey(t *testing.T) {
	conn := newTestDB(t)
	r := newResolver(t)

	_, err := r.DateKey(context.Background(), conn, "01/02/2024")
	assert.Error(t, err)
}

func TestEnsureUserAppendOnly(t *testing.T) {
	conn := newTestDB(t)
	r := newResolver(t)
	ctx := context.Background()

	country := "US"
	source := "organic"
	require.NoError(t, r.EnsureUser(ctx, conn, domain.DimUser{UserID: "u1", Country: &country, SignupSource: &source}))

	// A later minimal sighting must not blank the attributes.
	require.NoError(t, r.EnsureUser(ctx, conn, domain.DimUser{UserID: "u1"}))

	var row domain.DimUser
	require.NoError(t, conn.Where("user_id = ?", "u1").Take(&row).Error)
	require.NotNil(t, row.Country)
	assert.Equal(t, "US", *row.Country)
	require.NotNil(t, row.SignupSource)
	assert.Equal(t, "organic", *row.SignupSource)
}
