// Package integration runs the invoice flow against a real PostgreSQL database
// started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// Shared container for all tests in the package
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated test database connection
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	DSN   string
	t     *testing.T
}

// NewSharedTestDB returns a connection to the package's PostgreSQL container,
// starting and migrating it on first use. Tests share state and should
// create their own orders.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer == nil {
		ctx := context.Background()
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("storefront_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("admin123"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "Failed to start shared PostgreSQL container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "Failed to get connection string")

		_, sqlDB := connectToDatabase(t, dsn)
		runMigrations(t, sqlDB)
		sqlDB.Close()

		sharedContainer = container
		sharedContainerDSN = dsn
	}

	db, sqlDB := connectToDatabase(t, sharedContainerDSN)
	tdb := &TestDB{DB: db, SqlDB: sqlDB, DSN: sharedContainerDSN, t: t}

	// The container outlives the test; only the connection is closed
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return tdb
}

// CleanupSharedContainer terminates the shared container. Call it from TestMain.
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}

// TestItem describes one order line seeded by CreateTestOrder
type TestItem struct {
	Name        string
	Distributor string
	Model       string
	Serial      string
	Qty         int
	Price       string
}

// CreateTestOrder inserts a customer and an order with the given items and
// returns the order ID. Line totals are Qty x Price and the order total is
// their sum.
func (tdb *TestDB) CreateTestOrder(customerName, email string, items ...TestItem) uuid.UUID {
	tdb.t.Helper()

	customerID := uuid.New()
	err := tdb.DB.Exec(`
		INSERT INTO customers (id, name, email, address)
		VALUES (?, ?, ?, ?)
	`, customerID, customerName, email, "42 Harbor Road, Springfield").Error
	require.NoError(tdb.t, err, "Failed to create test customer")

	orderID := uuid.New()
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.RequireFromString(item.Price).Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	err = tdb.DB.Exec(`
		INSERT INTO orders (id, customer_id, brand, serial_number, total_amount, placed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, orderID, customerID, "Acme", "SN-"+orderID.String()[:8], total, time.Now().UTC()).Error
	require.NoError(tdb.t, err, "Failed to create test order")

	for i, item := range items {
		price := decimal.RequireFromString(item.Price)
		err = tdb.DB.Exec(`
			INSERT INTO order_items (id, order_id, position, name, distributor, model, serial_number, quantity, unit_price, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.New(), orderID, i+1, item.Name, item.Distributor, item.Model, item.Serial,
			item.Qty, price, price.Mul(decimal.NewFromInt(int64(item.Qty)))).Error
		require.NoError(tdb.t, err, "Failed to create test order item")
	}
	return orderID
}

// connectToDatabase establishes a GORM connection to the database
func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// runMigrations applies the migrations embedded in the binary
func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")

	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.NotZero(t, version)
}
