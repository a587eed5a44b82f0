package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// pharmacyTables are truncated between integration tests
var pharmacyTables = []string{
	"expiry_alerts", "lost_sales", "quarantine_inspections", "stock_movements",
	"applied_requests", "pharmacy_batches",
}

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies migrations.
//
// Usage:
//
//	func TestBatchRepository_Integration(t *testing.T) {
//	    testutil.SkipIfShort(t)
//	    suite := testutil.NewIntegrationSuite(t)
//	    repo := repository.NewBatchRepository(suite.DB)
//	    ...
//	}
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	t.Helper()
	ctx := context.Background()

	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		t.Skipf("postgres test container unavailable: %v", err)
	}

	suite := &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        database.Wrap(db, logger.Nop()),
		Fixtures:  NewFixtureFactory(),
		Logger:    logger.Nop(),
	}
	suite.Truncate(t)
	return suite
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
		if containerErr != nil {
			return
		}
		containerErr = globalContainer.Migrate(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Truncate empties every pharmacy table
func (s *IntegrationSuite) Truncate(t *testing.T) {
	t.Helper()
	for _, table := range pharmacyTables {
		if _, err := s.RawDB.Exec("TRUNCATE TABLE " + table + " CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		_ = globalContainer.Terminate(ctx)
	}
}
