package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/domain/ledger"
	"github.com/clinichq/clinic/internal/domain/patient"
	"github.com/clinichq/clinic/internal/domain/scheduling"
	"github.com/clinichq/clinic/internal/platform/db"
	"github.com/clinichq/clinic/internal/platform/notification"
)

const testClinicName = "Bright Smile Dental"

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
// It stays nil when Docker is not available, and each test skips itself.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	if _, err := exec.LookPath("docker"); err != nil {
		fmt.Fprintln(os.Stderr, "docker not found, skipping integration tests")
		os.Exit(m.Run())
	}

	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "run migrations: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{Pool: pool, ConnStr: connStr}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// requireDB skips the test when no database is available.
func requireDB(t *testing.T) *testDB {
	t.Helper()
	if globalDB == nil {
		t.Skip("no database available")
	}
	return globalDB
}

// findMigrationsDir locates the migrations directory relative to this test file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> repository root
	return filepath.Join(dir, "..", "..", "migrations")
}

// testEnv wires the real repositories and services against the shared pool,
// with an in-memory notification manager so deliveries can be inspected.
type testEnv struct {
	Patients   *patient.Service
	Ledger     *ledger.Service
	Scheduling *scheduling.Service
	Manager    *notification.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tdb := requireDB(t)

	logger := zerolog.Nop()
	manager := notification.NewManager(notification.NewLogEmailSender(logger), nil, "", notification.NewEngine(), logger)

	patientRepo := patient.NewRepoPG(tdb.Pool)
	txRunner := patient.TxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, tdb.Pool, fn)
	})

	return &testEnv{
		Patients:   patient.NewService(patientRepo, txRunner, manager, logger, testClinicName),
		Ledger:     ledger.NewService(ledger.NewRepoPG(tdb.Pool), patientRepo, txRunner, manager, logger, testClinicName),
		Scheduling: scheduling.NewService(patientRepo, manager, logger, testClinicName),
		Manager:    manager,
	}
}

func strptr(s string) *string { return &s }
