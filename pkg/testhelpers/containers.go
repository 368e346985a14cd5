package testhelpers

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/database"
)

// PostgresImage is the PostgreSQL image used for integration tests.
const PostgresImage = "postgres:16-alpine"

const (
	adminUser     = "botdesk"
	adminPassword = "test_password"
	testDatabase  = "botdesk_test"

	// The application connects as a non-superuser so row-level security applies.
	appRole     = "botdesk_app"
	appPassword = "botdesk_app_password"
)

// TestDB holds a shared test database container with migrations applied.
type TestDB struct {
	Container *postgres.PostgresContainer
	// DB connects as the application role; RLS policies are enforced.
	DB *database.DB
	// Admin connects as the superuser and bypasses RLS. Use it for fixtures
	// and for asserting what is actually stored.
	Admin   *pgxpool.Pool
	ConnStr string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, PostgresImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(adminUser),
		postgres.WithPassword(adminPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	adminConnStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := database.OpenMigrationDB(adminConnStr)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	admin, err := pgxpool.New(ctx, adminConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin pool: %w", err)
	}

	if err := createAppRole(ctx, admin); err != nil {
		return nil, err
	}

	appConnStr, err := withCredentials(adminConnStr, appRole, appPassword)
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            appConnStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect as application role: %w", err)
	}

	return &TestDB{
		Container: container,
		DB:        db,
		Admin:     admin,
		ConnStr:   appConnStr,
	}, nil
}

func createAppRole(ctx context.Context, admin *pgxpool.Pool) error {
	statements := []string{
		fmt.Sprintf(`DO $$ BEGIN
			IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = '%s') THEN
				CREATE ROLE %s LOGIN PASSWORD '%s' NOSUPERUSER NOBYPASSRLS;
			END IF;
		END $$`, appRole, appRole, appPassword),
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", appRole),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO %s", appRole),
	}
	for _, stmt := range statements {
		if _, err := admin.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare application role: %w", err)
		}
	}
	return nil
}

func withCredentials(connStr, user, password string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}

// CreateUser inserts a user row directly and returns its ID.
// The email is made unique per call so tests can share the database.
func (d *TestDB) CreateUser(t *testing.T, emailPrefix string) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	email := fmt.Sprintf("%s-%s@example.com", emailPrefix, uuid.NewString()[:8])
	err := d.Admin.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash) VALUES ($1, 'x') RETURNING id`, email).Scan(&id)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return id
}

// TenantContext returns a context scoped to userID, as the tenant middleware would
// build it. The cleanup function releases the connection.
func (d *TestDB) TenantContext(t *testing.T, userID uuid.UUID) (context.Context, func()) {
	t.Helper()

	scope, err := d.DB.WithTenant(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to create tenant scope: %v", err)
	}
	return database.SetTenantScope(context.Background(), scope), scope.Close
}

// SystemContext returns a context with an unscoped connection, as used by webhook ingest.
func (d *TestDB) SystemContext(t *testing.T) (context.Context, func()) {
	t.Helper()

	scope, err := d.DB.WithoutTenant(context.Background())
	if err != nil {
		t.Fatalf("failed to create system scope: %v", err)
	}
	return database.SetTenantScope(context.Background(), scope), scope.Close
}
