//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"costlens/config"
	"costlens/internal/app"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// DBType is either "postgresql" or "mongodb"
	DBType string

	// LedgerEnabled enables savings event recording
	LedgerEnabled bool

	// SpendScript is the body of a /bin/sh script standing in for the spend
	// CLI. Empty disables the spend source, so reports degrade to
	// savings-only data.
	SpendScript string

	// MasterKey sets the authentication master key (empty = unsafe mode)
	MasterKey string
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// App is the running application
	App *app.App

	// PgPool is the PostgreSQL connection pool (for DB assertions)
	PgPool *pgxpool.Pool

	// MongoDb is the MongoDB database (for DB assertions)
	MongoDb *mongo.Database

	// DBType is the configured database type
	DBType string

	cancelFunc context.CancelFunc
}

// SetupTestServer creates a test server with the specified configuration.
func SetupTestServer(t *testing.T, cfg TestServerConfig) *TestServerFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(GetTestContext())

	// Find available port
	port, err := findAvailablePort()
	require.NoError(t, err, "failed to find available port")

	// Build app config
	appCfg := buildAppConfig(t, cfg, port)

	// Create app
	application, err := app.New(ctx, appCfg)
	require.NoError(t, err, "failed to create app")

	// Start server in background
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		_ = application.Start()
	}()

	// Wait for server to be healthy
	err = waitForServer(serverURL + "/health")
	require.NoError(t, err, "server failed to become healthy")

	fixture := &TestServerFixture{
		ServerURL:  serverURL,
		App:        application,
		DBType:     cfg.DBType,
		cancelFunc: cancel,
	}

	// Set database references for assertions
	switch cfg.DBType {
	case "postgresql":
		fixture.PgPool = GetPostgreSQLPool()
	case "mongodb":
		fixture.MongoDb = GetMongoDatabase()
	}

	return fixture
}

// FlushAndClose flushes all pending ledger writes and closes the app.
// CRITICAL: Call this before making any DB assertions.
func (f *TestServerFixture) FlushAndClose(t *testing.T) {
	t.Helper()

	// Shutting down the app drains the recorder buffer into storage
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		err := f.App.Shutdown(ctx)
		require.NoError(t, err, "failed to shutdown app")
	}
}

// Shutdown gracefully shuts down the test server.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		_ = f.App.Shutdown(ctx)
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
	}
}

// buildAppConfig creates an application config for testing.
func buildAppConfig(t *testing.T, cfg TestServerConfig, port int) *config.Config {
	t.Helper()

	appCfg := config.Default()
	appCfg.Server.Port = fmt.Sprintf("%d", port)
	appCfg.Server.MasterKey = cfg.MasterKey
	appCfg.Server.MetricsEnabled = false

	appCfg.Ledger.Enabled = cfg.LedgerEnabled
	appCfg.Ledger.BufferSize = 100
	appCfg.Ledger.FlushInterval = 1
	appCfg.Ledger.RetentionDays = 0

	appCfg.Cache.Type = "local"
	appCfg.Cache.Dir = t.TempDir()

	if cfg.SpendScript == "" {
		appCfg.Spend.Disabled = true
	} else {
		appCfg.Spend.Command = writeSpendScript(t, cfg.SpendScript)
		appCfg.Spend.TimeoutSeconds = 10
	}

	// Configure storage based on DBType
	switch cfg.DBType {
	case "postgresql":
		appCfg.Storage = config.StorageConfig{
			Type: "postgresql",
			PostgreSQL: config.PostgreSQLConfig{
				URL:      GetPostgreSQLURL(),
				MaxConns: 5,
			},
		}
	case "mongodb":
		appCfg.Storage = config.StorageConfig{
			Type: "mongodb",
			MongoDB: config.MongoDBConfig{
				URL:      GetMongoURL(),
				Database: "costlens_test",
			},
		}
	default:
		t.Fatalf("unsupported DB type: %s", cfg.DBType)
	}

	return appCfg
}

// writeSpendScript writes an executable shell script that stands in for the
// spend CLI, so fixtures control exactly what the external source emits.
func writeSpendScript(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fake-ccusage")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755)
	require.NoError(t, err, "failed to write fake spend CLI")
	return path
}

// waitForServer waits for the server to become healthy.
func waitForServer(healthURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(healthURL)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within timeout")
}

// findAvailablePort finds an available TCP port on loopback.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
