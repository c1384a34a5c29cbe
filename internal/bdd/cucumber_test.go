package bdd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirino/memory-journal/internal/cmd/serve"
	"github.com/chirino/memory-journal/internal/config"
	"github.com/chirino/memory-journal/internal/plugin/store/postgres"
	"github.com/chirino/memory-journal/internal/plugin/store/sqlite"
	"github.com/chirino/memory-journal/internal/testutil/cucumber"
	"github.com/chirino/memory-journal/internal/testutil/testdb"
	"github.com/chirino/memory-journal/internal/testutil/testpg"
	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"

	// Import plugins to trigger init() registration
	_ "github.com/chirino/memory-journal/internal/plugin/route/system"
)

const testGoogleClientID = "journal-test-client"

func TestFeatures(t *testing.T) {
	_ = sqlite.ForceImport

	cfg := testdb.Config(t)
	runFeatures(t, cfg, &SQLiteTestDB{DBURL: cfg.DBURL})
}

func TestFeaturesPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres features in short mode")
	}
	_ = postgres.ForceImport

	dbURL := testpg.StartPostgres(t)
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "postgres"
	cfg.DBURL = dbURL
	runFeatures(t, &cfg, &PostgresTestDB{DBURL: dbURL})
}

// freePort reserves an ephemeral port. The server needs its final address up
// front because provider callback URLs are fixed at startup.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func runFeatures(t *testing.T, cfg *config.Config, db cucumber.TestDB) {
	google := NewMockGoogle(t, testGoogleClientID)

	port := freePort(t)
	apiURL := fmt.Sprintf("http://localhost:%d", port)
	cfg.BaseURL = apiURL
	cfg.GoogleIssuer = google.Server.URL
	cfg.GoogleClientID = testGoogleClientID
	cfg.GoogleClientSecret = "journal-test-secret"
	cfg.VKClientID = "journal-test-vk"
	cfg.VKClientSecret = "journal-test-vk-secret"
	cfg.Listener.Port = port
	cfg.Listener.EnablePlainText = true
	cfg.Listener.EnableTLS = false
	ctx := config.WithContext(context.Background(), cfg)

	srv, err := serve.StartServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	featureFiles, err := filepath.Glob(filepath.Join("features", "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, featureFiles, "no feature files found")

	opts := cucumber.DefaultOptions()
	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" || arg == "-v" {
			opts.Format = "pretty"
		}
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = apiURL
			suite.TestingT = t
			suite.Context = srv
			suite.DB = db
			suite.Extra["mockGoogle"] = google

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}
