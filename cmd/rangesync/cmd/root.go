// Package cmd implements the rangesync CLI commands.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aviarylabs/rangesync/internal/config"
	"github.com/aviarylabs/rangesync/internal/engine"
	"github.com/aviarylabs/rangesync/internal/transport"
	"github.com/aviarylabs/rangesync/pkg/logging"
)

var (
	configFile string
	logLevel   string
	jsonOutput bool

	cfg *config.Config

	// Version information set by main.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// Date is the build date.
	Date = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "rangesync",
	Short: "Species range filter settings sync",
	Long: `Rangesync synchronizes a station's range filter configuration with its
settings server: it tests which species the filter admits for a location
and threshold, manages manual include/exclude overrides, and exports the
reconciled candidate list.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and runs it.
func Execute(version, commit, date string) {
	Version = version
	Commit = commit
	Date = date

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is env + built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON instead of tables")
}

// setup runs before any command: .env files, configuration, logging.
func setup(_ *cobra.Command, _ []string) error {
	loadEnvFiles()

	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.Configure(&logging.Config{
		Level:  level,
		Format: cfg.LogFormat,
		Output: "stderr",
	})
	return nil
}

// loadEnvFiles loads environment variables from .env files, .env.local
// overriding .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// newClient builds the transport client from the loaded configuration.
func newClient() *transport.Client {
	opts := []transport.Option{}
	if cfg.APIToken != "" {
		opts = append(opts, transport.WithAuthenticator(&transport.BearerAuth{}), transport.WithToken(cfg.APIToken))
	}
	return transport.New(cfg.ServerURL, opts...)
}

// seedLoader serves a YAML settings tree in place of the server fetch.
type seedLoader struct {
	path string
}

func (s seedLoader) FetchSettings(_ context.Context) (map[string]any, error) {
	return config.LoadSeed(s.path)
}

// newEngine assembles and starts an engine against the configured server,
// seeding from the seed file when one is configured.
func newEngine(ctx context.Context) (*engine.Engine, *transport.Client, error) {
	client := newClient()
	e := engine.New(cfg, client, client, nil)

	var loader engine.Loader = client
	if cfg.SeedFile != "" {
		loader = seedLoader{path: cfg.SeedFile}
	}
	if err := e.Start(ctx, loader); err != nil {
		return nil, nil, err
	}
	return e, client, nil
}
