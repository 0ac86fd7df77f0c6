package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lepinkainen/humanlog"
	"github.com/lepinkainen/libris/internal/cache"
	"github.com/lepinkainen/libris/internal/config"
	plainlog "github.com/lepinkainen/libris/internal/humanlog"
	"github.com/spf13/viper"
)

// CLI represents the complete command structure for the libris application
type CLI struct {
	// Global flags, each overriding the matching config key when set
	DownloadDir string `help:"Directory downloaded books are saved to (download.dir)"`
	LedgerDB    string `help:"Path to the download ledger SQLite database (ledger.dbfile)"`
	Workers     int    `short:"w" help:"Number of concurrent workers (workers)"`
	LogFile     string `help:"Path to the log file (log.file)"`
	LogLevel    string `help:"Log level: debug, info, warn, error (log.level)"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file (cache.dbfile)"`
	CacheTTL    string `help:"Cache time-to-live duration, e.g. 720h for 30 days (cache.ttl)"`

	Fetch  FetchCmd  `cmd:"" help:"Download every book in the worklist"`
	Ledger LedgerCmd `cmd:"" help:"Inspect the download ledger"`
	Cache  CacheCmd  `cmd:"" help:"Manage the metadata cache"`
}

// CacheCmd represents the cache command and its subcommands
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Remove cached metadata lookups"`
}

// Execute runs the Kong-based CLI
func Execute() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	initLogging()

	v := viper.New()
	created, err := initConfig(v, ".")
	if err != nil {
		return err
	}
	if created {
		slog.Info("Default config written, edit config.yaml and run again")
		return nil
	}

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
		return err
	}

	applyFlags(v, &cli)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	// stdout carries command output, so console logging goes to stderr
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(stdout, (*io.Writer)(nil))
	return kctx.Run(cfg, logger)
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	opts := append([]kong.Option{
		kong.Name("libris"),
		kong.Description("Download a worklist of books from a cascade of catalog sites."),
		kong.UsageOnError(),
	}, options...)
	return kong.New(cli, opts...)
}

// initConfig registers defaults, environment bindings and config.yaml in dir.
// When no config file exists yet a default one is written and created is true.
func initConfig(v *viper.Viper, dir string) (created bool, err error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	config.SetDefaults(v)

	v.SetEnvPrefix("LIBRIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Settings names used by older dotenv files
	legacy := map[string]string{
		"download.dir":  "SAVE_DIR",
		"ledger.dbfile": "BOOKS_DB",
		"workers":       "THREAD_COUNT",
		"log.file":      "LOG_FILENAME",
	}
	for key, env := range legacy {
		if err := v.BindEnv(key, "LIBRIS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			slog.Error("Failed to bind environment variable", "key", key, "error", err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return false, fmt.Errorf("fatal error config file: %w", err)
		}
		slog.Info("Config file not found, writing default config file...")
		if err := v.SafeWriteConfigAs(filepath.Join(dir, "config.yaml")); err != nil {
			return false, fmt.Errorf("error writing config file: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func applyFlags(v *viper.Viper, cli *CLI) {
	setString := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}

	setString("download.dir", cli.DownloadDir)
	setString("ledger.dbfile", cli.LedgerDB)
	setString("log.file", cli.LogFile)
	setString("log.level", cli.LogLevel)
	setString("cache.dbfile", cli.CacheDBFile)
	setString("cache.ttl", cli.CacheTTL)
	if cli.Workers > 0 {
		v.Set("workers", cli.Workers)
	}

	setString("worklist.file", cli.Fetch.Worklist)
	setString("report.file", cli.Fetch.Report)
	if cli.Fetch.Zlib {
		v.Set("sources.zlib.enabled", true)
	}
	if cli.Fetch.NoPdfDrive {
		v.Set("sources.pdfdrive.enabled", false)
	}
}

func initLogging() {
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// newLogger logs to console in colour and, when log.file is set, appends plain
// lines to the log file as well.
func newLogger(cfg *config.Config, console io.Writer) (*slog.Logger, func(), error) {
	handlers := []slog.Handler{
		humanlog.NewHandler(console, &humanlog.Options{Level: cfg.LogLevel}),
	}
	closeLog := func() {}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, plainlog.NewHandler(f, &plainlog.Options{
			Level:        cfg.LogLevel,
			DisableColor: true,
		}))
		closeLog = func() { _ = f.Close() }
	}

	return slog.New(plainlog.NewFanout(handlers...)), closeLog, nil
}
