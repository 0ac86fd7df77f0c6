// Package config turns viper settings into an explicit Config value that is
// handed to the ledger, sources, orchestrator and pool at construction time.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything a fetch run needs.
type Config struct {
	DownloadDir  string
	LedgerDBFile string
	WorklistFile string
	Workers      int
	LogFile      string
	LogLevel     slog.Level
	ReportFile   string

	CacheDBFile      string
	CacheTTL         time.Duration
	NegativeCacheTTL time.Duration

	HTTPTimeout time.Duration
	UserAgent   string

	MetadataBaseURL string
	MetadataAPIKey  string

	Libgen   LibgenConfig
	PdfDrive SiteConfig
	Zlib     SiteConfig
}

// LibgenConfig configures the Libgen catalog API and its download mirrors.
type LibgenConfig struct {
	Enabled bool
	APIURL  string
	Mirrors []string
}

// SiteConfig configures a scraped catalog site.
type SiteConfig struct {
	Enabled bool
	BaseURL string
}

// SetDefaults registers default values for every key Load reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("download.dir", "./books/")
	v.SetDefault("ledger.dbfile", "./books.db")
	v.SetDefault("worklist.file", "./books.tsv")
	v.SetDefault("workers", 4)
	v.SetDefault("log.file", "./libris.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("report.file", "")

	v.SetDefault("cache.dbfile", "./cache.db")
	v.SetDefault("cache.ttl", "720h")         // 30 days
	v.SetDefault("cache.negativettl", "168h") // 7 days

	v.SetDefault("http.timeout", "0s")
	v.SetDefault("http.useragent", "libris/1.0")

	v.SetDefault("metadata.baseurl", "https://www.googleapis.com/books/v1")
	v.SetDefault("metadata.apikey", "")

	v.SetDefault("sources.libgen.enabled", true)
	v.SetDefault("sources.libgen.apiurl", "http://libgen.is")
	v.SetDefault("sources.libgen.mirrors", []string{"http://library.lol/main/"})
	v.SetDefault("sources.pdfdrive.enabled", true)
	v.SetDefault("sources.pdfdrive.baseurl", "https://www.pdfdrive.com")
	// zlib allows a handful of downloads per IP per day, so it stays off unless asked for
	v.SetDefault("sources.zlib.enabled", false)
	v.SetDefault("sources.zlib.baseurl", "https://za1lib.org")
}

// Load reads a Config from v. Defaults must already be registered.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DownloadDir:  v.GetString("download.dir"),
		LedgerDBFile: v.GetString("ledger.dbfile"),
		WorklistFile: v.GetString("worklist.file"),
		Workers:      v.GetInt("workers"),
		LogFile:      v.GetString("log.file"),
		ReportFile:   v.GetString("report.file"),

		CacheDBFile: v.GetString("cache.dbfile"),
		UserAgent:   v.GetString("http.useragent"),

		MetadataBaseURL: strings.TrimRight(v.GetString("metadata.baseurl"), "/"),
		MetadataAPIKey:  v.GetString("metadata.apikey"),

		Libgen: LibgenConfig{
			Enabled: v.GetBool("sources.libgen.enabled"),
			APIURL:  strings.TrimRight(v.GetString("sources.libgen.apiurl"), "/"),
			Mirrors: v.GetStringSlice("sources.libgen.mirrors"),
		},
		PdfDrive: SiteConfig{
			Enabled: v.GetBool("sources.pdfdrive.enabled"),
			BaseURL: strings.TrimRight(v.GetString("sources.pdfdrive.baseurl"), "/"),
		},
		Zlib: SiteConfig{
			Enabled: v.GetBool("sources.zlib.enabled"),
			BaseURL: strings.TrimRight(v.GetString("sources.zlib.baseurl"), "/"),
		},
	}

	var err error
	if cfg.CacheTTL, err = parseDuration(v, "cache.ttl"); err != nil {
		return nil, err
	}
	if cfg.NegativeCacheTTL, err = parseDuration(v, "cache.negativettl"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = parseDuration(v, "http.timeout"); err != nil {
		return nil, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", v.GetString("log.level"), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values a run cannot work without.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download.dir is required")
	}
	if c.LedgerDBFile == "" {
		return fmt.Errorf("ledger.dbfile is required")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
