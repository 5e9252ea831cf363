package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/database"
	applog "github.com/nao1215/sitecrawl/internal/log"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/report"
	"github.com/nao1215/sitecrawl/internal/transport"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a web site breadth-first",
		Long: `Crawl visits every page reachable from the start URL without leaving its
host. For each fetched page the crawlable (same host) and non-crawlable
links are printed as the crawl runs, followed by a summary report.

The host comparison is exact and includes the port: "example.com" and
"www.example.com" are different hosts.

Examples:
  # Crawl a site with default settings
  sitecrawl crawl --url https://example.com/

  # Ten concurrent fetches, half a second pause after each
  sitecrawl crawl --url https://example.com/ --max-concurrent-tasks 10 --rate-limit 0.5

  # Write a Markdown report and archive the run
  sitecrawl crawl --url https://example.com/ --markdown -o report.md --save

  # Crawl an onion service through an embedded Tor daemon
  sitecrawl crawl --tor --url http://xxxxxxxx.onion/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().StringP("url", "u", "",
		"Start URL (required; may also be given as the first argument)")
	cmd.Flags().IntP("max-concurrent-tasks", "c", config.DefaultMaxConcurrentTasks,
		"Maximum number of URLs fetched concurrently per wave")
	cmd.Flags().Float64P("rate-limit", "r", config.DefaultRateLimit.Seconds(),
		"Seconds each fetch task pauses after its page (0 disables)")
	cmd.Flags().Int("max-retries", config.DefaultMaxRetries,
		"Retries for transient failures (total attempts = retries + 1)")
	cmd.Flags().Float64("retry-delay", config.DefaultRetryDelay.Seconds(),
		"Seconds to wait between attempts")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request attempt")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum bytes read from an HTML response")

	// Connection flags
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy at host:port")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().String("config", "",
		"Configuration file path (default: .sitecrawl in current or home directory)")

	// Output flags
	cmd.Flags().Bool("no-color", false, "Disable colored page output")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Archive flags
	cmd.Flags().Bool("save", false, "Save the finished crawl to the archive")
	cmd.Flags().String("db-dir", "",
		"Archive directory (default: XDG data directory; implies --save)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := applog.New(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if cfg.URL, err = flags.GetString("url"); err != nil {
		return nil, err
	}
	if cfg.URL == "" && len(args) > 0 {
		cfg.URL = args[0]
	}

	if cfg.MaxConcurrentTasks, err = flags.GetInt("max-concurrent-tasks"); err != nil {
		return nil, err
	}

	rateLimit, err := flags.GetFloat64("rate-limit")
	if err != nil {
		return nil, err
	}
	cfg.RateLimit = secondsToDuration(rateLimit)

	if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
		return nil, err
	}

	retryDelay, err := flags.GetFloat64("retry-delay")
	if err != nil {
		return nil, err
	}
	cfg.RetryDelay = secondsToDuration(retryDelay)

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}

	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")
	if cfg.NoColor, err = flags.GetBool("no-color"); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir != "" {
		cfg.SaveToDB = true
	} else {
		cfg.DBDir = config.XDGDataDir()
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if err := loadSiteConfigs(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSiteConfigs loads the site file into cfg. A missing file is only an
// error when the user named it explicitly.
func loadSiteConfigs(cfg *config.Config) error {
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		siteConfigs, err := config.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs = siteConfigs
	case cfg.ConfigFilePath != "":
		return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	return nil
}

// getBoolFlag reads a flag from the command or the root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// runCrawl performs the crawl described by cfg. Live page output goes to
// stdout; when a JSON or Markdown report is also written to stdout, the
// live output moves to stderr so the report stays machine-readable.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	domain := cfg.Domain()

	if transport.IsOnionHost(domain) {
		if err := transport.CheckOnionHost(domain); err != nil {
			return fmt.Errorf("invalid start URL %q: %w", cfg.URL, err)
		}
		if !cfg.UseTor && cfg.ProxyAddress == "" {
			return transport.ErrOnionRequiresProxy
		}
	}

	client, cleanup, err := newClient(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	httpTransport := transport.NewHTTPTransport(
		client.NewHTTPClient(),
		transport.WithMaxBodySize(cfg.MaxBodySize),
	)

	liveOut := stdout
	if cfg.ReportFile == "" && (cfg.JSONReport || cfg.MarkdownReport) {
		liveOut = stderr
	}

	c, err := crawler.New(cfg.URL, httpTransport,
		crawler.WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
		crawler.WithRateLimit(cfg.RateLimit),
		crawler.WithMaxRetries(cfg.MaxRetries),
		crawler.WithRetryDelay(cfg.RetryDelay),
		crawler.WithRequestTimeout(cfg.Timeout),
		crawler.WithLogger(logger),
		crawler.WithObserver(report.NewConsoleObserver(liveOut, cfg.NoColor)),
	)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	crawlReport := c.Crawl(ctx)

	if cfg.SaveToDB {
		// A cancelled crawl is still archived, flagged as partial
		if err := saveCrawlReport(context.WithoutCancel(ctx), cfg.DBDir, crawlReport, logger); err != nil {
			logger.Error("failed to save crawl report", "error", err)
		}
	}

	if err := outputReport(cfg, crawlReport, stdout); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// An interrupted crawl winds down like a finished one: the partial
	// report above is the result and the exit status stays zero.
	if crawlReport.Cancelled {
		logger.Info("partial report written after cancellation", "visited", crawlReport.Stats.Claimed)
	}
	return nil
}

// newClient builds the transport client for cfg: direct, through a SOCKS5
// proxy, or through an embedded Tor daemon. The returned cleanup func must
// always be called.
func newClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*transport.Client, func(), error) {
	site := cfg.Site()

	userAgent := cfg.UserAgent
	if site.UserAgent != "" {
		userAgent = site.UserAgent
	}

	if !site.IsZero() {
		logger.Debug("applying site configuration",
			"host", cfg.Domain(),
			"userAgent", userAgent,
			"cookie", site.Cookie,
			"headers", site.Headers,
		)
	}

	opts := []transport.ClientOption{
		transport.WithUserAgent(userAgent),
		transport.WithSiteHost(cfg.Domain()),
		transport.WithCookie(site.Cookie),
		transport.WithHeaders(site.Headers),
	}

	if cfg.UseTor {
		return startEmbeddedTor(ctx, cfg, logger, stderr, opts)
	}

	if cfg.ProxyAddress != "" {
		opts = append(opts, transport.WithProxy(cfg.ProxyAddress))
	}

	client, err := transport.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	if cfg.ProxyAddress != "" {
		if status := client.CheckConnection(ctx); status != transport.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Error())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	return client, func() {}, nil
}

// startEmbeddedTor starts an embedded Tor daemon using tornago and returns a
// client routed through it.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer, opts []transport.ClientOption) (*transport.Client, func(), error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := transport.NewEmbeddedTor(
		transport.WithStartupTimeout(cfg.TorStartupTimeout),
		transport.WithTorLogger(logger),
	)

	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	stopTor := func() {
		logger.Info("stopping embedded Tor daemon")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embeddedTor.SocksAddr(),
		"controlAddr", embeddedTor.ControlAddr(),
	)

	client, err := embeddedTor.NewClient(opts...)
	if err != nil {
		stopTor()
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	if status := client.CheckConnection(ctx); status != transport.ProxyStatusOK {
		stopTor()
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Error())
	}

	return client, stopTor, nil
}

// saveCrawlReport archives the report in dbDir and sets its run ID.
func saveCrawlReport(ctx context.Context, dbDir string, crawlReport *model.CrawlReport, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := db.SaveReport(ctx, crawlReport)
	if err != nil {
		return err
	}

	logger.Info("crawl saved to archive", "runID", id, "path", db.Path())
	return nil
}

// outputReport writes the report in the requested format to stdout, or to
// the report file. With a report file the plain-text summary still goes to
// stdout so the operator sees the totals.
func outputReport(cfg *config.Config, crawlReport *model.CrawlReport, stdout io.Writer) error {
	if cfg.ReportFile == "" {
		_, err := newReportWriter(stdout, cfg.JSONReport, cfg.MarkdownReport, cfg.Verbose).Write(crawlReport)
		return err
	}

	f, err := createReportFile(cfg.ReportFile)
	if err != nil {
		return err
	}
	defer f.Close()

	w := report.NewMultiWriter(
		newReportWriter(f, cfg.JSONReport, cfg.MarkdownReport, cfg.Verbose),
		report.NewSimpleWriter(stdout),
	)
	if _, err := w.Write(crawlReport); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Report written to %s\n", cfg.ReportFile)
	return nil
}

// newReportWriter selects the report format. Plain text is the default.
func newReportWriter(output io.Writer, jsonFormat, markdownFormat, verbose bool) report.Writer {
	switch {
	case jsonFormat:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case markdownFormat:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(verbose))
	}
}

// createReportFile creates path and its parent directories.
func createReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain session-specific URLs, so only the owner reads them
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
