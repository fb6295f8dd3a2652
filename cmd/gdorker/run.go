package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nao1215/gdorker/internal/config"
	"github.com/nao1215/gdorker/internal/database"
	"github.com/nao1215/gdorker/internal/dispatch"
	"github.com/nao1215/gdorker/internal/dork"
	"github.com/nao1215/gdorker/internal/filter"
	"github.com/nao1215/gdorker/internal/jitter"
	"github.com/nao1215/gdorker/internal/proxy"
	"github.com/nao1215/gdorker/internal/report"
	"github.com/nao1215/gdorker/internal/search"
	"github.com/nao1215/gdorker/internal/store"
)

// Flag names that have no configuration file counterpart.
const (
	flagDorkFile   = "dork-file"
	flagSaveURLs   = "save-urls"
	flagOutput     = "output"
	flagMarkdown   = "markdown"
	flagResume     = "resume"
	flagTor        = "tor"
	flagTorTimeout = "tor-timeout"
	flagConfig     = "config"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch the dorks of a file and collect the result URLs",
		Long: `Run reads one dork template per line from a file and sends the templates to
the search backend one at a time. Between two queries it waits a random delay
drawn from a pool sampled in [min-delay, max-delay). Queries rotate
round-robin through the proxy pool.

A failing query is logged and the run continues with the next template.
A TLS certificate error stops the run (use --insecure behind an
intercepting proxy). Ctrl-C stops the run without writing the JSON report;
the queries finished so far stay in the history database and the run can
be continued with --resume.

Examples:
  # Dispatch the dorks of dorks.txt
  gdorker run -g dorks.txt

  # Restrict every dork to one site and keep 50 URLs per dork
  gdorker run -g dorks.txt -d example.com -m 50

  # Append URLs to an auto-named text file and write report.json
  gdorker run -g dorks.txt -s -o=report.json

  # Rotate through two proxies and divide the delay by the pool size
  gdorker run -g dorks.txt -p "http://10.0.0.1:3128,socks5h://127.0.0.1:9050" -r

  # Use the Custom Search JSON API instead of the HTML results page
  gdorker run -g dorks.txt --backend cse --cse-key KEY --cse-id ID

  # Continue an interrupted run (see 'gdorker compare --list')
  gdorker run -g dorks.txt --resume 7`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	// Input
	cmd.Flags().StringP(flagDorkFile, "g", "",
		"File containing one dork template per line (required)")
	cmd.Flags().StringP(config.OptionDomain, "d", "",
		"Restrict every query to this domain (adds site:<domain>)")
	cmd.Flags().StringP(flagConfig, "c", "",
		"Configuration file path (default: .gdorker in current or home directory)")

	// Dispatch behavior
	cmd.Flags().IntP(config.OptionMaxResults, "m", config.DefaultMaxResultsPerQuery,
		"Maximum URLs kept per query")
	cmd.Flags().StringP(config.OptionProxies, "p", "",
		"Comma-separated proxy pool (http, https, socks5, socks5h); empty means direct")
	cmd.Flags().Float64P(config.OptionMinDelay, "i", config.DefaultMinDelaySeconds,
		"Minimum delay between queries in seconds")
	cmd.Flags().Float64P(config.OptionMaxDelay, "x", config.DefaultMaxDelaySeconds,
		"Maximum delay between queries in seconds (exclusive)")
	cmd.Flags().BoolP(config.OptionDivideDelay, "r", false,
		"Divide both delay bounds by the number of proxies")
	cmd.Flags().Bool(config.OptionInsecure, false,
		"Do not verify TLS certificates (needed by some intercepting proxies)")
	cmd.Flags().DurationP(config.OptionTimeout, "t", config.DefaultTimeout,
		"HTTP timeout for one backend request")
	cmd.Flags().String(config.OptionUserAgent, "",
		"Fixed User-Agent (default: a random one per query)")

	// Backend
	cmd.Flags().StringP(config.OptionBackend, "b", config.DefaultBackend,
		"Search backend: google or cse")
	cmd.Flags().String(config.OptionCSEKey, "",
		"Custom Search API key (cse backend)")
	cmd.Flags().String(config.OptionCSEID, "",
		"Custom Search engine id (cse backend)")

	// Embedded Tor
	cmd.Flags().Bool(flagTor, false,
		"Start an embedded Tor daemon and add it to the proxy pool")
	cmd.Flags().Duration(flagTorTimeout, config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Output
	cmd.Flags().StringP(flagSaveURLs, "s", "",
		"Append result URLs to this text file while running (-s=FILE; without a value the name is generated)")
	cmd.Flags().Lookup(flagSaveURLs).NoOptDefVal = config.AutoFileName
	cmd.Flags().StringP(flagOutput, "o", "",
		"Write the JSON report to this file at the end of the run (-o=FILE; without a value the name is generated)")
	cmd.Flags().Lookup(flagOutput).NoOptDefVal = config.AutoFileName
	cmd.Flags().String(flagMarkdown, "",
		"Write a Markdown summary to this file at the end of the run")

	// History
	cmd.Flags().Bool(config.OptionNoHistory, false,
		"Do not record the run in the history database")
	cmd.Flags().Int64(flagResume, 0,
		"Continue the run with this history id, skipping dorks that already succeeded")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closeLog, err := commandLogger(cmd, cfg.Verbosity)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck // Best effort on exit
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runDorks(ctx, cmd.OutOrStdout(), cfg, logger, defaultRunEnv())
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// buildConfig creates a Config from cobra command flags and the optional
// configuration file. Flags given explicitly win over the file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.TemplateFile, err = flags.GetString(flagDorkFile); err != nil {
		return nil, err
	}
	if cfg.DomainScope, err = flags.GetString(config.OptionDomain); err != nil {
		return nil, err
	}
	if cfg.MaxResultsPerQuery, err = flags.GetInt(config.OptionMaxResults); err != nil {
		return nil, err
	}
	if flags.Changed(config.OptionProxies) {
		proxies, err := flags.GetString(config.OptionProxies)
		if err != nil {
			return nil, err
		}
		cfg.Proxies = config.ParseProxyList(proxies)
	}
	if cfg.MinDelaySeconds, err = flags.GetFloat64(config.OptionMinDelay); err != nil {
		return nil, err
	}
	if cfg.MaxDelaySeconds, err = flags.GetFloat64(config.OptionMaxDelay); err != nil {
		return nil, err
	}
	if cfg.DivideDelayByProxies, err = flags.GetBool(config.OptionDivideDelay); err != nil {
		return nil, err
	}
	insecure, err := flags.GetBool(config.OptionInsecure)
	if err != nil {
		return nil, err
	}
	cfg.VerifyTLS = !insecure
	if cfg.Timeout, err = flags.GetDuration(config.OptionTimeout); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString(config.OptionUserAgent); err != nil {
		return nil, err
	}
	cfg.Verbosity = getVerbosity(cmd)

	if cfg.Backend, err = flags.GetString(config.OptionBackend); err != nil {
		return nil, err
	}
	if cfg.CSEKey, err = flags.GetString(config.OptionCSEKey); err != nil {
		return nil, err
	}
	if cfg.CSEID, err = flags.GetString(config.OptionCSEID); err != nil {
		return nil, err
	}

	if cfg.UseEmbeddedTor, err = flags.GetBool(flagTor); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration(flagTorTimeout); err != nil {
		return nil, err
	}

	if cfg.URLFile, err = flags.GetString(flagSaveURLs); err != nil {
		return nil, err
	}
	if cfg.JSONFile, err = flags.GetString(flagOutput); err != nil {
		return nil, err
	}
	if cfg.MarkdownFile, err = flags.GetString(flagMarkdown); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool(config.OptionNoHistory)
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory
	if cfg.ResumeRunID, err = flags.GetInt64(flagResume); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = flags.GetString(flagConfig); err != nil {
		return nil, err
	}

	// If the config file path was given explicitly it must exist.
	// Otherwise a missing file just means "no file".
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath == "" {
		if cfg.ConfigFilePath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		return cfg, nil
	}

	file, err := config.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	if err := cfg.ApplyFile(file, flags.Changed); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runEnv holds the constructors runDorks uses for the parts that talk to
// the network. Tests replace them.
type runEnv struct {
	newBackend func(cfg *config.Config, logger *slog.Logger) search.Backend
	startTor   func(ctx context.Context, cfg *config.Config) (descriptor string, stop func() error, err error)
	isTerminal func(w io.Writer) bool
	now        func() time.Time
}

// defaultRunEnv returns the production constructors.
func defaultRunEnv() runEnv {
	return runEnv{
		newBackend: newBackend,
		startTor:   startEmbeddedTor,
		isTerminal: isTerminal,
		now:        time.Now,
	}
}

// newBackend creates the search backend selected by cfg.
func newBackend(cfg *config.Config, logger *slog.Logger) search.Backend {
	if cfg.Backend == config.BackendCSE {
		return search.NewCSE(cfg.CSEKey, cfg.CSEID,
			search.WithCSETimeout(cfg.Timeout),
			search.WithCSELogger(logger),
		)
	}
	opts := []search.GoogleOption{
		search.WithTimeout(cfg.Timeout),
		search.WithLogger(logger),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, search.WithUserAgent(cfg.UserAgent))
	}
	return search.NewGoogle(opts...)
}

// startEmbeddedTor starts an embedded Tor daemon and returns its pool descriptor.
func startEmbeddedTor(ctx context.Context, cfg *config.Config) (string, func() error, error) {
	embeddedTor := proxy.NewEmbeddedTor(proxy.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return "", nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	descriptor, err := embeddedTor.Descriptor()
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return "", nil, err
	}
	return descriptor, embeddedTor.Stop, nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // Fd fits in int
}

// runDorks executes one run described by cfg. cfg must be valid.
func runDorks(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, env runEnv) error {
	templates, err := dork.LoadFile(cfg.TemplateFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	urlFilter, err := filter.New(cfg.DenyPatterns, logger)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	pool, err := proxy.ParsePool(cfg.Proxies)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.UseEmbeddedTor {
		fmt.Fprintln(out, "Starting embedded Tor daemon...")
		fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		descriptor, stopTor, err := env.startTor(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := stopTor(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()

		torProxy, err := proxy.Parse(descriptor)
		if err != nil {
			return err
		}
		pool = append(slices.Clone(pool), torProxy)
		logger.Info("embedded Tor daemon started", "proxy", torProxy.Redacted())
	}

	minDelay, maxDelay := jitter.DividedBounds(cfg.MinDelaySeconds, cfg.MaxDelaySeconds,
		len(pool), cfg.DivideDelayByProxies)
	scheduler, err := jitter.NewScheduler(minDelay, maxDelay, jitter.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	startedAt := env.now()
	cfg.ResolveOutputPaths(startedAt)

	opts := []dispatch.Option{
		dispatch.WithNormalizer(dork.NewNormalizer(cfg.DomainScope, logger)),
		dispatch.WithFilter(urlFilter),
		dispatch.WithMaxResults(cfg.MaxResultsPerQuery),
		dispatch.WithVerifyTLS(cfg.VerifyTLS),
		dispatch.WithClock(env.now),
		dispatch.WithLogger(logger),
	}

	var (
		recorders  []dispatch.Recorder
		finalizers []dispatch.Finalizer
	)
	if cfg.URLFile != "" {
		recorders = append(recorders, store.NewTextFile(cfg.URLFile))
	}
	if cfg.JSONFile != "" {
		finalizers = append(finalizers, store.NewJSONFile(cfg.JSONFile))
	}
	if cfg.MarkdownFile != "" {
		finalizers = append(finalizers, store.NewMarkdownFile(cfg.MarkdownFile,
			report.WithDomain(cfg.DomainScope)))
	}

	var history *store.History
	if cfg.SaveHistory || cfg.ResumeRunID != 0 {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close() //nolint:errcheck // Best effort on exit

		history = store.NewHistory(db)
		if cfg.ResumeRunID != 0 {
			prior, err := history.Resume(ctx, cfg.ResumeRunID)
			if err != nil {
				return err
			}
			if prior.IsComplete() {
				return fmt.Errorf("run %d is already complete", cfg.ResumeRunID)
			}
			opts = append(opts, dispatch.WithResume(prior))
		} else if _, err := history.Begin(ctx, startedAt, cfg.DomainScope, len(templates)); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		recorders = append(recorders, history)
		finalizers = append(finalizers, history)
	}

	opts = append(opts,
		dispatch.WithRecorders(recorders...),
		dispatch.WithFinalizers(finalizers...),
	)
	if env.isTerminal(out) {
		opts = append(opts, dispatch.WithProgress(progressPrinter(out)))
	}

	loop := dispatch.NewLoop(env.newBackend(cfg, logger), pool, scheduler, opts...)
	runReport, runErr := loop.Run(ctx, templates)

	if runReport != nil {
		fmt.Fprintln(out)
		if _, err := report.NewSimpleWriter(out).Write(runReport); err != nil {
			logger.Error("failed to print summary", "error", err)
		}
	}
	printOutputs(out, cfg, history, runErr)

	return runErr
}

// progressPrinter returns a progress callback printing one line per template.
func progressPrinter(out io.Writer) func(dispatch.Progress) {
	return func(p dispatch.Progress) {
		mark := " "
		switch p.Outcome {
		case dispatch.OutcomeResults:
			mark = "+"
		case dispatch.OutcomeRecoverable, dispatch.OutcomeFatal:
			mark = "!"
		case dispatch.OutcomeEmpty:
		}
		suffix := ""
		if p.Resumed {
			suffix = " (resumed)"
		}
		fmt.Fprintf(out, "[%d/%d] [%s] %s (%d)%s\n", p.Index, p.Total, mark, p.Template, p.URLs, suffix)
	}
}

// printOutputs tells the operator where the results went.
func printOutputs(out io.Writer, cfg *config.Config, history *store.History, runErr error) {
	if cfg.URLFile != "" {
		fmt.Fprintf(out, "URLs appended to: %s\n", cfg.URLFile)
	}
	if runErr == nil {
		if cfg.JSONFile != "" {
			fmt.Fprintf(out, "JSON report:      %s\n", cfg.JSONFile)
		}
		if cfg.MarkdownFile != "" {
			fmt.Fprintf(out, "Markdown report:  %s\n", cfg.MarkdownFile)
		}
	}
	if history == nil || history.RunID() == 0 {
		return
	}
	fmt.Fprintf(out, "History run id:   %d\n", history.RunID())

	var fatal *dispatch.FatalError
	if errors.Is(runErr, dispatch.ErrAborted) || errors.As(runErr, &fatal) {
		fmt.Fprintf(out, "\nContinue this run with: gdorker run -g %s --resume %d\n",
			cfg.TemplateFile, history.RunID())
	}
}
