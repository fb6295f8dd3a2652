package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/gdorker/internal/dispatch"
	"github.com/nao1215/gdorker/internal/ghdb"
	"github.com/nao1215/gdorker/internal/proxy"
)

// NewCollectCmd creates the collect command.
func NewCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect dorks from the Google Hacking Database",
		Long: `Collect downloads Google Hacking Database (GHDB) entries from exploit-db.com
for a range of entry numbers and writes the dork of each entry, one per line,
ordered by number. The output can be used directly as a dork file for
'gdorker run -g'.

Pages are fetched by a small pool of workers sharing one request rate
limit. Entries that do not exist or cannot be parsed are reported and
skipped.

Examples:
  # Collect entries 5 to 500 into ghdb.txt
  gdorker collect --from 5 --to 500 -o ghdb.txt

  # Collect slower, through a proxy
  gdorker collect --from 5 --to 100 --rate 0.5 --proxy socks5h://127.0.0.1:9050`,
		Args: cobra.NoArgs,
		RunE: runCollectCmd,
	}

	cmd.Flags().Int("from", ghdb.MinNumber,
		"First GHDB entry number")
	cmd.Flags().Int("to", 0,
		"Last GHDB entry number (required)")
	cmd.Flags().IntP("workers", "w", ghdb.DefaultWorkers,
		"Number of concurrent page fetches")
	cmd.Flags().Float64("rate", ghdb.DefaultRequestsPerSecond,
		"Maximum page requests per second across all workers (0: unlimited)")
	cmd.Flags().String("proxy", "",
		"Fetch pages through this proxy (http, https, socks5, socks5h)")
	cmd.Flags().DurationP("timeout", "t", ghdb.DefaultTimeout,
		"HTTP timeout for one page")
	cmd.Flags().StringP("output", "o", "",
		"Write the dorks to this file (default: stdout)")
	cmd.Flags().String("base-url", ghdb.DefaultBaseURL,
		"Base URL of the GHDB detail pages")
	_ = cmd.MarkFlagRequired("to") //nolint:errcheck // flag is defined above

	return cmd
}

// runCollectCmd executes the collect command.
func runCollectCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	from, err := flags.GetInt("from")
	if err != nil {
		return err
	}
	to, err := flags.GetInt("to")
	if err != nil {
		return err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return err
	}
	rps, err := flags.GetFloat64("rate")
	if err != nil {
		return err
	}
	proxyDescriptor, err := flags.GetString("proxy")
	if err != nil {
		return err
	}
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return err
	}
	outputPath, err := flags.GetString("output")
	if err != nil {
		return err
	}
	baseURL, err := flags.GetString("base-url")
	if err != nil {
		return err
	}

	p, err := proxy.Parse(proxyDescriptor)
	if err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}

	logger, closeLog, err := commandLogger(cmd, getVerbosity(cmd))
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck // Best effort on exit

	collector, err := ghdb.NewCollector(
		ghdb.WithBaseURL(baseURL),
		ghdb.WithWorkers(workers),
		ghdb.WithRate(rps),
		ghdb.WithProxy(p),
		ghdb.WithTimeout(timeout),
		ghdb.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := collector.Collect(ctx, from, to)
	if errors.Is(err, ghdb.ErrInvalidRange) {
		return fmt.Errorf("configuration error: %w", err)
	}

	// An interrupted collection still writes what was collected.
	if result != nil {
		if werr := writeCollected(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputPath, result); werr != nil {
			return werr
		}
	}
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrAborted, err)
	}
	return err
}

// writeCollected writes the collected dorks to path, or to out when path is
// empty, and prints a summary to status.
func writeCollected(out, status io.Writer, path string, result *ghdb.Result) error {
	dest := out
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // Operator-chosen path
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck // Write errors are reported by WriteTemplates
		dest = f
	}

	if err := ghdb.WriteTemplates(dest, result.Dorks); err != nil {
		return fmt.Errorf("failed to write dorks: %w", err)
	}

	fmt.Fprintf(status, "Collected %d dorks", len(result.Dorks))
	if len(result.Failed) > 0 {
		fmt.Fprintf(status, " (%d entries failed: %v)", len(result.Failed), result.Failed)
	}
	fmt.Fprintln(status)
	if path != "" {
		fmt.Fprintf(status, "Written to: %s\n", path)
	}
	return nil
}
