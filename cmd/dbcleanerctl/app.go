package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/kroma-labs/dbcleaner-go/httpclient"
	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	metaConfig = "config"
	metaClient = "client"
	metaLogger = "logger"
)

// App creates the dbcleanerctl application. Output goes to stdout and logs
// to stderr.
func App(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "dbcleanerctl",
		Usage:     "Drive the forced test transaction of a process serving the dbcleaner admin API",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     globalFlags(),
		Before: func(c *cli.Context) error {
			return setup(c, stderr)
		},
		Commands: []*cli.Command{
			operationCommand(cleanersql.OperationStart, "Start the forced transaction on every connection"),
			operationCommand(cleanersql.OperationCommit, "Commit the forced transaction everywhere"),
			operationCommand(cleanersql.OperationRollback, "Roll the forced transaction back everywhere"),
			statusCommand(),
			healthCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{envPrefix + "CONFIG"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "admin API base URL",
			Value:   httpclient.DefaultBaseURL,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "timeout per command including retries",
			Value: DefaultConfig().Timeout,
		},
		&cli.UintFlag{
			Name:  "retries",
			Usage: "retries on transient failures",
			Value: httpclient.DefaultMaxRetries,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json",
			Value:   outputTable,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "log requests and retries",
		},
	}
}

// flagOverrides returns the flags set on the command line, keyed like Config.
func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	if c.IsSet("server") {
		overrides["server"] = c.String("server")
	}
	if c.IsSet("timeout") {
		overrides["timeout"] = c.Duration("timeout").String()
	}
	if c.IsSet("retries") {
		overrides["retries"] = c.Uint("retries")
	}
	if c.IsSet("output") {
		overrides["output"] = c.String("output")
	}
	if c.IsSet("verbose") {
		overrides["verbose"] = c.Bool("verbose")
	}
	return overrides
}

func setup(c *cli.Context, stderr io.Writer) error {
	cfg, err := LoadConfig(c.String("config"), flagOverrides(c))
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	opts := append(cfg.ClientOptions(), httpclient.WithLogger(logger))

	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaLogger] = logger
	c.App.Metadata[metaClient] = httpclient.New(opts...)
	return nil
}

func fromContext(c *cli.Context) (Config, *httpclient.Client, zerolog.Logger) {
	cfg, _ := c.App.Metadata[metaConfig].(Config)
	client, _ := c.App.Metadata[metaClient].(*httpclient.Client)
	logger, _ := c.App.Metadata[metaLogger].(zerolog.Logger)
	return cfg, client, logger
}

func commandContext(c *cli.Context, cfg Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, cfg.Timeout)
}

func operationCommand(operation, usage string) *cli.Command {
	return &cli.Command{
		Name:  operation,
		Usage: usage,
		Action: func(c *cli.Context) error {
			cfg, client, logger := fromContext(c)
			ctx, cancel := commandContext(c, cfg)
			defer cancel()

			report, err := client.Operate(ctx, operation)
			if report != nil {
				if werr := writeReport(c.App.Writer, cfg.Output, report); werr != nil {
					return werr
				}
			}
			if err != nil {
				logger.Error().Err(err).Str("operation", operation).Msg("operation failed")
				return err
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the coordinator state",
		Action: func(c *cli.Context) error {
			cfg, client, _ := fromContext(c)
			ctx, cancel := commandContext(c, cfg)
			defer cancel()

			stats, err := client.Status(ctx)
			if err != nil {
				return err
			}
			return writeStats(c.App.Writer, cfg.Output, *stats)
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the admin API health",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "keep retrying until the admin API answers, bounded by --timeout",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, client, logger := fromContext(c)
			if c.Bool("wait") {
				opts := append(cfg.ClientOptions(),
					httpclient.WithLogger(logger),
					httpclient.WithRetryConfig(httpclient.StartupRetryConfig()),
				)
				client = httpclient.New(opts...)
			}

			ctx, cancel := commandContext(c, cfg)
			defer cancel()

			health, err := client.Health(ctx)
			if health != nil {
				if werr := writeHealth(c.App.Writer, cfg.Output, health); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStats(w io.Writer, output string, stats cleanersql.Stats) error {
	if output == outputJSON {
		return writeJSON(w, stats)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ACTIVE\tFORCED\tSHARED\tPROXIES\n")
	fmt.Fprintf(tw, "%t\t%t\t%d\t%d\n",
		stats.Active, stats.Forced, stats.SharedConnections, stats.ProxyConnections)
	return tw.Flush()
}

func writeReport(w io.Writer, output string, report *httpserver.SweepReport) error {
	if output == outputJSON {
		return writeJSON(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s: %d connection(s)\n", report.Operation, len(report.Outcomes))
	if len(report.Outcomes) > 0 {
		fmt.Fprintf(tw, "ID\tKIND\tERROR\n")
		for _, o := range report.Outcomes {
			errText := o.Error
			if errText == "" {
				errText = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", o.ID, o.Kind, errText)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeStats(w, output, report.State)
}

func writeHealth(w io.Writer, output string, health *httpserver.HealthResponse) error {
	if output == outputJSON {
		return writeJSON(w, health)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SERVICE\tVERSION\tSTATUS\tUPTIME\n")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", health.Service, orDash(health.Version), health.Status, health.Uptime)

	if len(health.Checks) > 0 {
		names := make([]string, 0, len(health.Checks))
		for name := range health.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(tw, "\nCHECK\tSTATUS\tLATENCY\tMESSAGE\n")
		for _, name := range names {
			r := health.Checks[name]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, r.Status, r.Latency, orDash(r.Message))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeStats(w, output, health.Transactions)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
