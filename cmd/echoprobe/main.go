// Package main provides the CLI entry point for echoprobe.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/postalsys/echoprobe/internal/config"
	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
	"github.com/postalsys/echoprobe/internal/metrics"
	"github.com/postalsys/echoprobe/internal/report"
	"github.com/postalsys/echoprobe/internal/session"
	"github.com/postalsys/echoprobe/internal/target"
)

var (
	// Version is set at build time
	Version = "dev"
)

// socketOpener creates the ICMP socket for a run.
type socketOpener func(unprivileged bool) (*icmp.Socket, error)

// options holds the flag values of the root command.
type options struct {
	configPath    string
	logLevel      string
	logFormat     string
	unprivileged  bool
	looseSequence bool
	metricsFile   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(os.Stdout, os.Stderr, icmp.NewSocket)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer, openSocket socketOpener) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "echoprobe <ipv4>,<count>,<interval-ms>",
		Short: "echoprobe - send a few ICMP echo requests and print each reply",
		Long: `echoprobe sends up to ten ICMP echo requests to an IPv4 destination,
waiting the given interval (at most 1000 ms) before each one and up to
five seconds for its reply.

Every reply is printed on stdout as:

  source,sequence,elapsed_microseconds

Requests without a reply print nothing. Raw sockets need root or
CAP_NET_RAW; use --unprivileged for a datagram ICMP socket instead.`,
		Example:       "  echoprobe 192.0.2.1,4,250",
		Version:       Version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], stdout, stderr, openSocket)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
	cmd.Flags().BoolVar(&opts.unprivileged, "unprivileged", false, "Use an unprivileged datagram ICMP socket")
	cmd.Flags().BoolVar(&opts.looseSequence, "loose-sequence", false, "Report echo replies regardless of their sequence number")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")

	return cmd
}

// resolveConfig loads the config file when one is given and applies the
// flags that were set explicitly on top of it.
func resolveConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("unprivileged") {
		cfg.Socket.Unprivileged = opts.unprivileged
	}
	if flags.Changed("loose-sequence") {
		cfg.Session.MatchSequence = !opts.looseSequence
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File = opts.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run parses the target, opens the socket and drives one echo session.
func run(ctx context.Context, cfg *config.Config, arg string, stdout, stderr io.Writer, openSocket socketOpener) error {
	logger := logging.NewLoggerWithWriter(cfg.Log.Level, cfg.Log.Format, stderr)

	t, err := target.Parse(arg)
	if err != nil {
		return err
	}

	sock, err := openSocket(cfg.Socket.Unprivileged)
	if err != nil {
		return err
	}
	defer sock.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)
	out := report.New(stdout)

	sessCfg := session.DefaultConfig()
	sessCfg.MatchSequence = cfg.Session.MatchSequence

	sess, err := session.New(sessCfg, sock, out, m, logger)
	if err != nil {
		return err
	}

	runErr := sess.Run(ctx, t)

	if err := out.Err(); err != nil {
		logger.Warn("failed to write reply line", logging.KeyError, err)
	}

	stats := sess.Stats()
	logger.Info("echo session finished",
		logging.KeyDestination, t.Destination.String(),
		"sent", stats.Sent,
		"received", stats.Received,
		"missed", stats.Missed)

	if cfg.Metrics.File != "" {
		if err := metrics.WriteTextFile(cfg.Metrics.File, reg); err != nil {
			logger.Warn("failed to write metrics file",
				"path", cfg.Metrics.File,
				logging.KeyError, err)
		}
	}

	return runErr
}
