package main

import (
	"errors"
	"io"
	"log/slog"
	nethttp "net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// cli holds state shared by all subcommands.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	indexPath  string
	cfg        config
	logger     *slog.Logger
	logCloser  io.Closer
	httpClient *nethttp.Client
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, cfg: defaultConfig()}

	cmd := &cobra.Command{
		Use:           "ustar",
		Short:         "Query POSIX ustar archives without extracting them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Flags())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.logCloser != nil {
				return c.logCloser.Close()
			}
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML configuration file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to a rotating file instead of stderr")
	flags.StringVar(&c.indexPath, "index", "", "sidecar index produced by 'ustar index'")
	flags.String("cache-dir", "", "cache archive blocks on disk in this directory")
	flags.Int("cache-blocks", 0, "cache up to N archive blocks in memory")
	flags.Int("max-link-hops", 0, "maximum number of links followed per lookup")

	cmd.AddCommand(
		newValidateCommand(c),
		newStatCommand(c),
		newListCommand(c),
		newCatCommand(c),
		newDumpCommand(c),
		newIndexCommand(c),
		newProfileCommand(c),
	)
	return cmd
}

// setup loads the config file, applies flag overrides, and builds the logger.
func (c *cli) setup(flags *pflag.FlagSet) error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}

	var errs []error
	if flags.Changed("log-level") {
		cfg.Logs.Level, err = flags.GetString("log-level")
		errs = append(errs, err)
	}
	if flags.Changed("log-file") {
		cfg.Logs.File, err = flags.GetString("log-file")
		errs = append(errs, err)
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir, err = flags.GetString("cache-dir")
		errs = append(errs, err)
	}
	if flags.Changed("cache-blocks") {
		cfg.Cache.Blocks, err = flags.GetInt("cache-blocks")
		errs = append(errs, err)
	}
	if flags.Changed("max-link-hops") {
		cfg.MaxLinkHops, err = flags.GetInt("max-link-hops")
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.cfg = cfg

	logger, closer, err := newLogger(cfg.Logs, c.stderr)
	if err != nil {
		return err
	}
	c.logger, c.logCloser = logger, closer
	return nil
}

// log returns the logger, falling back to a discard logger before setup.
func (c *cli) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
