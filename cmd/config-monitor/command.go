package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	monitor "github.com/goliatone/go-config-monitor"
	"github.com/goliatone/go-config-monitor/adapters/kartlogger"
)

// extensions collects extractor and publisher packs registered by builds
// that embed additional providers.
var extensions = monitor.NewExtensionHooks()

func newRootCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Refresh services when their configuration files change",
		Long: `config-monitor accepts push webhooks from configuration repositories,
maps every changed file to the services it configures and publishes one
refresh signal per service on the configured bus.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotEnv()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	addFlags(cmd.Flags())

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the monitor endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}
	addFlags(serve.Flags())

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the delivery ledger and outbox migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, v)
		},
	}
	addFlags(migrate.Flags())

	cmd.AddCommand(serve, migrate, newResolveCommand())
	return cmd
}

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve PATH...",
		Short: "Print the services a set of changed files would refresh",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := monitor.NewMonitor(monitor.DefaultConfig())
			if err != nil {
				return err
			}
			for _, name := range m.Resolve(cmd.Context(), args) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	opts, err := loadOptions(cmd, v)
	if err != nil {
		return err
	}
	logger, err := kartlogger.New(opts.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, opts, v, logger, extensions)
	if err != nil {
		_ = logger.Flush()
		return err
	}
	defer func() { _ = srv.close() }()

	logger.Info("config monitor starting",
		"bus_kinds", strings.Join(opts.Bus.Kinds, ","),
		"store", storeLabel(opts.Store.Driver),
		"outbox", opts.Outbox.Enabled,
	)
	return srv.run(ctx)
}

func runMigrate(cmd *cobra.Command, v *viper.Viper) error {
	opts, err := loadOptions(cmd, v)
	if err != nil {
		return err
	}
	if opts.Store.Driver == storeDriverNone {
		return fmt.Errorf("migrate requires store.driver")
	}
	opts.Store.Migrate = true
	client, err := openStore(cmd.Context(), opts.Store)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations applied to %s store\n", opts.Store.Driver)
	return client.Close()
}

// loadDotEnv loads .env from the working directory when present.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func storeLabel(driver string) string {
	if driver == storeDriverNone {
		return "memory"
	}
	return driver
}
