package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/internal/datasource"
	"github.com/iwvelando/premium-forecast/internal/forecast"
	"github.com/iwvelando/premium-forecast/internal/server"
	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/output"
	"github.com/iwvelando/premium-forecast/pkg/records"
	"github.com/iwvelando/premium-forecast/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath   string
	logLevel     string
	outputFormat string
	noColor      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "premium-forecast",
		Short:         "Forecast insurance premium production by business line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				output.DisableColor()
			}
		},
	}
	root.SetVersionTemplate(`{{printf "premium-forecast version: %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", constants.DefaultConfigFile, "path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&opts.outputFormat, "output-format", "", "type of output override: pretty, csv")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newForecastCommand(opts),
		newBudgetCommand(opts),
		newCalendarCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// forecastFlags are the overrides of the forecast section accepted on the
// command line.
type forecastFlags struct {
	cutoff                 string
	referenceYear          int
	steps                  int
	view                   string
	conservativeAdjustment float64
	skipBudget             bool
}

func (f forecastFlags) apply(cmd *cobra.Command, conf *config.Configuration) {
	changed := cmd.Flags().Changed
	if changed("cutoff") {
		conf.Forecast.Cutoff = f.cutoff
	}
	if changed("reference-year") {
		conf.Forecast.ReferenceYear = f.referenceYear
	}
	if changed("steps") {
		conf.Forecast.Steps = f.steps
	}
	if changed("view") {
		conf.Forecast.View = f.view
	}
	if changed("conservative-adjustment") {
		conf.Forecast.ConservativeAdjustment = f.conservativeAdjustment
	}
}

func bindForecastFlags(cmd *cobra.Command, f *forecastFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.cutoff, "cutoff", "", "data cutoff date (YYYY-MM-DD), defaults to today")
	flags.IntVar(&f.referenceYear, "reference-year", 0, "year being forecast, defaults to the cutoff year")
	flags.IntVar(&f.steps, "steps", 0, "months to forecast, 0 runs through December")
	flags.StringVar(&f.view, "view", "", "summary view: month, year, cumulative")
	flags.Float64Var(&f.conservativeAdjustment, "conservative-adjustment", 0, "percentage applied to every forecast, e.g. -5")
}

func newForecastCommand(opts *rootOptions) *cobra.Command {
	f := &forecastFlags{}
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast every business line through December of the reference year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger, err := opts.prepare(cmd, f.apply)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			recs, err := loadRecords(cmd.Context(), logger, conf)
			if err != nil {
				return err
			}

			var forecastOpts []forecast.Option
			if f.skipBudget {
				forecastOpts = append(forecastOpts, forecast.WithoutBudget())
			}
			report, err := forecast.GetForecast(cmd.Context(), logger, *conf, recs, forecastOpts...)
			if err != nil {
				logger.Error("failed to compute forecast",
					zap.String("op", "main.forecast"),
					zap.Error(err),
				)
				return err
			}
			return output.Render(cmd.OutOrStdout(), conf.Output.Format, report)
		},
	}
	bindForecastFlags(cmd, f)
	cmd.Flags().BoolVar(&f.skipBudget, "skip-budget", false, "do not compute the budget proposal")
	return cmd
}

func newBudgetCommand(opts *rootOptions) *cobra.Command {
	var (
		cutoff     string
		targetYear int
		ipc        float64
	)
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Propose next year's budget per business line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger, err := opts.prepare(cmd, func(cmd *cobra.Command, conf *config.Configuration) {
				if cmd.Flags().Changed("cutoff") {
					conf.Forecast.Cutoff = cutoff
				}
				if cmd.Flags().Changed("target-year") {
					conf.Budget.TargetYear = targetYear
				}
				if cmd.Flags().Changed("ipc") {
					conf.Budget.IPCAdjustment = ipc
				}
			})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			recs, err := loadRecords(cmd.Context(), logger, conf)
			if err != nil {
				return err
			}
			rows, err := forecast.GetBudget(cmd.Context(), logger, *conf, forecast.UpToMonth(recs, conf.Forecast.CutoffDate))
			if err != nil {
				return err
			}

			if conf.Output.Format == constants.OutputFormatCSV {
				return output.BudgetCSV(cmd.OutOrStdout(), rows)
			}
			table, err := output.BudgetTable(rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "--- Budget proposal %d (IPC %.1f%%) ---\n%s\n",
				conf.Budget.TargetYear, conf.Budget.IPCAdjustment, table)
			return nil
		},
	}
	cmd.Flags().StringVar(&cutoff, "cutoff", "", "data cutoff date (YYYY-MM-DD), defaults to today")
	cmd.Flags().IntVar(&targetYear, "target-year", 0, "budget year, defaults to the year after the reference year")
	cmd.Flags().Float64Var(&ipc, "ipc", constants.DefaultIPCAdjustment, "inflation adjustment in percent")
	return cmd
}

func newCalendarCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar [year]",
		Short: "Show the phase impact calendar of a year",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadOptional()
			if err != nil {
				return err
			}
			if err := conf.Normalize(); err != nil {
				return err
			}
			format, err := opts.format(conf)
			if err != nil {
				return err
			}

			year := conf.Forecast.ReferenceYear
			if len(args) == 1 {
				year, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid year %q", args[0])
				}
			}

			cal, err := conf.Calendar()
			if err != nil {
				return err
			}
			rows := cal.ImpactSummary(year)
			if format == constants.OutputFormatCSV {
				return output.CalendarCSV(cmd.OutOrStdout(), rows)
			}
			table, err := output.CalendarTable(rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "--- Impact calendar %d (%s) ---\n%s\n", year, cal.Line(), table)
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		serverConfig string
		address      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the forecast API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg, err := server.LoadConfig(serverConfig)
			if err != nil {
				return err
			}
			if address != "" {
				srvCfg.Address = address
			}

			logger, err := initializeLogger(srvCfg.Logging, opts.logLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			base, err := srvCfg.BaseConfiguration()
			if err != nil {
				return err
			}
			handler, err := server.NewHandler(logger, server.Options{
				MaxUploadSize: srvCfg.UploadSizeBytes(),
				Version:       version,
				Timeout:       srvCfg.Timeout(),
				Base:          base,
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), logger, srvCfg.Address, handler)
		},
	}
	cmd.Flags().StringVar(&serverConfig, "server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	cmd.Flags().StringVar(&address, "address", "", "listen address override")
	return cmd
}

func serve(ctx context.Context, logger *zap.Logger, address string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("op", "main.serve"),
			zap.String("address", address),
			zap.String("version", version),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down", zap.String("op", "main.serve"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// prepare loads, overrides, normalizes and validates the configuration and
// builds the logger. Configuration warnings are logged.
func (o *rootOptions) prepare(cmd *cobra.Command, override func(*cobra.Command, *config.Configuration)) (*config.Configuration, *zap.Logger, error) {
	conf, err := config.LoadConfiguration(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration at %s: %w", o.configPath, err)
	}

	logger, err := initializeLogger(conf.Logging, o.logLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if override != nil {
		override(cmd, conf)
	}
	if err := conf.Normalize(); err != nil {
		return nil, nil, err
	}
	if conf.Output.Format, err = o.format(conf); err != nil {
		return nil, nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, nil, err
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}
	return conf, logger, nil
}

// loadOptional loads the configuration file when it exists and falls back to
// the built-in defaults otherwise.
func (o *rootOptions) loadOptional() (*config.Configuration, error) {
	if _, err := os.Stat(o.configPath); errors.Is(err, fs.ErrNotExist) {
		return config.LoadConfigurationFromReader(strings.NewReader(""))
	}
	return config.LoadConfiguration(o.configPath)
}

// format resolves the output format; the flag takes precedence over config.
func (o *rootOptions) format(conf *config.Configuration) (string, error) {
	format := conf.Output.Format
	if o.outputFormat != "" {
		format = o.outputFormat
	}
	if format == "" {
		format = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(format); err != nil {
		return "", err
	}
	return format, nil
}

func loadRecords(ctx context.Context, logger *zap.Logger, conf *config.Configuration) ([]records.Record, error) {
	src, err := datasource.New(logger, conf.Data)
	if err != nil {
		return nil, err
	}
	recs, err := src.Load(ctx)
	if err != nil {
		logger.Error("failed to load records",
			zap.String("op", "main.loadRecords"),
			zap.String("source", conf.Data.Source),
			zap.Error(err),
		)
		return nil, err
	}
	return recs, nil
}
