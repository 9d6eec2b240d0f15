package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/config"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/env"
	"github.com/abdul-hamid-achik/ddtspec/packages/core/runner"
	"github.com/abdul-hamid-achik/ddtspec/packages/coverage"
	"github.com/abdul-hamid-achik/ddtspec/packages/events"
	"github.com/abdul-hamid-achik/ddtspec/packages/export/metrics"
	"github.com/abdul-hamid-achik/ddtspec/packages/logging"
	"github.com/abdul-hamid-achik/ddtspec/packages/output"
)

type runOptions struct {
	configPath  string
	envFile     string
	envPrefix   string
	vars        []string
	filters     []string
	verbose     bool
	noColor     bool
	output      string
	outputFile  string
	bail        bool
	parallel    bool
	concurrency int
	timeout     string
	caseTimeout string
	rate        float64
	proxy       string
	insecure    bool
	watch       bool
	schedule    string

	coverage     string
	coverageFile string
	metricsFile  string

	eventsSink   string
	eventsSource string
	eventsPolicy string

	logLevel string
	logFile  string
}

func newRunCommand() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <file|directory>...",
		Short: "Run descriptor suites",
		Long: `Run the test cases declared in descriptor files (.json, .yaml, .yml).

Examples:
  ddtspec run petshop.yaml
  ddtspec run ./suites/ --parallel --concurrency 8
  ddtspec run ./suites/ --filter "create pet" --var SERVICE_URL=http://localhost:8080
  ddtspec run ./suites/ --output junit --output-file report.xml
  ddtspec run ./suites/ --watch
  ddtspec run ./suites/ --coverage openapi.yaml
  ddtspec run ./suites/ --metrics-file /var/lib/node_exporter/ddtspec.prom
  ddtspec run ./suites/ --schedule "*/15 * * * *" --events-sink http://collector/events`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: o.run,
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", getEnvString("CONFIG", ""), "Path to config file (env: DDTSPEC_CONFIG)")
	f.StringVar(&o.envFile, "env-file", getEnvString("ENV_FILE", ""), "Path to .env file whose variables become globals (env: DDTSPEC_ENV_FILE)")
	f.StringVar(&o.envPrefix, "env-prefix", getEnvString("ENV_PREFIX", ""), "OS variables with this prefix become globals (env: DDTSPEC_ENV_PREFIX)")
	f.StringArrayVar(&o.vars, "var", nil, "Set a global variable, NAME=value (repeatable)")
	f.StringSliceVarP(&o.filters, "filter", "f", getEnvList("FILTER"), "Run only cases whose name contains one of these substrings (env: DDTSPEC_FILTER)")

	f.BoolVarP(&o.verbose, "verbose", "v", getEnvBool("VERBOSE", false), "Show requests and latency summaries (env: DDTSPEC_VERBOSE)")
	f.BoolVar(&o.noColor, "no-color", getEnvBool("NO_COLOR", false), "Disable colored output (env: DDTSPEC_NO_COLOR)")
	f.StringVarP(&o.output, "output", "o", getEnvString("OUTPUT", "console"), "Output format: "+strings.Join(output.Formats, ", ")+" (env: DDTSPEC_OUTPUT)")
	f.StringVar(&o.outputFile, "output-file", getEnvString("OUTPUT_FILE", ""), "Write the report to a file (default: stdout) (env: DDTSPEC_OUTPUT_FILE)")

	f.BoolVar(&o.bail, "bail", getEnvBool("BAIL", false), "Stop after the first failing suite (env: DDTSPEC_BAIL)")
	f.BoolVarP(&o.parallel, "parallel", "p", getEnvBool("PARALLEL", false), "Run suites concurrently (env: DDTSPEC_PARALLEL)")
	f.IntVar(&o.concurrency, "concurrency", getEnvInt("CONCURRENCY", runner.DefaultConcurrency), "Suites in flight when running in parallel (env: DDTSPEC_CONCURRENCY)")
	f.StringVar(&o.timeout, "timeout", getEnvString("TIMEOUT", "30s"), "Request timeout (e.g., 30s, 1m) (env: DDTSPEC_TIMEOUT)")
	f.StringVar(&o.caseTimeout, "case-timeout", getEnvString("CASE_TIMEOUT", runner.DefaultCaseTimeout.String()), "Whole-case time limit (env: DDTSPEC_CASE_TIMEOUT)")
	f.Float64Var(&o.rate, "rate", getEnvFloat("RATE", 0), "Maximum requests per second, 0 for unlimited (env: DDTSPEC_RATE)")
	f.StringVar(&o.proxy, "proxy", getEnvString("PROXY", ""), "Proxy URL for HTTP requests (env: DDTSPEC_PROXY)")
	f.BoolVarP(&o.insecure, "insecure", "k", getEnvBool("INSECURE", false), "Disable TLS certificate validation (env: DDTSPEC_INSECURE)")

	f.BoolVarP(&o.watch, "watch", "w", false, "Watch descriptors for changes and re-run")
	f.StringVar(&o.schedule, "schedule", getEnvString("SCHEDULE", ""), "Re-run on a cron schedule, e.g. \"*/5 * * * *\" or \"@every 1m\" (env: DDTSPEC_SCHEDULE)")

	f.StringVar(&o.coverage, "coverage", getEnvString("COVERAGE", ""), "OpenAPI document to report operation coverage against (env: DDTSPEC_COVERAGE)")
	f.StringVar(&o.coverageFile, "coverage-file", getEnvString("COVERAGE_FILE", ""), "Write the coverage report as JSON to a file (env: DDTSPEC_COVERAGE_FILE)")
	f.StringVar(&o.metricsFile, "metrics-file", getEnvString("METRICS_FILE", ""), "Export run metrics after each run; .json for JSON, else Prometheus text (env: DDTSPEC_METRICS_FILE)")

	f.StringVar(&o.eventsSink, "events-sink", getEnvString("EVENTS_SINK", ""), "CloudEvents sink URL for case and suite events (env: DDTSPEC_EVENTS_SINK)")
	f.StringVar(&o.eventsSource, "events-source", getEnvString("EVENTS_SOURCE", ""), "CloudEvents source attribute (env: DDTSPEC_EVENTS_SOURCE)")
	f.StringVar(&o.eventsPolicy, "events-policy", getEnvString("EVENTS_POLICY", "always"), "When to emit events: always, failure, recovery (env: DDTSPEC_EVENTS_POLICY)")

	f.StringVar(&o.logLevel, "log-level", getEnvString("LOG_LEVEL", ""), "Log level: debug, info, warn, error, off (env: DDTSPEC_LOG_LEVEL)")
	f.StringVar(&o.logFile, "log-file", getEnvString("LOG_FILE", ""), "Write JSON logs to a file (env: DDTSPEC_LOG_FILE)")

	return cmd
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// set reports whether a flag was given on the command line or through its
// environment variable, so it overrides the config file.
func set(cmd *cobra.Command, flag, envKey string) bool {
	return cmd.Flags().Changed(flag) || (envKey != "" && envSet(envKey))
}

// resolveConfig layers the config file, then environment and flags.
func (o *runOptions) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	if set(cmd, "env-file", "ENV_FILE") {
		cfg.EnvFile = o.envFile
	}
	if set(cmd, "env-prefix", "ENV_PREFIX") {
		cfg.EnvPrefix = o.envPrefix
	}
	if set(cmd, "output", "OUTPUT") || cfg.Output == "" {
		cfg.Output = o.output
	}
	if set(cmd, "output-file", "OUTPUT_FILE") {
		cfg.OutputFile = o.outputFile
	}
	if set(cmd, "no-color", "NO_COLOR") {
		cfg.NoColor = config.BoolPtr(o.noColor)
	}
	if set(cmd, "bail", "BAIL") {
		cfg.Bail = config.BoolPtr(o.bail)
	}
	if set(cmd, "parallel", "PARALLEL") {
		cfg.Parallel = config.BoolPtr(o.parallel)
	}
	if set(cmd, "concurrency", "CONCURRENCY") {
		cfg.Concurrency = o.concurrency
	}
	if set(cmd, "timeout", "TIMEOUT") || cfg.Timeout == 0 {
		d, err := time.ParseDuration(o.timeout)
		if err != nil {
			return nil, usageError(fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", o.timeout, err))
		}
		cfg.Timeout = int(d.Milliseconds())
	}
	if set(cmd, "case-timeout", "CASE_TIMEOUT") {
		d, err := time.ParseDuration(o.caseTimeout)
		if err != nil {
			return nil, usageError(fmt.Errorf("invalid case timeout value %q: %w", o.caseTimeout, err))
		}
		cfg.CaseTimeout = int(d.Milliseconds())
	}
	if set(cmd, "rate", "RATE") {
		cfg.RateLimit = o.rate
	}
	if set(cmd, "proxy", "PROXY") {
		cfg.Proxy = o.proxy
	}
	if set(cmd, "insecure", "INSECURE") {
		cfg.ValidateSSL = config.BoolPtr(!o.insecure)
	}
	if set(cmd, "events-sink", "EVENTS_SINK") {
		cfg.Events.Sink = o.eventsSink
	}
	if set(cmd, "events-source", "EVENTS_SOURCE") {
		cfg.Events.Source = o.eventsSource
	}
	if set(cmd, "log-level", "LOG_LEVEL") {
		cfg.LogLevel = o.logLevel
	}
	if set(cmd, "log-file", "LOG_FILE") {
		cfg.LogFile = o.logFile
	}

	if _, err := output.New(cfg.Output, output.Options{Writer: io.Discard}); err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// globals seeds variables from the config, the env file, the prefixed OS
// environment and --var, later sources winning.
func (o *runOptions) globals(cfg *config.Config) (map[string]any, error) {
	var fromFile map[string]any
	if cfg.EnvFile != "" {
		vars, err := env.LoadAndExportDotEnv(cfg.EnvFile)
		if err != nil {
			return nil, err
		}
		fromFile = env.FromStrings(vars)
	}
	fromFlags, err := env.ParseAssignments(o.vars)
	if err != nil {
		return nil, usageError(err)
	}
	return env.MergeVariables(cfg.Variables, fromFile, env.LoadSystemEnv(cfg.EnvPrefix), fromFlags), nil
}

func (o *runOptions) run(cmd *cobra.Command, args []string) error {
	files, err := requireFiles(args)
	if err != nil {
		return err
	}

	cfg, err := o.resolveConfig(cmd)
	if err != nil {
		if exitCode(err) == ExitUsageError {
			return err
		}
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return usageError(err)
	}
	defer func() { _ = logger.Sync() }()

	seeds, err := o.globals(cfg)
	if err != nil {
		if exitCode(err) == ExitUsageError {
			return err
		}
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	var eventsReporter *events.Reporter
	if cfg.Events.Sink != "" {
		eventsReporter, err = o.newEventsReporter(cfg, logger)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{
		cfg:          cfg,
		files:        files,
		args:         args,
		globals:      seeds,
		filters:      o.filters,
		verbose:      o.verbose,
		stdout:       cmd.OutOrStdout(),
		stderr:       cmd.ErrOrStderr(),
		logger:       logger,
		events:       eventsReporter,
		coverageFile: o.coverageFile,
	}
	if o.coverage != "" {
		s.coverage, err = coverage.Load(ctx, o.coverage)
		if err != nil {
			return &ExitError{Code: ExitParseError, Err: err}
		}
	}
	if o.metricsFile != "" {
		s.metrics = metrics.NewFileReporter(o.metricsFile, nil)
	}

	switch {
	case o.watch:
		if _, err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("run failed", zap.Error(err))
		}
		return watch(ctx, s)
	case o.schedule != "":
		return schedule(ctx, o.schedule, s)
	}

	res, err := s.runOnce(ctx)
	if err != nil && res == nil {
		return err
	}
	if code := RunExitCode(res); code != ExitSuccess {
		return &ExitError{Code: code}
	}
	return err
}

func (o *runOptions) newEventsReporter(cfg *config.Config, logger *zap.Logger) (*events.Reporter, error) {
	policy, err := events.ParsePolicy(o.eventsPolicy)
	if err != nil {
		return nil, usageError(err)
	}
	sender, err := events.NewHTTPSender(cfg.Events.Sink)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	opts := []events.Option{events.WithPolicy(policy), events.WithLogger(logger)}
	if cfg.Events.Source != "" {
		opts = append(opts, events.WithSource(cfg.Events.Source))
	}
	return events.NewReporter(sender, opts...), nil
}

// session holds what repeated runs of the same command share.
type session struct {
	cfg     *config.Config
	files   []string
	args    []string
	globals map[string]any
	filters []string
	verbose bool
	stdout  io.Writer
	stderr  io.Writer
	logger  *zap.Logger
	events  *events.Reporter

	coverage     *coverage.Analyzer
	coverageFile string
	metrics      *metrics.FileReporter
}

// runOnce runs every suite with a fresh formatter. The report file, when
// configured, is rewritten on each run.
func (s *session) runOnce(ctx context.Context) (*runner.RunResult, error) {
	w := s.stdout
	if s.cfg.OutputFile != "" {
		f, err := os.Create(s.cfg.OutputFile)
		if err != nil {
			return nil, &ExitError{Code: ExitConfigError, Err: fmt.Errorf("cannot create output file: %w", err)}
		}
		defer f.Close()
		w = f
	}

	formatter, err := output.New(s.cfg.Output, output.Options{
		Writer:  w,
		Verbose: s.verbose,
		NoColor: s.cfg.GetNoColor(),
	})
	if err != nil {
		return nil, usageError(err)
	}
	formatter.FormatHeader(version)

	reporter := output.NewReporter(formatter)
	opts := []runner.Option{
		runner.WithLogger(s.logger),
		runner.WithGlobals(s.globals),
		runner.WithFilter(s.filters...),
		runner.WithReporter(reporter),
	}
	if s.events != nil {
		opts = append(opts, runner.WithReporter(s.events))
	}
	if s.metrics != nil {
		opts = append(opts, runner.WithReporter(s.metrics))
	}
	var collector *coverage.Collector
	if s.coverage != nil {
		collector = coverage.NewCollector()
		opts = append(opts, runner.WithReporter(collector))
	}

	engine := runner.New(s.cfg, opts...)
	defer engine.Close()

	res, err := engine.RunFiles(ctx, s.files)
	if ferr := reporter.Err(); ferr != nil {
		return res, fmt.Errorf("error writing output: %w", ferr)
	}
	if s.metrics != nil {
		if merr := s.metrics.Err(); merr != nil {
			s.logger.Warn("metrics export failed", zap.Error(merr))
		}
	}
	if collector != nil {
		if cerr := s.reportCoverage(s.coverage.Analyze(collector.Requests())); cerr != nil {
			return res, cerr
		}
	}
	return res, err
}

// reportCoverage writes JSON to the coverage file when one is set. Otherwise
// the text report follows the console output, or goes to stderr when
// stdout carries a machine-readable report.
func (s *session) reportCoverage(report *coverage.Report) error {
	if s.coverageFile != "" {
		data, err := report.FormatJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(s.coverageFile, []byte(data+"\n"), 0644); err != nil {
			return fmt.Errorf("cannot write coverage file: %w", err)
		}
		return nil
	}
	w := s.stdout
	if s.cfg.Output != "console" || s.cfg.OutputFile != "" {
		w = s.stderr
	}
	_, err := io.WriteString(w, report.FormatConsole())
	return err
}
