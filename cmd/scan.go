package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/defenseunicorns/uds-preflight-scan/internal/data/model"
	"github.com/defenseunicorns/uds-preflight-scan/internal/docker"
	"github.com/defenseunicorns/uds-preflight-scan/internal/imagelist"
	"github.com/defenseunicorns/uds-preflight-scan/internal/log"
	"github.com/defenseunicorns/uds-preflight-scan/internal/metrics"
	"github.com/defenseunicorns/uds-preflight-scan/internal/pprof"
	"github.com/defenseunicorns/uds-preflight-scan/internal/registry"
	"github.com/defenseunicorns/uds-preflight-scan/internal/report"
	"github.com/defenseunicorns/uds-preflight-scan/internal/sql"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/scan"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

const (
	csvFileName  = "preflight_image_scan_result.csv"
	xlsxFileName = "images_scan_results.xlsx"

	modeAPI  = "api"
	modeFile = "file"
)

// errRequiredFlagEmpty is the error message for a required flag that is empty.
var errRequiredFlagEmpty = errors.New("is required and cannot be empty")

var (
	errMissingSource    = errors.New("one of api-token or image-file is required")
	errConflictingFlags = errors.New("api-token and image-file are mutually exclusive")
	errInvalidParallel  = errors.New("parallel must be at least 1")
	errScanFailed       = errors.New("one or more image scans failed")
)

// options holds every flag of the scan command.
type options struct {
	repoNamespace string
	cnfPrefix     string
	tagType       string
	apiToken      string
	authJSON      string
	imageFile     string
	fqdn          string
	filter        string
	parallel      int
	platform      string
	outputDir     string
	artifactsDir  string
	extraImages   []string
	registryCreds []string
	configFile    string
	logLevel      string
	skipChecks    bool
	metricsFile   string
	pprofAddr     string
	db            sql.Config
}

func (o *options) mode() string {
	if o.apiToken != "" {
		return modeAPI
	}
	return modeFile
}

func (o *options) historyEnabled() bool {
	return o.db.Type != "" || o.db.Path != ""
}

// validate checks flag combinations once the config file has been applied.
func (o *options) validate() error {
	if o.fqdn == "" {
		return fmt.Errorf("fqdn %w", errRequiredFlagEmpty)
	}
	switch {
	case o.apiToken == "" && o.imageFile == "":
		return errMissingSource
	case o.apiToken != "" && o.imageFile != "":
		return errConflictingFlags
	case o.apiToken != "" && o.repoNamespace == "":
		return fmt.Errorf("repo-namespace %w", errRequiredFlagEmpty)
	}
	if _, err := imagelist.ParseTagType(o.tagType); err != nil {
		return err
	}
	if o.parallel < 1 {
		return fmt.Errorf("%w: got %d", errInvalidParallel, o.parallel)
	}
	if o.historyEnabled() {
		if _, err := sql.CreateDBConnector(o.db); err != nil {
			return fmt.Errorf("invalid history database settings: %w", err)
		}
	}
	return nil
}

// preflightScanner is the scanner as used by the scan command.
type preflightScanner interface {
	scan.ImageScanner
	CheckTool() (string, error)
	CheckVersion(ctx context.Context) (string, error)
}

// registryClient is the registry API as used by the scan command.
type registryClient interface {
	imagelist.RepositoryClient
	CheckAuth(ctx context.Context, namespace string) error
}

// scanDeps are the collaborators of a scan run, swapped out in tests.
type scanDeps struct {
	newScanner  func(logger types.Logger, opts scan.Options) preflightScanner
	newRegistry func(ctx context.Context, fqdn, token string) (registryClient, error)
	dial        func(ctx context.Context, network, address string) (net.Conn, error)
}

func defaultDeps() scanDeps {
	return scanDeps{
		newScanner: func(logger types.Logger, opts scan.Options) preflightScanner {
			return scan.New(logger, opts)
		},
		newRegistry: func(ctx context.Context, fqdn, token string) (registryClient, error) {
			c, err := registry.NewClient(ctx, nil, fqdn, token)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		dial: (&net.Dialer{}).DialContext,
	}
}

// Execute is the main entry point for the scanner.
func Execute(args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(defaultDeps())
	rootCmd.Version = versionString()
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCmd creates the root command, which runs a scan.
func newRootCmd(deps scanDeps) *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "uds-preflight-scan",
		Short: "Run preflight container checks against registry images and report the results.",
		Long: `Run "preflight check container" against every image of a registry namespace, or of an
image list file, and write the results to a CSV file and a styled spreadsheet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configFile != "" {
				if err := applyConfigFile(cmd, opts.configFile); err != nil {
					return err
				}
			}
			logger, err := log.New(cmd.ErrOrStderr(), opts.logLevel)
			if err != nil {
				return err
			}
			cmd.SetContext(log.WithLogger(contextOf(cmd), logger))
			return nil
		},
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := report.NewPrinter(cmd.OutOrStdout(), terminalWidth(cmd.OutOrStdout()))
			return runScan(cmd.Context(), printer, opts, deps)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.repoNamespace, "repo-namespace", "n", "", "Registry namespace (organization) to list images from")
	flags.StringVarP(&opts.cnfPrefix, "cnf-prefix", "c", "",
		`Only scan repositories whose name contains this text. Use | to give alternatives, e.g. 'amf|smf'`)
	flags.StringVarP(&opts.tagType, "tag-type", "t", string(imagelist.TagTypeName), "Reference images by tag name or manifest digest. options: name|digest")
	flags.StringVarP(&opts.apiToken, "api-token", "a", "", "Bearer token for the registry API")
	flags.StringVarP(&opts.authJSON, "auth-json", "d", "", "Docker config file with registry credentials, passed to preflight")
	flags.StringVarP(&opts.imageFile, "image-file", "i", "", "File with one image reference per line, used instead of the registry API")
	flags.StringVarP(&opts.fqdn, "fqdn", "q", "", "Registry host name")
	flags.StringVarP(&opts.filter, "filter", "x", "chartrepo", "Skip repositories whose name contains this text. Use | to give alternatives")
	flags.IntVarP(&opts.parallel, "parallel", "p", 1, "Number of images scanned at the same time")
	flags.StringVar(&opts.platform, "platform", scan.DefaultPlatform, "Image platform to check")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", ".", "Directory for the CSV and spreadsheet results")
	flags.StringVar(&opts.artifactsDir, "artifacts-dir", "", "Keep preflight artifacts for each image under this directory")
	flags.StringSliceVar(&opts.extraImages, "extra-image", nil,
		"Additional repository names (API mode) or image references (file mode) to scan")
	flags.StringSliceVarP(&opts.registryCreds, "registry-creds", "r", nil,
		`List of registry credentials in the format 'registry:username:password'.
Used to generate a docker config for preflight when --auth-json is not given.
Example: 'registry1.dso.mil:myuser:mypassword'`)
	flags.BoolVar(&opts.skipChecks, "skip-checks", false, "Skip the pre-requisite checks")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format to this path")
	flags.StringVar(&opts.pprofAddr, "pprof-addr", "", "Serve pprof and /metrics on this address during the run")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&opts.configFile, "config", "", "YAML file with flag values; command line flags take precedence")
	persistent.StringVar(&opts.logLevel, "log-level", "info", "Log level. options: debug|info|warn|error")
	persistent.StringVar(&opts.db.Type, "db-type", "", "History database type. options: sqlite|postgres|cloudsql")
	persistent.StringVar(&opts.db.Path, "db-path", "", "SQLite history database file; enables history when set")
	persistent.StringVar(&opts.db.DSN, "db-dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	persistent.StringVar(&opts.db.InstanceConnectionName, "db-instance", "", "Cloud SQL instance connection name")
	persistent.StringVar(&opts.db.User, "db-user", "", "Cloud SQL database user")
	persistent.StringVar(&opts.db.Password, "db-password", os.Getenv("DB_PASSWORD"), "Cloud SQL database password")
	persistent.StringVar(&opts.db.DBName, "db-name", "", "Cloud SQL database name")

	rootCmd.AddCommand(newConvertCmd(), newHistoryCmd(opts))
	return rootCmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// terminalWidth returns the width of w when it is a terminal, else 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// runScan runs the whole scan flow: checks, image list, scans, CSV, spreadsheet, history and metrics.
func runScan(ctx context.Context, printer *report.Printer, opts *options, deps scanDeps) error {
	logger := log.NewLogger(ctx)
	ctx = metrics.WithMetrics(ctx, metrics.Namespace)
	collector := metrics.FromContext(ctx, metrics.Namespace)

	if opts.pprofAddr != "" {
		pprofCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := pprof.StartPprofServer(pprofCtx, opts.pprofAddr, collector.MetricsHandler()); err != nil {
				logger.Error("pprof server failed", zap.Error(err))
			}
		}()
	}

	authJSON, cleanup, err := resolveAuthJSON(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	scanner := deps.newScanner(logger, scan.Options{
		Platform:     opts.platform,
		AuthJSON:     authJSON,
		ArtifactsDir: opts.artifactsDir,
	})

	var client registryClient
	if opts.mode() == modeAPI {
		client, err = deps.newRegistry(ctx, opts.fqdn, opts.apiToken)
		if err != nil {
			return fmt.Errorf("error creating registry client: %w", err)
		}
	}

	if opts.skipChecks {
		logger.Warn("Skipping pre-requisite checks")
	} else if err := runChecks(ctx, printer, scanner, client, opts, deps.dial); err != nil {
		return err
	}

	targets, resolveErr := resolveTargets(ctx, client, opts)
	unresolved := imagelist.Unresolved(resolveErr)
	if len(targets) == 0 && len(unresolved) == 0 {
		return resolveErr
	}
	if resolveErr != nil {
		logger.Warn("Some repositories could not be resolved",
			zap.Int("count", len(unresolved)), zap.Error(resolveErr))
	}
	logger.Info("Images to scan", zap.Int("count", len(targets)+len(unresolved)), zap.String("mode", opts.mode()))

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	csvPath := filepath.Join(opts.outputDir, csvFileName)
	moved, err := report.RotateFile(csvPath)
	if err != nil {
		return err
	}
	if moved {
		logger.Info("Saved previous results", zap.String("path", csvPath+"_saved"))
	}

	start := time.Now()
	// an unresolved repository counts as a failed image scan
	results := make([]*types.ImageScanResult, 0, len(unresolved)+len(targets))
	for _, u := range unresolved {
		res := &types.ImageScanResult{Target: u.Target, Err: u.Err}
		printer.PrintImage(res)
		collector.ObserveImage(res)
		results = append(results, res)
	}
	runner := scan.NewRunner(scanner, opts.parallel, printer.PrintImage)
	results = append(results, runner.Run(ctx, targets)...)
	elapsed := time.Since(start)

	var rows []types.Row
	failed := 0
	for _, res := range results {
		rows = append(rows, res.Rows...)
		if res.Failed() {
			failed++
		}
	}
	if err := report.WriteCSVFile(csvPath, rows); err != nil {
		return err
	}
	printer.PrintSummary(results, elapsed)
	logger.Info("CSV results written", zap.String("path", csvPath), zap.Int("rows", len(rows)))

	errs := resolveErr
	if failed > 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: %d of %d images", errScanFailed, failed, len(results)))
		logger.Error("Skipping spreadsheet because scans failed", zap.Int("failed", failed))
	} else {
		xlsxPath := filepath.Join(opts.outputDir, xlsxFileName)
		if err := report.WriteXLSX(xlsxPath, rows); err != nil {
			errs = errors.Join(errs, err)
		} else {
			logger.Info("Spreadsheet written", zap.String("path", xlsxPath))
		}
	}

	if opts.historyEnabled() {
		info := model.RunInfo{
			FQDN:      opts.fqdn,
			Namespace: opts.repoNamespace,
			Mode:      opts.mode(),
			StartedAt: start,
			Elapsed:   elapsed,
		}
		if err := saveHistory(ctx, opts.db, model.NewScanRun(info, results)); err != nil {
			logger.Error("Error saving scan history", zap.Error(err))
			errs = errors.Join(errs, err)
		}
	}

	if opts.metricsFile != "" {
		if err := collector.WriteToTextfile(opts.metricsFile); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// resolveAuthJSON returns the docker config handed to preflight, generating a temporary one
// from --registry-creds when --auth-json is not set.
func resolveAuthJSON(opts *options) (string, func(), error) {
	noop := func() {}
	if opts.authJSON != "" || len(opts.registryCreds) == 0 {
		return opts.authJSON, noop, nil
	}
	creds, err := docker.ParseCredentials(opts.registryCreds)
	if err != nil {
		return "", noop, err
	}
	configText, err := docker.GenerateConfigText(creds)
	if err != nil {
		return "", noop, fmt.Errorf("error generating Docker config: %w", err)
	}
	path, err := docker.WriteConfigToTempDir(configText)
	if err != nil {
		return "", noop, fmt.Errorf("error writing Docker config to temp dir: %w", err)
	}
	return path, func() { os.RemoveAll(filepath.Dir(path)) }, nil
}

// resolveTargets builds the image list from the registry or from the image file.
func resolveTargets(ctx context.Context, client registryClient, opts *options) ([]types.ImageTarget, error) {
	if opts.mode() == modeAPI {
		tagType, err := imagelist.ParseTagType(opts.tagType)
		if err != nil {
			return nil, err
		}
		return imagelist.FromRegistry(ctx, client, imagelist.RegistryOptions{
			FQDN:        opts.fqdn,
			Namespace:   opts.repoNamespace,
			Prefix:      opts.cnfPrefix,
			Filter:      opts.filter,
			TagType:     tagType,
			ExtraImages: opts.extraImages,
		})
	}

	targets, err := imagelist.FromFile(opts.imageFile)
	if err != nil {
		return nil, err
	}
	for _, ref := range opts.extraImages {
		target, err := imagelist.ParseTarget(ref)
		if err != nil {
			return nil, fmt.Errorf("extra image: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}
