// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/axe"
	"github.com/xkilldash9x/scalpel-a11y/internal/browser"
	"github.com/xkilldash9x/scalpel-a11y/internal/config"
	"github.com/xkilldash9x/scalpel-a11y/internal/network"
	"github.com/xkilldash9x/scalpel-a11y/internal/observability"
	"github.com/xkilldash9x/scalpel-a11y/internal/orchestrator"
	"github.com/xkilldash9x/scalpel-a11y/internal/reporting"
)

// ErrNoTargets is the usage error for an invocation without URLs. The
// command reports it before a browser starts; the orchestrator returns the
// same value if handed an empty target list.
var ErrNoTargets = orchestrator.ErrNoTargets

const (
	envPrefix       = "SCALPEL_A11Y"
	defaultCfgName  = "scalpel-a11y"
	shutdownTimeout = 15 * time.Second
)

// browserSession is what an audit needs from a browser.
type browserSession interface {
	orchestrator.PageOpener
	Shutdown(ctx context.Context) error
}

// Swapped out in tests so the command runs without Chrome or the network.
var (
	newBrowserSession = startBrowser
	loadEngine        = fetchEngine
)

// managerSession adapts the browser manager's concrete tabs to orchestrator pages.
type managerSession struct {
	*browser.Manager
}

func (s managerSession) NewPage(ctx context.Context) (orchestrator.Page, error) {
	tab, err := s.Manager.NewPage(ctx)
	if err != nil {
		// Keep a nil *Tab out of the interface.
		return nil, err
	}
	return tab, nil
}

func startBrowser(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browserSession, error) {
	m, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return managerSession{m}, nil
}

func fetchEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.IgnoreTLSErrors = cfg.Browser.IgnoreTLSErrors
	clientCfg.Logger = logger
	if cfg.Network.Timeout > 0 {
		clientCfg.RequestTimeout = cfg.Network.Timeout
	}

	cacheDir, err := config.ExpandPath(cfg.Audit.CacheDir)
	if err != nil {
		return "", fmt.Errorf("failed to expand cache dir: %w", err)
	}
	loader := axe.NewSourceLoader(network.NewClient(clientCfg), cacheDir, logger)
	return loader.Load(ctx, cfg.Audit.AxeSource)
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "scalpel-a11y [flags] <url> [url...]",
		Short: "Audits web pages for accessibility violations with axe-core.",
		Long: `scalpel-a11y loads each URL in a headless browser, runs axe-core against it
and writes the deduplicated violations to a single report.

With --follow-links, the first --max-links anchors of every URL are audited too.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Checked before any configuration is read or a browser starts.
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return ErrNoTargets
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			return initializeConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			observability.InitializeLogger(cfg.Logger)
			return runAudit(cmd.Context(), cfg, args, observability.GetLogger())
		},
	}

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := rootCmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./scalpel-a11y.yaml)")
	flags.StringP("output", "o", "", "Report path, or 'stdout'. Defaults to a file next to the executable.")
	flags.StringP("format", "f", reporting.FormatCSV, "Report format: csv, json or sarif.")
	flags.Bool("follow-links", false, "Also audit the first --max-links links found on each URL.")
	flags.Int("max-links", 5, "Number of links to follow per URL.")
	flags.Bool("headless", true, "Run the browser without a window.")
	flags.StringSlice("tags", nil, "Only run axe rules with these tags (e.g. wcag2a,wcag2aa).")
	flags.Bool("same-site", false, "Only follow links on the same registrable domain.")

	return rootCmd
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"output":       "report.output",
	"format":       "report.format",
	"follow-links": "audit.follow_links",
	"max-links":    "audit.max_links",
	"headless":     "browser.headless",
	"tags":         "audit.tags",
	"same-site":    "audit.same_site",
}

// bindFlags lets flags override the config file and environment. Unset flags
// keep the lower-precedence values.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(defaultCfgName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// runAudit loads the engine, audits targets in a fresh browser and writes the report.
func runAudit(ctx context.Context, cfg *config.Config, targets []string, logger *zap.Logger) error {
	logger.Info("Starting scalpel-a11y", zap.String("version", Version))

	source, err := loadEngine(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load axe-core: %w", err)
	}
	runner, err := axe.NewRunner(source, cfg.Audit.Tags, logger)
	if err != nil {
		return err
	}

	session, err := newBrowserSession(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		// The run context may already be cancelled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := session.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("Error during browser shutdown", zap.Error(shutdownErr))
		}
	}()

	orch, err := orchestrator.New(session, runner, orchestrator.Options{
		FollowLinks: cfg.Audit.FollowLinks,
		MaxLinks:    cfg.Audit.MaxLinks,
		SameSite:    cfg.Audit.SameSite,
	}, logger)
	if err != nil {
		return err
	}

	records, err := orch.Run(ctx, targets)
	if err != nil {
		return err
	}

	output, err := cfg.Report.ResolveOutput(cfg.Audit.FollowLinks)
	if err != nil {
		return err
	}
	err = reporting.WriteReport(reporting.Options{
		Format:          cfg.Report.Format,
		Output:          output,
		IncludePageName: cfg.Audit.FollowLinks,
		ToolVersion:     Version,
	}, records, logger)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("Report written",
		zap.String("path", output),
		zap.String("format", cfg.Report.Format),
		zap.Int("records", len(records)),
	)
	return nil
}

// Execute runs the root command and reports a failure before returning it.
// The caller owns the exit code.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		observability.Sync()
		return nil
	}

	if errors.Is(err, ErrNoTargets) {
		rootCmd.PrintErrln("Error:", err)
		rootCmd.PrintErr(rootCmd.UsageString())
		return err
	}

	logger := observability.GetLogger()
	if errors.Is(err, context.Canceled) {
		logger.Warn("Audit aborted", zap.Error(err))
	} else {
		logger.Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}
