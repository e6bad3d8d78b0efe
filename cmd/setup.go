package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"ago-backup/internal/backup"
	"ago-backup/internal/catalog/portal"
	"ago-backup/internal/display"
	apperrors "ago-backup/internal/errors"
	"ago-backup/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// errItemsFailed is returned by run when at least one item failed. The
// report has already been printed, so Execute only sets the exit code.
var errItemsFailed = errors.New("one or more items failed")

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) || apperrors.GetErrorType(err) == apperrors.ErrorTypeInterruption {
		return 130
	}
	return 1
}

// buildConfig loads the backup configuration: file, then AGO_BACKUP_*
// environment, then flags the user actually set.
func buildConfig(cmd *cobra.Command) (*backup.BackupSystemConfig, error) {
	flags := cmd.Flags()

	loader := backup.NewConfigLoader(viper.ConfigFileUsed()).WithOverride(func(c *backup.BackupSystemConfig) {
		if flags.Changed("portal-url") {
			c.Portal.URL = portalURL
		}
		if flags.Changed("username") {
			c.Portal.Username = username
		}
		if flags.Changed("archive-root") {
			c.Archive.Root = archiveRoot
		}
		if flags.Changed("audit-file") {
			c.Audit.Path = auditFile
		}
		if flags.Changed("workers") {
			c.Execution.Workers = workers
		}
		if flags.Changed("query") {
			c.Search.Query = query
		}
		if flags.Changed("max-items") {
			c.Search.MaxResults = maxItems
		}
		if flags.Changed("utc") {
			c.Naming.UTC = useUTC
		}
	})

	config, err := loader.LoadConfig()
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeValidation, "invalid configuration", err)
	}
	return config, nil
}

// buildDisplayConfig reads the display section and output flags through viper
func buildDisplayConfig(cmd *cobra.Command, out io.Writer) (*display.DisplayConfig, error) {
	config := display.DefaultDisplayConfig()
	if err := viper.UnmarshalKey("display", config); err != nil {
		return nil, fmt.Errorf("failed to read display configuration: %w", err)
	}

	format, err := display.ParseOutputFormat(viper.GetString("display.output_format"))
	if err != nil {
		return nil, err
	}
	config.OutputFormat = format
	config.VerboseMode = viper.GetBool("verbose")
	config.QuietMode = viper.GetBool("quiet")
	if cmd.Flags().Changed("no-color") {
		config.ColorEnabled = !noColor
	}
	config.Writer = out
	if config.MaxTableWidth == 0 {
		config.MaxTableWidth = display.TerminalWidth(out)
		if config.MaxTableWidth != 0 && config.MaxTableWidth < 40 {
			config.MaxTableWidth = 40
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// buildLogger creates the diagnostic logger. Logs go to stderr so they never
// mix with report output; without -v only errors reach the terminal unless a
// log file was requested.
func buildLogger() (*logging.Logger, error) {
	path := viper.GetString("log_file")

	level := logging.LogLevelQuiet
	switch {
	case viper.GetBool("verbose"):
		level = logging.LogLevelVerbose
	case path != "" && !viper.GetBool("quiet"):
		level = logging.LogLevelNormal
	}

	format := "text"
	if viper.GetString("log_format") == "json" {
		format = "json"
	}

	return logging.NewLogger(logging.Config{
		Level:   level,
		Output:  os.Stderr,
		Format:  format,
		LogFile: path,
	})
}

// session holds everything a portal-facing command needs
type session struct {
	config       *backup.BackupSystemConfig
	reporter     *display.RunReporter
	displayCfg   *display.DisplayConfig
	logger       *logging.Logger
	backupLogger *backup.BackupLogger
	client       *portal.Client
	index        *backup.LocalArchiveIndex
	orchestrator *backup.Orchestrator
}

// newSession loads configuration, signs in to the portal and wires the
// planner, transaction runner and orchestrator.
func newSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	config, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeValidation, "invalid configuration", err)
	}

	displayCfg, err := buildDisplayConfig(cmd, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	reporter := display.NewRunReporter(displayCfg)

	logger, err := buildLogger()
	if err != nil {
		return nil, err
	}

	backupLogger, err := backup.NewBackupLogger(backup.BackupLoggerConfig{
		Logger:      logger,
		JournalFile: config.Audit.JournalFile,
	})
	if err != nil {
		return nil, err
	}

	// Fail on an unwritable archive before asking for a password
	codec := config.NameCodec()
	index, err := backup.NewLocalArchiveIndex(&config.Archive, codec)
	if err != nil {
		backupLogger.Close()
		return nil, err
	}
	if err := index.HealthCheck(ctx); err != nil {
		backupLogger.Close()
		return nil, err
	}

	if config.Portal.Password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			backupLogger.Close()
			return nil, apperrors.NewAppError(apperrors.ErrorTypeAuthentication,
				"no portal password: set AGO_BACKUP_PASSWORD or run from a terminal", nil)
		}
		password, err := portal.PromptPassword(os.Stdin, os.Stderr, config.Portal.Username)
		if err != nil {
			backupLogger.Close()
			return nil, err
		}
		config.Portal.Password = password
	}

	client, err := portal.NewClient(portal.Options{
		Portal:       config.Portal,
		PollInterval: config.Execution.PollInterval,
		Logger:       logger,
	})
	if err != nil {
		backupLogger.Close()
		return nil, err
	}

	spinner := newSpinner(displayCfg, reporter)
	spinner.Start(fmt.Sprintf("Signing in to %s", config.Portal.URL))
	if err := client.SignIn(ctx); err != nil {
		spinner.Stop("")
		backupLogger.Close()
		return nil, err
	}
	spinner.Stop("")
	reporter.PrintMessage(display.IconInfo, fmt.Sprintf("Signed in as %s", client.Username()))

	audit, err := backup.NewCSVAuditLog(config.Audit, logger)
	if err != nil {
		backupLogger.Close()
		return nil, err
	}

	var verifier backup.ArchiveVerifier
	if !config.Archive.SkipVerify {
		verifier = backup.NewZipArchiveVerifier()
	}

	planner := backup.NewPlanner(index, codec)
	planner.ExcludeViews = !config.Search.IncludeViews

	transaction := backup.NewTransaction(client, index, codec, verifier, audit, backupLogger, config.Execution)

	return &session{
		config:       config,
		reporter:     reporter,
		displayCfg:   displayCfg,
		logger:       logger,
		backupLogger: backupLogger,
		client:       client,
		index:        index,
		orchestrator: backup.NewOrchestrator(backup.OrchestratorConfig{
			Catalog:     client,
			Planner:     planner,
			Transaction: transaction,
			Reporter:    reporter,
			Logger:      backupLogger,
			Workers:     config.Execution.Workers,
		}),
	}, nil
}

// Close releases the journal file
func (s *session) Close() error {
	return s.backupLogger.Close()
}

// newSpinner returns a spinner on stderr that is silent unless progress
// output is enabled and stderr is a terminal.
func newSpinner(config *display.DisplayConfig, reporter *display.RunReporter) *display.Spinner {
	enabled := config.IsProgressEnabled() && term.IsTerminal(int(os.Stderr.Fd()))
	return display.NewSpinner(os.Stderr, display.DotsSpinner, reporter.Colors(), enabled)
}

// withShutdown runs fn with a context canceled on SIGINT/SIGTERM
func withShutdown(parent context.Context, fn func(ctx context.Context) error) error {
	handler := apperrors.NewGracefulShutdownHandler()
	handler.RegisterShutdownFunc(func() error {
		fmt.Fprintln(os.Stderr, "Interrupted: canceling in-flight exports")
		return nil
	})
	ctx := handler.Start(parent)
	defer handler.Stop()

	err := fn(ctx)
	if err != nil && ctx.Err() != nil && parent.Err() == nil {
		return apperrors.NewAppError(apperrors.ErrorTypeInterruption, "interrupted", err)
	}
	return err
}
