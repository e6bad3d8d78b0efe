package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// CLI flag variables
var (
	// Portal and archive flags
	portalURL   string
	username    string
	archiveRoot string
	auditFile   string

	// Run flags
	workers  int
	query    string
	maxItems int
	useUTC   bool

	// Output flags
	verbose      bool
	quiet        bool
	logFile      string
	outputFormat string
	noColor      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ago-backup",
	Short: "Back up hosted feature services to a local archive",
	Long: `ago-backup searches a portal for feature services, exports every item that
was edited since its last backup, downloads the export into a local archive and
records it in an audit log. Items whose newest edit is already archived are skipped,
so the tool is safe to run on a schedule.

Examples:
  # Preview what a run would do
  ago-backup plan --portal-url=https://www.arcgis.com --username=gis_admin

  # Back up everything the default query matches
  ago-backup run --config=backup.yaml

  # Back up a single group with eight workers, timestamps in UTC
  ago-backup run --query='group:"1f2e3d4c"' --workers=8 --utc

  # Machine-readable run report
  ago-backup run --format=json --quiet

  # Inspect the archive and the audit log
  ago-backup list
  ago-backup audit --format=compact`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ago-backup.yaml)")

	// Portal and archive flags
	rootCmd.PersistentFlags().StringVar(&portalURL, "portal-url", "", "portal root URL")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "portal username")
	rootCmd.PersistentFlags().StringVar(&archiveRoot, "archive-root", "", "directory holding archived exports")
	rootCmd.PersistentFlags().StringVar(&auditFile, "audit-file", "", "audit log path (default <archive-root>/backup_audit.csv)")

	// Run flags
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "concurrent transactions (1-32, default 4)")
	rootCmd.PersistentFlags().StringVar(&query, "query", "", "catalog search query")
	rootCmd.PersistentFlags().IntVar(&maxItems, "max-items", 0, "maximum number of items to consider (default 2000)")
	rootCmd.PersistentFlags().BoolVar(&useUTC, "utc", false, "render identifier timestamps in UTC instead of local time")

	// Output flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format (table, json, yaml, compact)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	// Bind output flags to viper; backup settings go through the config loader
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("display.output_format", rootCmd.PersistentFlags().Lookup("format"))

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.SetUsageTemplate(getUsageTemplate())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".ago-backup" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ago-backup")
	}

	viper.SetEnvPrefix("AGO_BACKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("display.output_format", "table")
	viper.SetDefault("display.color_enabled", true)
	viper.SetDefault("display.theme", "dark")
	viper.SetDefault("display.use_icons", true)
	viper.SetDefault("display.show_progress", true)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// getUsageTemplate returns a custom usage template with examples
func getUsageTemplate() string {
	return `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}

Configuration File:
  Generate a sample configuration file with: ago-backup config

Environment Variables:
  Settings can also be given with the AGO_BACKUP_ prefix, for example
    AGO_BACKUP_PORTAL_URL=https://gis.example.com/portal
    AGO_BACKUP_USERNAME=gis_admin
    AGO_BACKUP_PASSWORD=...        (prompted on a terminal when unset)
    AGO_BACKUP_ARCHIVE_ROOT=/srv/backups
    AGO_BACKUP_WORKERS=8
    AGO_BACKUP_DISPLAY_OUTPUT_FORMAT=json

Output Formats:
  table          - Status lines and aligned tables (default)
  json           - Machine-readable JSON output
  yaml           - Human-readable YAML output
  compact        - Tab-separated lines for scripting
`
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for ago-backup",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ago-backup version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

func init() {
	rootCmd.AddCommand(createVersionCommand())
}
