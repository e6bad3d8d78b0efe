package cmd

import (
	"fmt"
	"os"

	"ago-backup/internal/backup"
	"ago-backup/internal/display"
	apperrors "ago-backup/internal/errors"

	"github.com/spf13/cobra"
)

var (
	// Audit flags
	auditAll    bool
	auditItemID string

	// Config flags
	configOutput string
)

// listCmd lists archived exports
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the archives in the archive root",
	Long: `List every archive in the archive root whose name decodes as a backup
identifier, with the item it belongs to and the edit time it captures.

Examples:
  ago-backup list
  ago-backup list --archive-root=/srv/backups --format=json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// auditCmd prints the audit log
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the audit log of completed backups",
	Long: `Print the records of the audit log, one per completed backup.

Examples:
  # Current log only
  ago-backup audit

  # Include rotated segments, history of one item
  ago-backup audit --all --item=0a1b2c3d`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

// configCmd generates a sample configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate a sample configuration file",
	Long: `Generate a sample configuration file that can be used with the --config flag.

Examples:
  # Print to stdout
  ago-backup config

  # Write to the default location
  ago-backup config --output=$HOME/.ago-backup.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runList(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	displayCfg, err := buildDisplayConfig(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	index, err := backup.NewLocalArchiveIndex(&config.Archive, config.NameCodec())
	if err != nil {
		return err
	}
	entries, err := index.List(cmd.Context())
	if err != nil {
		return apperrors.WrapError(err, "failed to list archives")
	}

	return display.NewRunReporter(displayCfg).Write(display.NewArchiveView(entries))
}

func runAudit(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	displayCfg, err := buildDisplayConfig(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	records, err := readAuditRecords(config.Audit.Path, auditAll)
	if err != nil {
		return apperrors.WrapError(err, "failed to read audit log")
	}
	if auditItemID != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.ID == auditItemID {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	return display.NewRunReporter(displayCfg).Write(display.NewAuditView(records))
}

// readAuditRecords reads the audit log at path, optionally preceded by its
// rotated segments. A log that does not exist yet has no records.
func readAuditRecords(path string, withSegments bool) ([]*backup.AuditRecord, error) {
	var paths []string
	if withSegments {
		segments, err := backup.AuditSegments(path)
		if err != nil {
			return nil, err
		}
		paths = append(paths, segments...)
	}
	paths = append(paths, path)

	var records []*backup.AuditRecord
	for _, p := range paths {
		rs, err := backup.ReadAuditLog(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rs...)
	}
	return records, nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	data, err := backup.GenerateDefaultConfigYAML()
	if err != nil {
		return err
	}

	if configOutput == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if _, err := os.Stat(configOutput); err == nil {
		return fmt.Errorf("%s already exists", configOutput)
	}
	if err := os.WriteFile(configOutput, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote sample configuration to %s\n", configOutput)
	return nil
}

func init() {
	auditCmd.Flags().BoolVar(&auditAll, "all", false, "include rotated audit log segments")
	auditCmd.Flags().StringVar(&auditItemID, "item", "", "only show records of this item ID")

	configCmd.Flags().StringVarP(&configOutput, "output", "o", "", "write the sample to this file instead of stdout")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(configCmd)
}
