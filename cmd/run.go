package cmd

import (
	"context"
	"fmt"

	"ago-backup/internal/display"

	"github.com/spf13/cobra"
)

// runCmd performs a backup run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up every item edited since its last archive",
	Long: `Search the portal, plan the run and back up each item that needs it.

Every item goes through export, download and remote cleanup. A finished item is
written to the archive and appended to the audit log; a failed item leaves no
archive behind and is retried by the next run. The command exits with status 1
when any item failed.

Examples:
  # Run with the configuration in $HOME/.ago-backup.yaml
  ago-backup run

  # Keep the exports on the portal and log every transition
  AGO_BACKUP_KEEP_REMOTE_EXPORTS=true ago-backup run -v --log-file=backup.log

  # JSON report for a scheduler
  ago-backup run --format=json --quiet > report.json`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

// planCmd previews a run
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which items a run would back up or skip",
	Long: `Search the portal and classify every candidate without exporting anything.

Items are skipped when they have no edit history, when an archive with the same
identifier already exists, or when they are view services.

Examples:
  ago-backup plan
  ago-backup plan --query='owner:gis_admin' --format=yaml`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runBackup(cmd *cobra.Command, args []string) error {
	return withShutdown(cmd.Context(), func(ctx context.Context) error {
		s, err := newSession(ctx, cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.orchestrator.Run(ctx, s.config.Search.ToQuery())
		if err != nil {
			return err
		}
		if report.HasFailures() {
			return errItemsFailed
		}
		return nil
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	return withShutdown(cmd.Context(), func(ctx context.Context) error {
		s, err := newSession(ctx, cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		spinner := newSpinner(s.displayCfg, s.reporter)
		spinner.Start("Searching catalog")
		items, plan, err := s.orchestrator.Plan(ctx, s.config.Search.ToQuery())
		spinner.Stop("")
		if err != nil {
			return err
		}

		if err := s.reporter.Write(display.NewPlanView(plan, s.config.NameCodec())); err != nil {
			return err
		}
		s.reporter.PrintMessage(display.IconInfo, fmt.Sprintf("%d candidates: %d need a backup, %d skipped",
			len(items), len(plan.NeedsBackup), len(plan.Skipped)))
		return nil
	})
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
}
