// Package backup implements incremental backups of hosted feature services.
//
// A run searches the portal catalog, resolves a fingerprint for every
// candidate (the latest lastEditDate across its layers and tables), and backs
// up only the items whose identifier is not already present in the local
// archive root. Re-running without intervening edits is a no-op.
//
// Core Components:
//
// - Planner: classifies candidates into needs-backup and skipped
// - NameCodec: maps (item ID, fingerprint) to archive identifiers and back
// - LocalArchiveIndex: answers existence queries against the archive root
// - Transaction: export, download and remote cleanup of one item
// - CSVAuditLog: one row per completed backup, with optional rotation
// - Orchestrator: drives search, plan and execution with bounded concurrency
//
// An identifier looks like
//
//	0123456789abcdef_2024-03-01_14-22-05
//	fedcba9876543210_None
//
// and the archive for it is <root>/<identifier>.zip. The local archive is the
// authority on what has been backed up; the audit log is informational.
//
// Example usage:
//
//	codec := cfg.NameCodec()
//	index, err := backup.NewLocalArchiveIndex(&cfg.Archive, codec)
//	if err != nil {
//		return err
//	}
//	planner := backup.NewPlanner(index, codec)
//	tx := backup.NewTransaction(catalog, index, codec, backup.NewZipArchiveVerifier(), audit, logger, cfg.Execution)
//
//	orchestrator := backup.NewOrchestrator(backup.OrchestratorConfig{
//		Catalog:     catalog,
//		Planner:     planner,
//		Transaction: tx,
//		Reporter:    reporter,
//		Logger:      logger,
//		Workers:     cfg.Execution.Workers,
//	})
//	report, err := orchestrator.Run(ctx, cfg.Search.ToQuery())
package backup
