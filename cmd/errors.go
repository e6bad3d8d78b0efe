package cmd

import (
	"errors"
	"fmt"
	"io"

	apperrors "ago-backup/internal/errors"
)

// reportError prints a command error the way users should see it: the
// message, the underlying cause and hints for the error category.
func reportError(w io.Writer, err error) {
	if errors.Is(err, errItemsFailed) {
		return
	}

	classified := apperrors.NewErrorClassifier().ClassifyError(err)
	fmt.Fprintf(w, "Error: %s\n", apperrors.FormatUserError(classified))
	if classified.Cause != nil {
		fmt.Fprintf(w, "  %v\n", classified.Cause)
	}

	writeHints(w, classified.Type)
}

// writeHints prints troubleshooting hints for an error type
func writeHints(w io.Writer, errorType apperrors.ErrorType) {
	var hints []string
	switch errorType {
	case apperrors.ErrorTypeConnection:
		hints = []string{
			"Check that the portal URL is correct and reachable",
			"The portal may be throttling requests; try fewer --workers",
		}
	case apperrors.ErrorTypeAuthentication:
		hints = []string{
			"Verify the username and password",
			"Set AGO_BACKUP_PASSWORD or run from a terminal to be prompted",
		}
	case apperrors.ErrorTypePermission:
		hints = []string{
			"The user needs rights to export and delete items it does not own",
		}
	case apperrors.ErrorTypeValidation:
		hints = []string{
			"Review the configuration file and command line flags",
			"Generate a sample configuration with: ago-backup config",
		}
	case apperrors.ErrorTypeFileSystem:
		hints = []string{
			"Check that the archive root and audit file are writable",
			"Check free disk space",
		}
	case apperrors.ErrorTypeTimeout:
		hints = []string{
			"Large services can take a long time to export; raise execution.export_timeout",
		}
	}

	if len(hints) == 0 {
		return
	}
	fmt.Fprintf(w, "\nTroubleshooting hints:\n")
	for _, hint := range hints {
		fmt.Fprintf(w, "- %s\n", hint)
	}
}
