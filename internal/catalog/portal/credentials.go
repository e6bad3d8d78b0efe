package portal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptPassword asks for the portal password on the terminal without echo.
// It fails when in is not a terminal so unattended runs never block.
func PromptPassword(in *os.File, out io.Writer, username string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for the password of %s; set AGO_BACKUP_PASSWORD", username)
	}

	fmt.Fprintf(out, "Portal password for %s: ", username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	result := strings.TrimRight(string(password), "\r\n")
	if result == "" {
		return "", fmt.Errorf("empty password")
	}
	return result, nil
}
