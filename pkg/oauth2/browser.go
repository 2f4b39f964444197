package oauth2

import (
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserOpener hands the authorization URL to whatever shows it to the user.
type BrowserOpener func(url string) error

// OpenBrowser launches the platform's default URL handler and does not wait for it.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	// reap the child without blocking the login
	go func() { _ = cmd.Wait() }()
	return nil
}
