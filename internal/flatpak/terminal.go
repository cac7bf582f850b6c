package flatpak

import (
	"fmt"
	"os/exec"
)

// DefaultTerminals is the search order for a terminal emulator to host
// interactive runs.
var DefaultTerminals = []string{"gnome-terminal", "konsole", "xfce4-terminal", "xterm"}

// FindTerminal returns the first available terminal emulator from the
// preference list, or an error when none is installed.
func FindTerminal(preferred []string) (string, error) {
	if len(preferred) == 0 {
		preferred = DefaultTerminals
	}
	for _, term := range preferred {
		if path, err := exec.LookPath(term); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("FPK_TERMINAL_MISSING: no supported terminal emulator found")
}

// RunInTerminal launches a shell command inside a terminal emulator and
// keeps the window open until the user dismisses it.
func RunInTerminal(terminal, command string) error {
	wrapped := fmt.Sprintf("bash -c '%s; echo; read -p \"Press Enter to close...\"'", command)
	cmd := exec.Command(terminal, "-e", wrapped)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("FPK_TERMINAL_LAUNCH: %w", err)
	}
	return cmd.Process.Release()
}

// Remediation hints for the two scripted failure scenarios. Shown verbatim
// after a non-zero exit; the tool never retries on its own.
const (
	RemediationSDKInstall = "Common causes:\n" +
		"• No internet connection.\n" +
		"• The SDK version may not exist on Flathub.\n" +
		"• Insufficient disk space.\n" +
		"Check the build output for details."

	RemediationBuild = "The build and install process failed. " +
		"Check the build output for details."

	RemediationMissingRemote = "The 'flathub' remote is not configured. Add it by running:\n" +
		"flatpak remote-add --if-not-exists flathub https://flathub.org/repo/flathub.flatpakrepo"
)
