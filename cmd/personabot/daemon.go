package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.personabot.serve"
	systemdUnit  = "personabot.service"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the personabot background service (launchd/systemd)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install personabot serve as a user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, err := installService(runtime.GOOS, home, execPath, resolveConfigPath())
			if err != nil {
				return err
			}
			printServiceHints(cmd.OutOrStdout(), runtime.GOOS, path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the personabot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, err := servicePath(runtime.GOOS, home)
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon uninstalled: %s\n", path)
			return nil
		},
	})
	return cmd
}

func servicePath(goos, home string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

// installService renders and writes the service file for goos under home.
func installService(goos, home, execPath, cfgPath string) (string, error) {
	path, err := servicePath(goos, home)
	if err != nil {
		return "", err
	}

	var content string
	switch goos {
	case "darwin":
		logDir := filepath.Join(home, ".personabot", "logs")
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return "", err
		}
		content = strings.NewReplacer(
			"{{EXEC}}", execPath,
			"{{CONFIG}}", cfgPath,
			"{{LABEL}}", launchdLabel,
			"{{LOG}}", filepath.Join(logDir, "personabot.log"),
			"{{ERR_LOG}}", filepath.Join(logDir, "personabot-error.log"),
		).Replace(launchdTemplate)
	default:
		content = strings.NewReplacer(
			"{{EXEC}}", execPath,
			"{{CONFIG}}", cfgPath,
		).Replace(systemdTemplate)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func printServiceHints(w io.Writer, goos, path string) {
	fmt.Fprintf(w, "Daemon installed: %s\n", path)
	if goos == "darwin" {
		fmt.Fprintf(w, "To start: launchctl load %s\n", path)
		fmt.Fprintf(w, "To stop:  launchctl unload %s\n", path)
		return
	}
	fmt.Fprintln(w, "To start:  systemctl --user start personabot")
	fmt.Fprintln(w, "To enable: systemctl --user enable personabot")
	fmt.Fprintln(w, "To stop:   systemctl --user stop personabot")
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=personabot agent server
After=network.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
