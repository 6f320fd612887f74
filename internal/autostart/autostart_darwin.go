//go:build darwin

package autostart

import (
	"fmt"
	"html"
	"os"
	"os/exec"
	"strings"
)

const (
	serviceLabel = "com.netuitive.diamond-agent"
	plistPath    = "/Library/LaunchDaemons/com.netuitive.diamond-agent.plist"
)

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{label}</string>
    <key>ProgramArguments</key>
    <array>
{arguments}    </array>
    <key>WorkingDirectory</key>
    <string>{dataDir}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>/var/log/diamond-agent.log</string>
    <key>StandardErrorPath</key>
    <string>/var/log/diamond-agent.log</string>
</dict>
</plist>
`

// darwinManager implements Manager for macOS using a launchd daemon.
type darwinManager struct{}

// New returns a Manager that uses launchd.
func New() Manager { return &darwinManager{} }

func (d *darwinManager) ServiceName() string { return serviceLabel }

func (d *darwinManager) IsInstalled() (bool, error) {
	_, err := os.Stat(plistPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking plist file: %w", err)
	}
	return true, nil
}

func renderPlist(opts Options) string {
	var args strings.Builder
	for _, a := range append([]string{opts.ExecPath}, opts.Args()...) {
		fmt.Fprintf(&args, "        <string>%s</string>\n", html.EscapeString(a))
	}
	plist := strings.ReplaceAll(plistTemplate, "{label}", serviceLabel)
	plist = strings.ReplaceAll(plist, "{arguments}", args.String())
	return strings.ReplaceAll(plist, "{dataDir}", html.EscapeString(opts.dataDir()))
}

func (d *darwinManager) Install(opts Options) error {
	if err := os.MkdirAll(opts.dataDir(), 0750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(plistPath, []byte(renderPlist(opts)), 0644); err != nil {
		return fmt.Errorf("creating plist: %w", err)
	}
	if err := exec.Command("launchctl", "load", "-w", plistPath).Run(); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	return nil
}

func (d *darwinManager) Uninstall() error {
	_ = exec.Command("launchctl", "unload", plistPath).Run()
	if err := os.Remove(plistPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing plist: %w", err)
	}
	return nil
}
