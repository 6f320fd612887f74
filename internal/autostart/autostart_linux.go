//go:build linux

package autostart

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	serviceName = "diamond-agent"
	unitPath    = "/etc/systemd/system/diamond-agent.service"
)

const unitTemplate = `[Unit]
Description=Diamond Metrics Agent
After=network-online.target docker.service
Wants=network-online.target

[Service]
Type=simple
ExecStart={command}
WorkingDirectory={dataDir}
Restart=always
RestartSec=10
TimeoutStopSec=90
StandardOutput=journal
StandardError=journal
SyslogIdentifier=diamond-agent

NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths={dataDir}
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`

// linuxManager implements Manager for Linux using systemd.
type linuxManager struct {
	unitPath string
	run      func(name string, args ...string) error
}

// New returns a Manager that uses systemd for service management.
func New() Manager {
	return &linuxManager{unitPath: unitPath, run: runCommand}
}

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// ServiceName returns the systemd service name.
func (l *linuxManager) ServiceName() string { return serviceName }

// IsInstalled checks whether the systemd unit file exists.
func (l *linuxManager) IsInstalled() (bool, error) {
	_, err := os.Stat(l.unitPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking unit file: %w", err)
	}
	return true, nil
}

// renderUnit fills the unit template.
func renderUnit(opts Options) string {
	unit := strings.ReplaceAll(unitTemplate, "{command}", opts.commandLine())
	return strings.ReplaceAll(unit, "{dataDir}", opts.dataDir())
}

// Install writes the unit file, then reloads systemd and enables and starts
// the service.
func (l *linuxManager) Install(opts Options) error {
	if err := os.MkdirAll(opts.dataDir(), 0750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(l.unitPath, []byte(renderUnit(opts)), 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}

	for _, args := range [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", serviceName},
		{"systemctl", "start", serviceName},
	} {
		if err := l.run(args[0], args[1:]...); err != nil {
			return fmt.Errorf("running %s: %w", strings.Join(args, " "), err)
		}
	}
	return nil
}

// Uninstall stops, disables and removes the service.
func (l *linuxManager) Uninstall() error {
	_ = l.run("systemctl", "stop", serviceName)
	_ = l.run("systemctl", "disable", serviceName)

	if err := os.Remove(l.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing unit file: %w", err)
	}

	_ = l.run("systemctl", "daemon-reload")
	return nil
}
