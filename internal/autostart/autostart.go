// Package autostart registers the agent with the host's init system so it
// starts at boot and restarts after a crash.
package autostart

import "strings"

// DefaultDataDir holds the spill buffer and metric FQN file of an installed
// agent on unix hosts.
const DefaultDataDir = "/var/lib/diamond-agent"

// Options describe the service to install.
type Options struct {
	ExecPath   string
	ConfigPath string
	DataDir    string
}

// Manager provides platform-specific autostart installation.
type Manager interface {
	IsInstalled() (bool, error)
	Install(opts Options) error
	Uninstall() error
	ServiceName() string
}

// Args returns the command line the service runs with, excluding the
// executable.
func (o Options) Args() []string {
	args := []string{"run"}
	if o.ConfigPath != "" {
		args = append(args, "--config", o.ConfigPath)
	}
	return args
}

func (o Options) dataDir() string {
	if o.DataDir == "" {
		return DefaultDataDir
	}
	return o.DataDir
}

// commandLine quotes arguments containing spaces for unit files.
func (o Options) commandLine() string {
	parts := append([]string{o.ExecPath}, o.Args()...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, " ")
}
