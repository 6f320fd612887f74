// Process check collector: counts live processes per configured group and
// posts a TTL check while at least one is up.
package collector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/models"
)

// ProcInfo is what process matching looks at.
type ProcInfo struct {
	Name    string
	Exe     string
	Cmdline []string
	Status  []string
}

// ProcessLister returns the current processes.
type ProcessLister func(ctx context.Context) ([]ProcInfo, error)

type processGroup struct {
	name                 string
	exe, names, cmdlines []*regexp.Regexp
}

func (g processGroup) matches(p ProcInfo) bool {
	for _, re := range g.exe {
		if re.MatchString(p.Exe) {
			return true
		}
	}
	for _, re := range g.names {
		if re.MatchString(p.Name) {
			return true
		}
	}
	cmdline := strings.Join(p.Cmdline, " ")
	for _, re := range g.cmdlines {
		if re.MatchString(cmdline) {
			return true
		}
	}
	return false
}

// ProcessCheckCollector watches configured process groups.
type ProcessCheckCollector struct {
	groups []processGroup
	ttl    time.Duration
	list   ProcessLister
	poster CheckPoster
	logger *zap.Logger
}

// NewProcessCheckCollector compiles the group matchers. A nil lister uses
// gopsutil.
func NewProcessCheckCollector(cfg config.ProcessCheckConfig, list ProcessLister, poster CheckPoster, logger *zap.Logger) (*ProcessCheckCollector, error) {
	if list == nil {
		list = listProcesses
	}
	names := make([]string, 0, len(cfg.Processes))
	for name := range cfg.Processes {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &ProcessCheckCollector{ttl: cfg.TTL.Duration, list: list, poster: poster, logger: logger}
	for _, name := range names {
		def := cfg.Processes[name]
		g := processGroup{name: name}
		var err error
		if g.exe, err = compileAll(def.Exe); err != nil {
			return nil, fmt.Errorf("process group %s: %w", name, err)
		}
		if g.names, err = compileAll(def.Name); err != nil {
			return nil, fmt.Errorf("process group %s: %w", name, err)
		}
		if g.cmdlines, err = compileAll(def.Cmdline); err != nil {
			return nil, fmt.Errorf("process group %s: %w", name, err)
		}
		c.groups = append(c.groups, g)
	}
	return c, nil
}

// Name returns the collector identifier.
func (c *ProcessCheckCollector) Name() string { return "processcheck" }

// IsAvailable reports whether any group is configured.
func (c *ProcessCheckCollector) IsAvailable() bool { return len(c.groups) > 0 }

// Collect reports process.<group>.up, the number of matching processes
// that are neither stopped nor dead.
func (c *ProcessCheckCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	procs, err := c.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	up := make([]int64, len(c.groups))
	for _, p := range procs {
		for i, g := range c.groups {
			if g.matches(p) && alive(p.Status) {
				up[i]++
			}
		}
	}

	s := newSampler()
	for i, g := range c.groups {
		s.gauge("process."+sanitize(g.name)+".up", models.Int(up[i]))
		if up[i] > 0 && c.poster != nil {
			c.poster.PostCheck(ctx, models.Check{Name: g.name, TTL: c.ttl})
		}
	}
	return s.samples, nil
}

func alive(status []string) bool {
	for _, st := range status {
		switch st {
		case process.Stop, "dead":
			return false
		}
	}
	return true
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// listProcesses reads the process table. Fields that cannot be read are
// left empty; processes that exit mid-scan are skipped.
func listProcesses(ctx context.Context) ([]ProcInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProcInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		cmdline, _ := p.CmdlineSliceWithContext(ctx)
		status, _ := p.StatusWithContext(ctx)
		out = append(out, ProcInfo{Name: name, Exe: exe, Cmdline: cmdline, Status: status})
	}
	return out, nil
}
