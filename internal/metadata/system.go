package metadata

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// System describes the host: platform, agent version, cpu count, memory,
// boot time and kernel release.
type System struct {
	Version string
}

// Enrich implements Enricher.
func (s System) Enrich(ctx context.Context, e *models.Element) error {
	var result *multierror.Error

	e.AddAttribute("platform", platformName(runtime.GOOS))
	e.AddAttribute("agent", s.Version)

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		e.AddAttribute("cpus", strconv.Itoa(n))
	} else {
		result = multierror.Append(result, fmt.Errorf("cpu count: %w", err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		e.AddAttribute("ram", humanize.IBytes(vm.Total))
		e.AddAttribute("ram bytes", strconv.FormatUint(vm.Total, 10))
	} else {
		result = multierror.Append(result, fmt.Errorf("memory: %w", err))
	}

	if boot, err := host.BootTimeWithContext(ctx); err == nil {
		e.AddAttribute("boottime", time.Unix(int64(boot), 0).Format("2006-01-02 15:04:05"))
	} else {
		result = multierror.Append(result, fmt.Errorf("boot time: %w", err))
	}

	if release, err := kernelRelease(); err == nil {
		e.AddAttribute("kernel", release)
	}

	return result.ErrorOrNil()
}

// platformName capitalises GOOS the way uname reports it ("linux" -> "Linux").
func platformName(goos string) string {
	if goos == "" {
		return goos
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}
