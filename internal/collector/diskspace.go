// Disk space collector: per-mount byte and inode usage of local filesystems.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// pseudoFSTypes contains filesystem types that should be excluded from disk metrics.
// These are virtual/system filesystems and network/remote filesystems that don't
// represent local storage devices.
var pseudoFSTypes = map[string]bool{
	// Virtual / system filesystems
	"devfs":         true,
	"autofs":        true,
	"nullfs":        true,
	"tmpfs":         true,
	"sysfs":         true,
	"proc":          true,
	"procfs":        true,
	"devtmpfs":      true,
	"cgroup":        true,
	"cgroup2":       true,
	"overlay":       true,
	"squashfs":      true,
	"fuse.snapfuse": true,
	"nsfs":          true,
	"pstore":        true,
	"debugfs":       true,
	"tracefs":       true,
	"securityfs":    true,
	"configfs":      true,
	"fusectl":       true,
	"mqueue":        true,
	"hugetlbfs":     true,
	"binfmt_misc":   true,
	"efivarfs":      true,
	"bpf":           true,
	"ramfs":         true,

	// Network / remote filesystems
	"nfs":            true,
	"nfs4":           true,
	"cifs":           true,
	"smbfs":          true,
	"fuse.sshfs":     true,
	"fuse.rclone":    true,
	"9p":             true,
	"afs":            true,
	"ncpfs":          true,
	"glusterfs":      true,
	"lustre":         true,
	"ceph":           true,
	"fuse.ceph":      true,
	"gpfs":           true,
	"pvfs2":          true,
	"fuse.s3fs":      true,
	"fuse.gcsfuse":   true,
	"fuse.blobfuse":  true,
	"davfs2":         true,
}

// isSystemMount returns true for mount points that are macOS system volumes
// or other OS-internal paths that shouldn't be shown to users.
func isSystemMount(mount string) bool {
	systemPrefixes := []string{
		"/System/Volumes/",
		"/private/var/vm",
	}
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// DiskSpaceCollector collects filesystem usage per mount point.
type DiskSpaceCollector struct {
	logger *zap.Logger
}

// NewDiskSpaceCollector creates a new disk space collector.
func NewDiskSpaceCollector(logger *zap.Logger) *DiskSpaceCollector {
	return &DiskSpaceCollector{logger: logger}
}

// Name returns the collector identifier.
func (c *DiskSpaceCollector) Name() string { return "diskspace" }

// Collect gathers usage for all mounted local partitions.
// Inaccessible partitions are silently skipped.
func (c *DiskSpaceCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	s := newSampler()
	for _, p := range partitions {
		// Skip pseudo/network filesystems
		if pseudoFSTypes[p.Fstype] {
			c.logger.Debug("Skipping pseudo/network filesystem",
				zap.String("mount", p.Mountpoint),
				zap.String("fstype", p.Fstype))
			continue
		}
		// Skip macOS system mount points
		if isSystemMount(p.Mountpoint) {
			continue
		}

		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue // Skip inaccessible partitions
		}
		// Skip partitions with 0 total bytes (some virtual mounts report 0 size)
		if usage.Total == 0 {
			continue
		}

		prefix := "diskspace." + mountName(p.Mountpoint) + "."
		s.gauge(prefix+"byte_used", byteCount(usage.Used))
		s.gauge(prefix+"byte_free", byteCount(usage.Free))
		s.gauge(prefix+"byte_total", byteCount(usage.Total))
		s.gauge(prefix+"byte_percentused", models.Float(usage.UsedPercent))
		if usage.InodesTotal > 0 {
			s.gauge(prefix+"inodes_used", byteCount(usage.InodesUsed))
			s.gauge(prefix+"inodes_free", byteCount(usage.InodesFree))
		}
	}
	return s.samples, nil
}

// mountName turns a mount point into a path segment: "/" is "root",
// "/var/lib" is "_var_lib" and "C:\" is "C".
func mountName(mount string) string {
	if mount == "/" {
		return "root"
	}
	name := strings.TrimRight(mount, "\\")
	name = strings.NewReplacer("/", "_", "\\", "_", ".", "_", ":", "", " ", "_").Replace(name)
	if name == "" {
		return "root"
	}
	return name
}

// IsAvailable returns true: disk metrics are available on all platforms.
func (c *DiskSpaceCollector) IsAvailable() bool { return true }
