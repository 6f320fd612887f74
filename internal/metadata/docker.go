package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// VersionClient is the part of the Docker client Docker needs.
type VersionClient interface {
	ServerVersion(ctx context.Context) (types.Version, error)
}

// Docker adds docker_* attributes describing the local daemon.
type Docker struct {
	Client VersionClient
}

// Enrich implements Enricher.
func (d Docker) Enrich(ctx context.Context, e *models.Element) error {
	if d.Client == nil {
		return nil
	}
	v, err := d.Client.ServerVersion(ctx)
	if err != nil {
		return fmt.Errorf("docker version: %w", err)
	}

	attrs := []struct{ k, v string }{
		{"Version", v.Version},
		{"ApiVersion", v.APIVersion},
		{"MinAPIVersion", v.MinAPIVersion},
		{"GitCommit", v.GitCommit},
		{"GoVersion", v.GoVersion},
		{"Os", v.Os},
		{"Arch", v.Arch},
		{"KernelVersion", v.KernelVersion},
		{"BuildTime", v.BuildTime},
	}
	for _, a := range attrs {
		if a.v != "" {
			e.AddAttribute("docker_"+a.k, a.v)
		}
	}
	if v.Experimental {
		e.AddAttribute("docker_Experimental", strconv.FormatBool(v.Experimental))
	}
	return nil
}
