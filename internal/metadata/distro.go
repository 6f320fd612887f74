package metadata

import (
	"context"
	"fmt"

	"github.com/acobaugh/osrelease"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// Distro adds the Linux distribution from os-release.
type Distro struct {
	// Read defaults to osrelease.Read.
	Read func() (map[string]string, error)
}

// Enrich implements Enricher.
func (d Distro) Enrich(_ context.Context, e *models.Element) error {
	read := d.Read
	if read == nil {
		read = osrelease.Read
	}
	rel, err := read()
	if err != nil {
		return fmt.Errorf("read os-release: %w", err)
	}

	name := rel["NAME"]
	if name == "" {
		name = rel["ID"]
	}
	e.AddAttribute("distribution_name", name)
	e.AddAttribute("distribution_version", rel["VERSION_ID"])
	if codename := rel["VERSION_CODENAME"]; codename != "" {
		e.AddAttribute("distribution_id", codename)
	}
	return nil
}
