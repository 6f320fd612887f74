package metadata

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// Static applies tags and relations given in the configuration. Tags are
// "name:value" strings; the value may itself contain colons.
type Static struct {
	Tags      []string
	Relations []string
}

// Enrich implements Enricher.
func (s Static) Enrich(_ context.Context, e *models.Element) error {
	var result *multierror.Error
	for _, tag := range s.Tags {
		name, value, ok := strings.Cut(tag, ":")
		if !ok {
			result = multierror.Append(result, fmt.Errorf("tag %q is not name:value", tag))
			continue
		}
		e.AddTag(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	for _, r := range s.Relations {
		if r = strings.TrimSpace(r); r != "" {
			e.AddRelation(r)
		}
	}
	return result.ErrorOrNil()
}

// Collectors tags the element with the sorted names of enabled collectors.
type Collectors []string

// Enrich implements Enricher.
func (c Collectors) Enrich(_ context.Context, e *models.Element) error {
	if len(c) == 0 {
		return nil
	}
	names := append([]string(nil), c...)
	sort.Strings(names)
	e.AddTag("n.collectors", strings.Join(names, ", "))
	return nil
}
