// Package metadata fills in the element attributes, tags and relations that
// accompany every payload. Every source is best effort: a failing lookup
// leaves the element as it was and reports an error the caller may ignore.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// Enricher adds metadata to an element.
type Enricher interface {
	Enrich(ctx context.Context, e *models.Element) error
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, e *models.Element) error

// Enrich calls f.
func (f EnricherFunc) Enrich(ctx context.Context, e *models.Element) error {
	return f(ctx, e)
}

// Chain runs every enricher in order, even after a failure, and returns the
// combined errors.
type Chain []Enricher

// Enrich implements Enricher.
func (c Chain) Enrich(ctx context.Context, e *models.Element) error {
	var result *multierror.Error
	for _, en := range c {
		if err := en.Enrich(ctx, e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// cloudTimeout bounds link-local metadata requests.
const cloudTimeout = time.Second

// getMetadata issues a GET against a link-local metadata service.
func getMetadata(ctx context.Context, client *http.Client, url string, header map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cloudTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64*1024))
}
