package metadata

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// DefaultAWSEndpoint is the EC2 instance identity document.
const DefaultAWSEndpoint = "http://169.254.169.254/latest/dynamic/instance-identity/document"

// AWS adds the EC2 instance identity document as attributes and links the
// element to its instance. It keeps trying on every call until one lookup
// succeeds, then does nothing.
type AWS struct {
	Endpoint string
	Client   *http.Client

	done atomic.Bool
}

// NewAWS creates an AWS enricher for the default endpoint.
func NewAWS() *AWS {
	return &AWS{Endpoint: DefaultAWSEndpoint, Client: &http.Client{}}
}

// Done reports whether the identity document has been applied.
func (a *AWS) Done() bool {
	return a.done.Load()
}

// Enrich implements Enricher.
func (a *AWS) Enrich(ctx context.Context, e *models.Element) error {
	if a.done.Load() {
		return nil
	}
	body, err := getMetadata(ctx, a.Client, a.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("aws metadata: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("aws metadata: decode identity document: %w", err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("aws metadata: empty identity document")
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var instanceID, region, accountID string
	for _, k := range keys {
		v := attributeValue(doc[k])
		if v == "" {
			continue
		}
		e.AddAttribute(k, v)
		switch strings.ToLower(k) {
		case "instanceid":
			instanceID = v
		case "region":
			region = v
		case "accountid":
			accountID = v
		}
	}

	if instanceID != "" && region != "" {
		e.AddRelation(region + ":" + instanceID)
		if accountID != "" {
			e.AddRelation(accountID + ":EC2:" + region + ":" + instanceID)
		}
	}
	a.done.Store(true)
	return nil
}

// attributeValue renders a JSON value as an attribute; lists are joined
// with ", " and nulls are dropped.
func attributeValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := attributeValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
