package metadata

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// Defaults for Azure detection.
const (
	DefaultAzureEndpoint = "http://169.254.169.254/metadata/v1/InstanceInfo"
	DefaultProductUUID   = "/sys/devices/virtual/dmi/id/product_uuid"
)

// Azure links the element to its virtual machine when the instance
// metadata service answers.
type Azure struct {
	Endpoint        string
	ProductUUIDPath string
	Client          *http.Client
}

// NewAzure creates an Azure enricher with the default locations.
func NewAzure() *Azure {
	return &Azure{
		Endpoint:        DefaultAzureEndpoint,
		ProductUUIDPath: DefaultProductUUID,
		Client:          &http.Client{},
	}
}

// Enrich implements Enricher.
func (a *Azure) Enrich(ctx context.Context, e *models.Element) error {
	f, err := os.Open(a.ProductUUIDPath)
	if err != nil {
		return fmt.Errorf("azure metadata: %w", err)
	}
	defer f.Close()

	if _, err := getMetadata(ctx, a.Client, a.Endpoint, map[string]string{"Metadata": "true"}); err != nil {
		return fmt.Errorf("azure metadata: %w", err)
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id, err := AzureUUID(scanner.Text())
		if err != nil {
			continue
		}
		e.AddRelation("VirtualMachine:" + id)
		return nil
	}
	return fmt.Errorf("azure metadata: no uuid in %s", a.ProductUUIDPath)
}

// AzureUUID converts the SMBIOS product uuid into the VM id Azure reports:
// the first three groups are stored little-endian and get their bytes
// reversed. The result is lower case.
func AzureUUID(product string) (string, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(product)), "-")
	if len(parts) != 5 || len(parts[0]) != 8 || len(parts[1]) != 4 || len(parts[2]) != 4 {
		return "", fmt.Errorf("malformed uuid %q", product)
	}
	return strings.Join([]string{
		swapBytes(parts[0]),
		swapBytes(parts[1]),
		swapBytes(parts[2]),
		parts[3],
		parts[4],
	}, "-"), nil
}

// swapBytes reverses the order of the hex byte pairs in s.
func swapBytes(s string) string {
	var b strings.Builder
	for i := len(s); i >= 2; i -= 2 {
		b.WriteString(s[i-2 : i])
	}
	return b.String()
}
