package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/diamond-agent/internal/models"
)

func TestAzureUUID(t *testing.T) {
	got, err := AzureUUID("3A4B2C1D-6F5E-8A7B-9C0D-112233445566\n")
	require.NoError(t, err)
	assert.Equal(t, "1d2c4b3a-5e6f-7b8a-9c0d-112233445566", got)

	_, err = AzureUUID("not-a-uuid")
	assert.Error(t, err)
}

func TestAWSIdentityDocument(t *testing.T) {
	defer gock.Off()
	client := &http.Client{}
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	gock.New("http://169.254.169.254").
		Get("/latest/dynamic/instance-identity/document").
		Reply(200).
		JSON(map[string]interface{}{
			"instanceId":         "i-0abc",
			"region":             "us-east-1",
			"accountId":          "123456789012",
			"billingProducts":    nil,
			"devpayProductCodes": []string{"a", "b"},
		})

	a := &AWS{Endpoint: DefaultAWSEndpoint, Client: client}
	e := models.NewElement("web-01", "")
	require.NoError(t, a.Enrich(context.Background(), e))

	v, ok := e.Attribute("instanceId")
	assert.True(t, ok)
	assert.Equal(t, "i-0abc", v)
	v, _ = e.Attribute("devpayProductCodes")
	assert.Equal(t, "a, b", v)
	_, ok = e.Attribute("billingProducts")
	assert.False(t, ok)

	require.Len(t, e.Relations, 2)
	assert.Equal(t, "us-east-1:i-0abc", e.Relations[0].FQN)
	assert.Equal(t, "123456789012:EC2:us-east-1:i-0abc", e.Relations[1].FQN)
	assert.True(t, a.Done())

	// Once applied, no further requests are made.
	require.NoError(t, a.Enrich(context.Background(), e))
	assert.True(t, gock.IsDone())
}

func TestAWSRetriesUntilSuccess(t *testing.T) {
	defer gock.Off()
	client := &http.Client{}
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	gock.New("http://169.254.169.254").Get("/latest/dynamic/instance-identity/document").Reply(404)
	gock.New("http://169.254.169.254").
		Get("/latest/dynamic/instance-identity/document").
		Reply(200).
		JSON(map[string]string{"instanceId": "i-1", "region": "eu-west-1"})

	a := &AWS{Endpoint: DefaultAWSEndpoint, Client: client}
	e := models.NewElement("web-01", "")

	assert.Error(t, a.Enrich(context.Background(), e))
	assert.False(t, a.Done())
	assert.Empty(t, e.Relations)

	require.NoError(t, a.Enrich(context.Background(), e))
	assert.True(t, a.Done())
	require.Len(t, e.Relations, 1)
	assert.Equal(t, "eu-west-1:i-1", e.Relations[0].FQN)
}

func TestAzureRelation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Metadata") != "true" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"ID":"_vm"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "product_uuid")
	require.NoError(t, os.WriteFile(path, []byte("3A4B2C1D-6F5E-8A7B-9C0D-112233445566\n"), 0600))

	a := &Azure{Endpoint: srv.URL, ProductUUIDPath: path, Client: srv.Client()}
	e := models.NewElement("web-01", "")
	require.NoError(t, a.Enrich(context.Background(), e))
	require.Len(t, e.Relations, 1)
	assert.Equal(t, "VirtualMachine:1d2c4b3a-5e6f-7b8a-9c0d-112233445566", e.Relations[0].FQN)
}

func TestAzureMissingUUIDFile(t *testing.T) {
	a := &Azure{Endpoint: "http://127.0.0.1:1", ProductUUIDPath: filepath.Join(t.TempDir(), "missing"), Client: &http.Client{}}
	e := models.NewElement("web-01", "")
	assert.Error(t, a.Enrich(context.Background(), e))
	assert.Empty(t, e.Relations)
}

func TestStatic(t *testing.T) {
	e := models.NewElement("web-01", "")
	err := Static{
		Tags:      []string{"env: prod", "url:http://x", "broken"},
		Relations: []string{" lb-01 ", ""},
	}.Enrich(context.Background(), e)

	assert.Error(t, err, "malformed tag is reported")
	v, _ := e.Tag("env")
	assert.Equal(t, "prod", v)
	v, _ = e.Tag("url")
	assert.Equal(t, "http://x", v)
	require.Len(t, e.Relations, 1)
	assert.Equal(t, "lb-01", e.Relations[0].FQN)
}

func TestCollectors(t *testing.T) {
	e := models.NewElement("web-01", "")
	require.NoError(t, Collectors{"network", "cpu", "memory"}.Enrich(context.Background(), e))
	v, _ := e.Tag("n.collectors")
	assert.Equal(t, "cpu, memory, network", v)
}

func TestDistro(t *testing.T) {
	e := models.NewElement("web-01", "")
	d := Distro{Read: func() (map[string]string, error) {
		return map[string]string{"NAME": "Ubuntu", "VERSION_ID": "22.04", "VERSION_CODENAME": "jammy"}, nil
	}}
	require.NoError(t, d.Enrich(context.Background(), e))
	v, _ := e.Attribute("distribution_name")
	assert.Equal(t, "Ubuntu", v)
	v, _ = e.Attribute("distribution_id")
	assert.Equal(t, "jammy", v)
}

type fakeDocker struct {
	v   types.Version
	err error
}

func (f fakeDocker) ServerVersion(context.Context) (types.Version, error) {
	return f.v, f.err
}

func TestDocker(t *testing.T) {
	e := models.NewElement("web-01", "")
	d := Docker{Client: fakeDocker{v: types.Version{Version: "25.0.5", APIVersion: "1.44", Os: "linux"}}}
	require.NoError(t, d.Enrich(context.Background(), e))
	v, _ := e.Attribute("docker_Version")
	assert.Equal(t, "25.0.5", v)
	v, _ = e.Attribute("docker_ApiVersion")
	assert.Equal(t, "1.44", v)
	_, ok := e.Attribute("docker_GitCommit")
	assert.False(t, ok)
}

func TestChainRunsAllAndCombinesErrors(t *testing.T) {
	e := models.NewElement("web-01", "")
	chain := Chain{
		Docker{Client: fakeDocker{err: errors.New("daemon down")}},
		Static{Tags: []string{"role:web"}},
		EnricherFunc(func(context.Context, *models.Element) error { return errors.New("second failure") }),
	}

	err := chain.Enrich(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon down")
	assert.Contains(t, err.Error(), "second failure")

	v, ok := e.Tag("role")
	assert.True(t, ok, "enrichers after a failure still run")
	assert.Equal(t, "web", v)
}

func TestSystem(t *testing.T) {
	e := models.NewElement("web-01", "")
	_ = System{Version: "1.2.3"}.Enrich(context.Background(), e)
	v, ok := e.Attribute("agent")
	assert.True(t, ok)
	assert.Equal(t, "1.2.3", v)
	_, ok = e.Attribute("platform")
	assert.True(t, ok)
}
