package imds_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsimds "github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/pkg/facter"
	"github.com/deployd/deploy-agent/pkg/imds"
)

// Helper

// startMetadataServer serves IMDSv2 tokens and the given metadata paths.
func startMetadataServer(t *testing.T, metadata map[string]string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/latest/api/token" {
			w.Header().Set("X-Aws-Ec2-Metadata-Token-Ttl-Seconds", "21600")
			_, _ = w.Write([]byte("token"))

			return
		}

		value, ok := metadata[strings.TrimPrefix(r.URL.Path, "/latest/meta-data/")]
		if !ok {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write([]byte(value))
	}))

	t.Cleanup(srv.Close)

	return srv
}

func newClient(srv *httptest.Server) *awsimds.Client {
	return awsimds.New(awsimds.Options{
		Endpoint: srv.URL,
		Retryer:  aws.NopRetryer{},
	})
}

// Test

func TestQuery(t *testing.T) {
	srv := startMetadataServer(t, map[string]string{
		"local-hostname":                "ip-10-1-2-3.ec2.internal",
		"local-ipv4":                    "10.1.2.3",
		"instance-id":                   "i-abc",
		"placement/availability-zone":   "us-east-1a",
		"identity-credentials/ec2/info": `{"Code":"Success","AccountId":"123456789012"}`,
		"tags/instance":                 "Name\nteam",
		"tags/instance/Name":            "web-1",
		"tags/instance/team":            "deploy",
	})

	querier := imds.NewQuerier(newClient(srv))

	res, err := querier.Query(context.Background(), []string{
		facter.FactHostname,
		facter.FactLocalIPv4,
		facter.FactInstanceID,
		facter.FactDeployServiceCombined,
	}, false)
	require.NoError(t, err)

	assert.Equal(t, facter.Result{
		facter.FactHostname:   "ip-10-1-2-3.ec2.internal",
		facter.FactLocalIPv4:  "10.1.2.3",
		facter.FactInstanceID: "i-abc",
	}, res, "deploy service facts are not served by imds")

	res, err = querier.Query(context.Background(), []string{
		facter.FactMetadataAZ,
		facter.FactTags,
		facter.FactPlacementAZ,
		facter.FactIdentityCredentials,
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1a", res.String(facter.FactMetadataAZ))
	assert.Equal(t, "us-east-1a", res.String(facter.FactPlacementAZ))
	assert.Equal(t, map[string]string{"Name": "web-1", "team": "deploy"}, res.StringMap(facter.FactTags))
	assert.Contains(t, res.String(facter.FactIdentityCredentials), "123456789012")
}

func TestQueryMissingMetadata(t *testing.T) {
	srv := startMetadataServer(t, map[string]string{
		"local-ipv4": "10.1.2.3",
	})

	querier := imds.NewQuerier(newClient(srv))

	res, err := querier.Query(context.Background(), []string{facter.FactInstanceID, facter.FactTags, facter.FactLocalIPv4}, false)
	require.NoError(t, err)

	assert.Equal(t, facter.Result{
		facter.FactLocalIPv4: "10.1.2.3",
		facter.FactTags:      map[string]any{},
	}, res)
}

type failingClient struct{}

func (failingClient) GetMetadata(ctx context.Context, params *awsimds.GetMetadataInput, optFns ...func(*awsimds.Options)) (*awsimds.GetMetadataOutput, error) {
	return nil, errors.New("dial tcp 169.254.169.254:80: connect: no route to host")
}

func localHost() (string, error) {
	return "web-1", nil
}

func localIPv4() (string, error) {
	return "192.168.1.10", nil
}

func TestQueryUnreachable(t *testing.T) {
	t.Parallel()

	querier := imds.NewQuerier(failingClient{}).WithLocalHost(localHost, localIPv4)

	res, err := querier.Query(context.Background(), hostinfo.IdentityGroup.Fields, false)
	require.NoError(t, err)

	assert.Equal(t, facter.Result{
		facter.FactHostname:  "web-1",
		facter.FactLocalIPv4: "192.168.1.10",
	}, res, "facts without local fallback are left out")

	res, err = querier.Query(context.Background(), hostinfo.PlacementGroup.Fields, true)
	require.NoError(t, err)

	assert.Empty(t, res)
}

func TestQueryLocalHostFailure(t *testing.T) {
	t.Parallel()

	broken := func() (string, error) {
		return "", errors.New("no interface")
	}

	querier := imds.NewQuerier(failingClient{}).WithLocalHost(localHost, broken)

	_, err := querier.Query(context.Background(), hostinfo.IdentityGroup.Fields, false)
	require.ErrorIs(t, err, facter.ErrProviderUnavailable)
}

func TestResolveWithoutMetadata(t *testing.T) {
	t.Parallel()

	querier := imds.NewQuerier(failingClient{}).WithLocalHost(localHost, localIPv4)
	resolver := hostinfo.NewResolver(querier, hostinfo.Options{Fleet: true})

	info := hostinfo.NewHostInfo(map[string]string{}, "us-east-1")

	ok, err := resolver.Resolve(context.Background(), info)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, "web-1", info.Hostname)
	assert.Equal(t, "192.168.1.10", info.IP)
	assert.Empty(t, info.InstanceID)
	assert.Equal(t, "us-east-1", info.AvailabilityZone, "placeholder is kept")
}
