// Package imds answers inventory queries from the EC2 instance metadata
// service, for hosts where facter is not used.
package imds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/go-logr/logr"

	"github.com/deployd/deploy-agent/pkg/facter"
)

const tagsPath = "tags/instance"

// metadata paths answering each supported fact
var paths = map[string]string{
	facter.FactHostname:            "local-hostname",
	facter.FactLocalIPv4:           "local-ipv4",
	facter.FactInstanceID:          "instance-id",
	facter.FactPlacementAZ:         "placement/availability-zone",
	facter.FactMetadataAZ:          "placement/availability-zone",
	facter.FactIdentityCredentials: "identity-credentials/ec2/info",
}

type MetadataClient interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

// Querier implements the inventory query contract on top of IMDS. Metadata is
// always read live so noCache has no effect. Facts IMDS doesn't serve (deploy
// service facts) are left out of the result. When IMDS can't be reached,
// hostname and ip come from the local host and the other facts are left out.
type Querier struct {
	client MetadataClient

	// local host fallback for hostname and ip when IMDS can't be reached
	hostname  func() (string, error)
	localIPv4 func() (string, error)

	logger *logr.Logger
}

func NewQuerier(client MetadataClient) *Querier {
	return &Querier{
		client:    client,
		hostname:  os.Hostname,
		localIPv4: firstLocalIPv4,
	}
}

// NewFromEndpoint creates the IMDS client, an empty endpoint meaning the default one.
func NewFromEndpoint(endpoint string) *Querier {
	return NewQuerier(imds.New(imds.Options{Endpoint: endpoint}))
}

// WithLocalHost replaces the functions reading hostname and ip from the local
// host when IMDS can't be reached.
func (q *Querier) WithLocalHost(hostname, localIPv4 func() (string, error)) *Querier {
	q.hostname = hostname
	q.localIPv4 = localIPv4

	return q
}

func (q *Querier) WithLogger(logger logr.Logger) *Querier {
	q.logger = &logger

	return q
}

func (q *Querier) Query(ctx context.Context, fields []string, noCache bool) (facter.Result, error) {
	ret := facter.Result{}

	for _, field := range fields {
		value, found, err := q.lookup(ctx, field)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", facter.ErrProviderUnavailable, err)
		}

		if found {
			ret[field] = value
		}
	}

	return ret, nil
}

func (q *Querier) lookup(ctx context.Context, field string) (any, bool, error) {
	if field == facter.FactTags {
		tags, err := q.tags(ctx)
		if err != nil {
			q.logInfo(1, "Instance metadata unavailable, leaving tags unresolved", "reason", err.Error())

			return nil, false, nil
		}

		return tags, true, nil
	}

	path, supported := paths[field]
	if !supported {
		return nil, false, nil
	}

	value, found, err := q.get(ctx, path)
	if err == nil {
		return value, found, nil
	}

	fallback := q.localFallback(field)
	if fallback == nil {
		q.logInfo(1, "Instance metadata unavailable, leaving fact unresolved", "field", field, "reason", err.Error())

		return nil, false, nil
	}

	q.logInfo(1, "Instance metadata unavailable, using local host", "field", field, "reason", err.Error())

	value, err = fallback()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s from local host: %w", field, err)
	}

	return value, value != "", nil
}

func (q *Querier) localFallback(field string) func() (string, error) {
	switch field {
	case facter.FactHostname:
		return q.hostname
	case facter.FactLocalIPv4:
		return q.localIPv4
	default:
		return nil
	}
}

// tags requires instance metadata tags to be enabled; without them tags are
// simply empty.
func (q *Querier) tags(ctx context.Context) (map[string]any, error) {
	ret := make(map[string]any)

	keys, found, err := q.get(ctx, tagsPath)
	if err != nil || !found {
		return ret, err
	}

	for _, key := range strings.Fields(keys) {
		value, _, err := q.get(ctx, tagsPath+"/"+key)
		if err != nil {
			return nil, err
		}

		ret[key] = value
	}

	return ret, nil
}

// get returns found=false for paths IMDS doesn't serve on this instance.
func (q *Querier) get(ctx context.Context, path string) (string, bool, error) {
	out, err := q.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		var respErr interface{ HTTPStatusCode() int }
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to get metadata %s: %w", path, err)
	}
	defer out.Content.Close()

	b, err := io.ReadAll(out.Content)
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %s: %w", path, err)
	}

	return strings.TrimSpace(string(b)), true, nil
}

func (q *Querier) logInfo(level int, msg string, keysAndValues ...any) {
	if q.logger == nil {
		return
	}

	q.logger.V(level).Info(msg, keysAndValues...)
}

func firstLocalIPv4() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}

		ip := ipNet.IP.To4()
		if ip != nil {
			return ip.String(), nil
		}
	}

	return "", nil
}
