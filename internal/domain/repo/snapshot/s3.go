package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/common/version"

	"github.com/deployd/deploy-agent/internal/common"
	"github.com/deployd/deploy-agent/internal/hostinfo"
)

const (
	sinkName = "s3"

	keyTemplate = "<prefix>/<year>/<month>/<day>/<hostname>.json"
)

var ErrMissingHostname = errors.New("missing hostname")

type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer stores one snapshot per host and per day.
type S3Writer struct {
	client ObjectPutter

	bucket      string
	prefix      string
	environment string

	clock clockwork.Clock
}

func NewS3Writer(client ObjectPutter, bucket string, prefix string, environment string) S3Writer {
	return S3Writer{
		client:      client,
		bucket:      bucket,
		prefix:      strings.TrimSuffix(prefix, "/"),
		environment: environment,
		clock:       clockwork.NewRealClock(),
	}
}

func (w S3Writer) WithClock(clock clockwork.Clock) S3Writer {
	w.clock = clock

	return w
}

func (w S3Writer) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	return w.WriteSnapshot(ctx, info)
}

func (w S3Writer) WriteSnapshot(ctx context.Context, info hostinfo.HostInfo) error {
	if info.Hostname == "" {
		return common.NewSinkError(ErrMissingHostname, sinkName, "invalid host info")
	}

	now := w.clock.Now().UTC()

	b, err := json.Marshal(w.createSnapshot(info, now))
	if err != nil {
		return common.NewSinkError(err, sinkName, "failed to marshal snapshot")
	}

	key := w.computeObjectKey(info.Hostname, now)

	params := &s3.PutObjectInput{
		Bucket: &w.bucket,
		Key:    &key,
		Body:   bytes.NewReader(b),
	}

	_, err = w.client.PutObject(ctx, params)
	if err != nil {
		if isRetryable(err) {
			return common.NewRetryableSinkError(err, sinkName, "failed to write %s", key)
		}

		return common.NewSinkError(err, sinkName, "failed to write %s", key)
	}

	return nil
}

func (w S3Writer) createSnapshot(info hostinfo.HostInfo, now time.Time) Snapshot {
	return Snapshot{
		Context: Context{
			Component: Component{
				Version:  version.Version,
				Branch:   version.Branch,
				Revision: version.Revision,
			},
			Environment: w.environment,
			Time:        now,
		},
		HostInfo: info,
	}
}

func (w S3Writer) computeObjectKey(hostname string, now time.Time) string {
	template := strings.NewReplacer(
		"<prefix>", w.prefix,
		"<year>", fmt.Sprintf("%04d", now.Year()),
		"<month>", fmt.Sprintf("%02d", now.Month()),
		"<day>", fmt.Sprintf("%02d", now.Day()),
		"<hostname>", hostname,
	)

	return strings.TrimPrefix(template.Replace(keyTemplate), "/")
}

// Throttling and server side errors are worth another attempt, client errors are not.
func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() == smithy.FaultServer || apiErr.ErrorCode() == "SlowDown"
	}

	return errors.Is(err, context.DeadlineExceeded)
}
