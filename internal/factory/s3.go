package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/logging"
	"github.com/go-logr/logr"

	"github.com/deployd/deploy-agent/internal/config"
	"github.com/deployd/deploy-agent/internal/log"
)

// CreateS3Client builds the snapshot sink client. Without static creds the
// default chain is used, i.e. the instance profile on a fleet host.
func CreateS3Client(ctx context.Context, conf config.S3) (*s3.Client, error) {
	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.Region),
		awsconfig.WithLogger(awsLogger{log.Logger().WithName("aws")}),
		awsconfig.WithClientLogMode(aws.LogRetries),
	}

	if conf.Creds.AccessKeyID != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.Creds.AccessKeyID, conf.Creds.SecretAccessKey, ""),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	ret := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = conf.UsePathStyle

		if conf.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(conf.BaseEndpoint))
		}
	})

	return ret, nil
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}

	return "https://" + endpoint
}

// awsLogger forwards retries and warnings of the sdk, debug output only at V(2).
type awsLogger struct {
	logger logr.Logger
}

func (a awsLogger) Logf(classification logging.Classification, format string, v ...interface{}) {
	switch classification {
	case logging.Warn:
		a.logger.V(0).Info(fmt.Sprintf(format, v...))
	case logging.Debug:
		a.logger.V(2).Info(fmt.Sprintf(format, v...))
	}
}
