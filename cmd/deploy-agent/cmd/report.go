package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/deployd/deploy-agent/internal/common"
	"github.com/deployd/deploy-agent/internal/factory"
	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/internal/log"
	"github.com/deployd/deploy-agent/internal/publish"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Resolve the host info once and publish it to the enabled sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := common.SetupSignalHandler(cmd.Context())

		registry := prometheus.NewRegistry()

		resolver, err := factory.CreateResolver(*conf, registry, log.Logger())
		if err != nil {
			return err
		}

		publisher, closers, err := createPublisher(ctx, registry)
		defer func() { closeAll(closers) }()

		if err != nil {
			return err
		}

		return resolveAndPublish(ctx, resolver, publisher)
	},
}

func createPublisher(ctx context.Context, registry prometheus.Registerer) (publish.Publisher, []common.CloseFunc, error) {
	sinks, closers, err := factory.CreatePublisher(ctx, *conf)
	if err != nil {
		return nil, closers, fmt.Errorf("failed to create sinks: %w", err)
	}

	ret, err := factory.DecoratePublisher(sinks, conf.Publish, registry)
	if err != nil {
		return nil, closers, err
	}

	return ret, closers, nil
}

func resolveAndPublish(ctx context.Context, resolver *hostinfo.Resolver, publisher publish.Publisher) error {
	info := hostinfo.NewHostInfo(map[string]string{}, "")

	resolved, err := resolver.Resolve(ctx, info)
	if err != nil {
		return fmt.Errorf("failed to resolve host info: %w", err)
	}

	if !resolved {
		return ErrUnresolved
	}

	err = publisher.Publish(ctx, *info)
	if err != nil {
		return fmt.Errorf("failed to publish host info: %w", err)
	}

	log.Logger().V(0).Info("Host info published", "hostname", info.Hostname)

	return nil
}

func closeAll(closers []common.CloseFunc) {
	err := common.CloseAll(context.Background(), closers)
	if err != nil {
		log.Logger().Error(err, "failed to release resources")
	}
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
