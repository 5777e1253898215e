package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/deployd/deploy-agent/internal/common"
	"github.com/deployd/deploy-agent/internal/factory"
	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/internal/log"
	"github.com/deployd/deploy-agent/internal/refresh"
)

const shutdownTimeout = 5 * time.Second

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Publish the host info, then again on every refresh request",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.Logger()

		// Set max procs based on cpu limits
		err := common.SetMaxProcs()
		if err != nil {
			return err
		}

		// Set max memory
		err = common.SetMemLimit()
		if err != nil {
			return err
		}

		// Listen to sigterm and interrupt signals
		ctx := common.SetupSignalHandler(cmd.Context())

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		resolver, err := factory.CreateResolver(*conf, registry, logger)
		if err != nil {
			return err
		}

		publisher, closers, err := createPublisher(ctx, registry)
		defer func() { closeAll(closers) }()

		if err != nil {
			return err
		}

		// Initial report, its hostname identifies this host in refresh requests
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
			logger.Error(err, "Initial publish failed, waiting for a refresh request")
		}

		// Refresh consumer, one group per host
		consumer, err := factory.CreateKafkaConsumer(conf.Kafka, info.Hostname)
		if err != nil {
			return err
		}

		closers = append(closers, func(context.Context) error {
			return consumer.Close()
		})

		handler, err := refresh.NewHandler(info.Hostname, resolver, publisher, registry, "deployagent")
		if err != nil {
			return err
		}

		runner := refresh.NewRunner(consumer, conf.Kafka.Refresh.Topic, handler).WithLogger(logger)

		server := factory.CreateMetricsServer(conf.Metrics.Port, registry)

		group, ctx := errgroup.WithContext(ctx)

		group.Go(func() error {
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}

			return err
		})

		group.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return server.Shutdown(shutdownCtx)
		})

		group.Go(func() error {
			err := runner.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})

		err = group.Wait()

		logger.V(2).Info("Watch stopped")

		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
