package factory

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deployd/deploy-agent/internal/config"
	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/pkg/facter"
	"github.com/deployd/deploy-agent/pkg/imds"
	"github.com/deployd/deploy-agent/pkg/security"
)

const metricsNamespace = "deployagent"

func CreateQuerier(conf config.Config, logger logr.Logger) hostinfo.Querier {
	if !conf.Inventory.UseFacter {
		return imds.NewFromEndpoint(conf.IMDS.Endpoint).WithLogger(logger)
	}

	return facter.NewGateway(conf.Inventory.FacterBin, facter.ProcessInvoker{}).WithLogger(logger)
}

func CreateResolver(conf config.Config, registry prometheus.Registerer, logger logr.Logger) (*hostinfo.Resolver, error) {
	options := hostinfo.Options{
		Fleet:              conf.Environment.Fleet,
		KeepOnRetryFailure: conf.Inventory.RetryFailure == config.RetryFailureKeep,
	}

	normandie, err := createStatusChecker("normandie", conf.Security.Normandie, logger)
	if err != nil {
		return nil, err
	}

	knox, err := createStatusChecker("knox", conf.Security.Knox, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := hostinfo.NewMetrics(registry, metricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver metrics: %w", err)
	}

	ret := hostinfo.NewResolver(CreateQuerier(conf, logger), options).
		WithStatusCheckers(normandie, knox).
		WithMetrics(metrics).
		WithLogger(logger)

	return ret, nil
}

func createStatusChecker(name string, conf config.StatusCheck, logger logr.Logger) (hostinfo.StatusChecker, error) {
	if !conf.Enabled {
		return nil, nil
	}

	ret, err := security.NewCheckerFromConfig(name, conf.Command, conf.Pattern, facter.ProcessInvoker{})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s status checker: %w", name, err)
	}

	return ret.WithLogger(logger), nil
}
