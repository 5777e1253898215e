package hostinfo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/deployd/deploy-agent/pkg/facter"
	"github.com/deployd/deploy-agent/pkg/security"
)

var ErrPrecondition = errors.New("host info not initialized, use NewHostInfo")

type Options struct {
	// Fleet enables FleetOnly groups.
	Fleet bool
	// KeepOnRetryFailure leaves the retried facts unresolved when the no-cache
	// query fails instead of aborting the resolution.
	KeepOnRetryFailure bool
}

type Resolver struct {
	querier Querier
	groups  []AttributeGroup
	options Options

	normandie StatusChecker
	knox      StatusChecker

	metrics *Metrics
	logger  *logr.Logger
}

func NewResolver(querier Querier, options Options) *Resolver {
	return &Resolver{
		querier: querier,
		groups:  DefaultGroups,
		options: options,
	}
}

// WithStatusCheckers sets the security checks. A nil checker leaves its status unset.
func (r *Resolver) WithStatusCheckers(normandie, knox StatusChecker) *Resolver {
	r.normandie = normandie
	r.knox = knox

	return r
}

func (r *Resolver) WithGroups(groups ...AttributeGroup) *Resolver {
	r.groups = groups

	return r
}

func (r *Resolver) WithMetrics(metrics *Metrics) *Resolver {
	r.metrics = metrics

	return r
}

func (r *Resolver) WithLogger(logger logr.Logger) *Resolver {
	r.logger = &logger

	return r
}

// Resolve fills info and reports whether hostname and ip were resolved.
// Inventory failures are returned as errors, security check failures never are.
func (r *Resolver) Resolve(ctx context.Context, info *HostInfo) (bool, error) {
	if info == nil || !info.initialized {
		return false, ErrPrecondition
	}

	facts := facter.Result{}

	for _, group := range r.groups {
		if group.FleetOnly && !r.options.Fleet {
			r.logInfo(2, "Skipping attribute group outside of the fleet", "group", group.Name)

			continue
		}

		res, err := r.resolveGroup(ctx, group)
		if err != nil {
			r.metrics.observeResolution(resolutionError)

			return false, err
		}

		for field, value := range res {
			facts[field] = value
		}
	}

	info.apply(facts)

	if r.normandie != nil {
		info.NormandieStatus = r.normandie.Check(ctx)
		r.metrics.observeStatus("normandie", info.NormandieStatus)
	}

	if r.knox != nil {
		info.KnoxStatus = r.knox.Check(ctx)
		r.metrics.observeStatus("knox", info.KnoxStatus)
	}

	if !info.Resolved() {
		r.logInfo(0, "Failed to resolve mandatory host info", "hostname", info.Hostname, "ip", info.IP)
		r.metrics.observeResolution(resolutionUnresolved)

		return false, nil
	}

	r.logInfo(1, "Host info resolved",
		"hostname", info.Hostname,
		"ip", info.IP,
		"instanceId", info.InstanceID,
		"availabilityZone", info.AvailabilityZone,
		"normandie", info.NormandieStatus,
		"knox", info.KnoxStatus,
	)
	r.metrics.observeResolution(resolutionSuccess)

	return true, nil
}

func (r *Resolver) resolveGroup(ctx context.Context, group AttributeGroup) (facter.Result, error) {
	res, err := r.querier.Query(ctx, group.Fields, false)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s facts: %w", group.Name, err)
	}

	if res == nil {
		res = facter.Result{}
	}

	if !res.Empty(group.Trigger...) {
		return res, nil
	}

	r.logInfo(1, "Facts missing from cached inventory, retrying without cache", "group", group.Name, "fields", group.Retry)
	r.metrics.observeRetry(group.Name)

	retry, err := r.querier.Query(ctx, group.Retry, true)
	if err != nil {
		if !r.options.KeepOnRetryFailure {
			return nil, fmt.Errorf("failed to query %s facts without cache: %w", group.Name, err)
		}

		r.logError(err, "No-cache query failed, leaving facts unresolved", "group", group.Name)

		return res, nil
	}

	res.Merge(retry, group.Retry...)

	if res.Empty(group.Trigger...) {
		r.logInfo(1, "Facts still missing after no-cache query", "group", group.Name, "fields", group.Trigger)
	}

	return res, nil
}

func (r *Resolver) logInfo(level int, msg string, keysAndValues ...any) {
	if r.logger == nil {
		return
	}

	r.logger.V(level).Info(msg, keysAndValues...)
}

func (r *Resolver) logError(err error, msg string, keysAndValues ...any) {
	if r.logger == nil {
		return
	}

	r.logger.Error(err, msg, keysAndValues...)
}

var _ StatusChecker = security.Checker{}
