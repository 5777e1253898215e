package host

import (
	"context"
	"encoding/json"
	"errors"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/valkey-io/valkey-go"

	"github.com/deployd/deploy-agent/internal/common"
	"github.com/deployd/deploy-agent/internal/domain/repo"
	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/internal/publish"
)

const (
	sinkName = "valkey"

	keyPrefix = "deployagent:hosts:"
)

var ErrMissingHostname = errors.New("missing hostname")

var (
	_ repo.HostInfo     = ValkeyRepo{}
	_ publish.Publisher = ValkeyRepo{}
)

// ValkeyRepo keeps one hash per environment, with a field per hostname.
// The whole hash expires when no host of the environment reported for the
// expiration duration.
type ValkeyRepo struct {
	client      valkey.Client
	environment string
	expiration  time.Duration
	clock       clockwork.Clock
}

func NewValkeyRepo(client valkey.Client, environment string, expiration time.Duration) ValkeyRepo {
	return ValkeyRepo{
		client:      client,
		environment: environment,
		expiration:  expiration,
		clock:       clockwork.NewRealClock(),
	}
}

func (r ValkeyRepo) Key() string {
	return keyPrefix + r.environment
}

func (r ValkeyRepo) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	return r.WriteHostInfo(ctx, info)
}

func (r ValkeyRepo) WriteHostInfo(ctx context.Context, info hostinfo.HostInfo) error {
	if info.Hostname == "" {
		return common.NewSinkError(ErrMissingHostname, sinkName, "invalid host info")
	}

	// Marshal local model
	data, err := json.Marshal(mapToModels(info, r.clock.Now()))
	if err != nil {
		return common.NewSinkError(err, sinkName, "failed to marshal host info")
	}

	// Set property
	command := r.client.B().Hset().Key(r.Key()).FieldValue().FieldValue(info.Hostname, string(data)).Build()

	err = r.client.Do(ctx, command).Error()
	if err != nil {
		return r.wrapError(err, "failed to set hkey")
	}

	// Set expiration
	expireCommand := r.client.B().Expire().Key(r.Key()).Seconds(int64(r.expiration.Seconds())).Build()

	err = r.client.Do(ctx, expireCommand).Error()
	if err != nil {
		return r.wrapError(err, "failed to set expiration")
	}

	return nil
}

func (r ValkeyRepo) GetHostInfos(ctx context.Context) ([]hostinfo.HostInfo, error) {
	command := r.client.B().Hgetall().Key(r.Key()).Build()

	resp := r.client.Do(ctx, command)

	err := resp.Error()
	if err != nil {
		return nil, r.wrapError(err, "failed to get all hosts")
	}

	result, err := resp.AsStrMap()
	if err != nil {
		return nil, common.NewSinkError(err, sinkName, "unexpected hgetall response type for %s", r.Key())
	}

	ret := make([]hostinfo.HostInfo, 0, len(result))

	for hostname, jsonHost := range result {
		model := Registration{}

		err := json.Unmarshal([]byte(jsonHost), &model)
		if err != nil {
			return nil, common.NewSinkError(err, sinkName, "failed to unmarshal host %s", hostname)
		}

		ret = append(ret, mapToEntity(model))
	}

	return ret, nil
}

func (r ValkeyRepo) wrapError(err error, reason string) error {
	if r.isRetryable(err) {
		return common.NewRetryableSinkError(err, sinkName, "%s (%s)", reason, r.Key())
	}

	return common.NewSinkError(err, sinkName, "%s (%s)", reason, r.Key())
}

func (r ValkeyRepo) isRetryable(err error) bool {
	// Network error
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// Valkey specific error
	vErr, isValkeyError := valkey.IsValkeyErr(err)
	if !isValkeyError {
		return false
	}

	return vErr.IsTryAgain()
}
