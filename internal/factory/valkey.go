package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/deployd/deploy-agent/internal/common"
	"github.com/deployd/deploy-agent/internal/config"
)

const (
	valkeyClientName  = "deploy-agent"
	valkeyPingTimeout = 5 * time.Second
)

// CreateValkeyClient connects to the host registry. The agent only writes its
// own entry, client side caching is disabled.
func CreateValkeyClient(ctx context.Context, conf config.Valkey) (valkey.Client, common.CloseFunc, error) {
	ret, err := valkey.NewClient(valkeyClientOption(conf))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, valkeyPingTimeout)
	defer cancel()

	err = ret.Do(pingCtx, ret.B().Ping().Build()).Error()
	if err != nil {
		ret.Close()

		return nil, nil, fmt.Errorf("failed to ping valkey %s: %w", conf.URL, err)
	}

	closeFunc := func(context.Context) error {
		ret.Close()

		return nil
	}

	return ret, closeFunc, nil
}

func valkeyClientOption(conf config.Valkey) valkey.ClientOption {
	addresses := []string{}

	for _, address := range strings.Split(conf.URL, ",") {
		address = strings.TrimSpace(address)
		if address != "" {
			addresses = append(addresses, address)
		}
	}

	return valkey.ClientOption{
		InitAddress:  addresses,
		Password:     conf.Creds.Password,
		ClientName:   valkeyClientName,
		DisableCache: true,
	}
}
